package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// ErrInvalidBoundingBox is wrapped by every bounding box validation failure
var ErrInvalidBoundingBox = errors.New("invalid bounding box")

// BoundingBox is a lat/lon rectangle in degrees. Boxes crossing the antimeridian are not supported.
type BoundingBox struct {
	North float64
	South float64
	East  float64
	West  float64
}

// AreaLimits bounds the accepted search area in km²
type AreaLimits struct {
	MinKm2 float64
	MaxKm2 float64
}

// DefaultAreaLimits 默认搜索面积范围
var DefaultAreaLimits = AreaLimits{MinKm2: 1, MaxKm2: 10000}

// Validate checks orientation, coordinate ranges and area
func (b BoundingBox) Validate(limits AreaLimits) error {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinates must be finite", ErrInvalidBoundingBox)
		}
	}
	if b.North > 90 || b.South < -90 {
		return fmt.Errorf("%w: latitude must be within [-90, 90]", ErrInvalidBoundingBox)
	}
	if b.East > 180 || b.West < -180 || b.East < -180 || b.West > 180 {
		return fmt.Errorf("%w: longitude must be within [-180, 180]", ErrInvalidBoundingBox)
	}
	if b.North <= b.South {
		return fmt.Errorf("%w: north must be greater than south", ErrInvalidBoundingBox)
	}
	span := b.East - b.West
	if span <= 0 || span >= 360 {
		return fmt.Errorf("%w: longitude span must be between 0 and 360 degrees", ErrInvalidBoundingBox)
	}

	area := b.AreaKm2()
	if limits.MinKm2 > 0 && area < limits.MinKm2 {
		return fmt.Errorf("%w: area %.2f km² is below the minimum of %.0f km²", ErrInvalidBoundingBox, area, limits.MinKm2)
	}
	if limits.MaxKm2 > 0 && area > limits.MaxKm2 {
		return fmt.Errorf("%w: area %.0f km² exceeds the maximum of %.0f km²", ErrInvalidBoundingBox, area, limits.MaxKm2)
	}
	return nil
}

// Rect converts the box to an s2.Rect
func (b BoundingBox) Rect() s2.Rect {
	return s2.Rect{
		Lat: r1.Interval{Lo: b.South * math.Pi / 180, Hi: b.North * math.Pi / 180},
		Lng: s1.IntervalFromEndpoints(b.West*math.Pi/180, b.East*math.Pi/180),
	}
}

// AreaKm2 returns the spherical area of the box in square kilometers
func (b BoundingBox) AreaKm2() float64 {
	return b.Rect().Area() * EarthRadiusKm * EarthRadiusKm
}

// Contains reports whether the point lies inside the box (edges included)
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// BoundsOf returns the smallest box containing all points
func BoundsOf(points []Point) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}

	b := BoundingBox{North: points[0].Lat, South: points[0].Lat, East: points[0].Lon, West: points[0].Lon}
	for _, p := range points[1:] {
		b.North = math.Max(b.North, p.Lat)
		b.South = math.Min(b.South, p.Lat)
		b.East = math.Max(b.East, p.Lon)
		b.West = math.Min(b.West, p.Lon)
	}
	return b
}
