package gpxio

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"
	"github.com/voltplatform/volt-backend/internal/models"
)

const creator = "Volt"

// Export renders points as a GPX 1.1 document with a single track.
// The output carries no generation timestamp, so the same input always
// yields the same bytes.
func Export(name string, points []models.GpxPoint) ([]byte, error) {
	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(points))}
	for _, p := range points {
		point := gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  p.Lat,
				Longitude: p.Lon,
				Elevation: *gpx.NewNullableFloat64(p.Ele),
			},
		}
		if p.Time != nil {
			point.Timestamp = p.Time.UTC()
		}
		segment.Points = append(segment.Points, point)
	}

	doc := &gpx.GPX{
		Version: "1.1",
		Creator: creator,
		Name:    name,
		Tracks: []gpx.GPXTrack{{
			Name:     name,
			Segments: []gpx.GPXTrackSegment{segment},
		}},
	}

	out, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode GPX: %w", err)
	}
	return out, nil
}
