package models

import "time"

// GpxPoint is a single parsed track point
type GpxPoint struct {
	Lat  float64    `json:"lat"`
	Lon  float64    `json:"lon"`
	Ele  float64    `json:"ele"`
	Time *time.Time `json:"time,omitempty"` // only set when the source GPX carried a timestamp
}

// GpxData wraps the ordered point sequence of a track
type GpxData struct {
	Points []GpxPoint `json:"points"`
}

// RoutePoint is a point of a synthesized route (no timestamps)
type RoutePoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Ele float64 `json:"ele"`
}

// Route wraps the ordered point sequence of a synthesis result
type Route struct {
	Points []RoutePoint `json:"points"`
}

// ToGpxPoints converts route points to track points
func (r Route) ToGpxPoints() []GpxPoint {
	points := make([]GpxPoint, len(r.Points))
	for i, p := range r.Points {
		points[i] = GpxPoint{Lat: p.Lat, Lon: p.Lon, Ele: p.Ele}
	}
	return points
}

// RouteFromGpxPoints drops timestamps and returns a route
func RouteFromGpxPoints(points []GpxPoint) Route {
	route := Route{Points: make([]RoutePoint, len(points))}
	for i, p := range points {
		route.Points[i] = RoutePoint{Lat: p.Lat, Lon: p.Lon, Ele: p.Ele}
	}
	return route
}
