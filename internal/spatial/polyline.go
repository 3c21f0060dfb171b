package spatial

import (
	"github.com/twpayne/go-polyline"
)

// EncodePolyline encodes a path in the Google encoded polyline format (precision 5)
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}
