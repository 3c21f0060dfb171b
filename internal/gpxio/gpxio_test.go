package gpxio

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltplatform/volt-backend/internal/models"
)

const threePointGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
	<trk>
		<name>Morning Run</name>
		<trkseg>
			<trkpt lat="45.000" lon="7.000"><ele>100</ele><time>2025-01-01T10:00:00Z</time></trkpt>
			<trkpt lat="45.001" lon="7.000"><ele>150</ele><time>2025-01-01T10:01:00Z</time></trkpt>
			<trkpt lat="45.002" lon="7.000"><ele>120</ele><time>2025-01-01T10:02:00Z</time></trkpt>
		</trkseg>
	</trk>
</gpx>`

func TestParseThreePointTrack(t *testing.T) {
	parsed, err := Parse([]byte(threePointGPX))
	require.NoError(t, err)

	assert.Equal(t, "Morning Run", parsed.Name)
	require.Len(t, parsed.Points, 3)
	assert.Equal(t, []float64{100, 150, 120}, elevations(parsed.Points))
	require.NotNil(t, parsed.Points[0].Time)
	assert.Equal(t, "2025-01-01T10:00:00Z", parsed.Points[0].Time.Format("2006-01-02T15:04:05Z07:00"))
}

func TestParseStripsVendorMarkup(t *testing.T) {
	doc := "\xEF\xBB\xBF" + `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="Garmin" xmlns="http://www.topografix.com/GPX/1/1" xmlns:gpxtpx="http://www.garmin.com/xmlschemas/TrackPointExtension/v1">
	<trk><trkseg>
		<trkpt lat="45.000" lon="7.000"><ele>100</ele>
			<extensions><gpxtpx:TrackPointExtension><gpxtpx:hr>140</gpxtpx:hr></gpxtpx:TrackPointExtension></extensions>
		</trkpt>
		<trkpt lat="45.001" lon="7.000"><ele>110</ele><extensions/></trkpt>
	</trkseg></trk>
</gpx>`

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, parsed.Points, 2)
	assert.Nil(t, parsed.Points[0].Time)
}

func TestParseFallsBackToWaypoints(t *testing.T) {
	doc := `<?xml version="1.0"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
	<wpt lat="45.000" lon="7.000"><ele>10</ele></wpt>
	<wpt lat="45.010" lon="7.000"><ele>20</ele></wpt>
</gpx>`

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, elevations(parsed.Points))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not xml", "this is not a gpx file", ErrMalformed},
		{"no points", `<?xml version="1.0"?><gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg></trkseg></trk></gpx>`, ErrNoPoints},
		{"single distinct point", `<?xml version="1.0"?><gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>
			<trkpt lat="45" lon="7"></trkpt><trkpt lat="45" lon="7"></trkpt></trkseg></trk></gpx>`, ErrTooFewPoints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidateUpload(t *testing.T) {
	const limit = 50 << 20

	assert.NoError(t, ValidateUpload("run.gpx", "application/octet-stream", 1024, limit))
	assert.NoError(t, ValidateUpload("run.GPX", "", 1024, limit))
	assert.NoError(t, ValidateUpload("upload", "application/gpx+xml; charset=utf-8", 1024, limit))
	assert.NoError(t, ValidateUpload("upload", "text/xml", 1024, limit))
	assert.ErrorIs(t, ValidateUpload("run.fit", "application/octet-stream", 1024, limit), ErrInvalidFileType)
	assert.ErrorIs(t, ValidateUpload("run.gpx", "application/gpx+xml", limit+1, limit), ErrFileTooLarge)
}

func TestOptimize(t *testing.T) {
	points := []models.GpxPoint{
		{Lat: 45.0, Lon: 7.0},
		{Lat: 45.0, Lon: 7.0},           // duplicate
		{Lat: 45.00001, Lon: 7.0},       // ~1 m, too close
		{Lat: 45.001, Lon: 7.0},         // ~111 m
		{Lat: 45.00102, Lon: 7.0},       // ~2 m, too close
		{Lat: 45.002, Lon: 7.0, Ele: 9}, // last, always kept
	}

	out := Optimize(points)
	require.Len(t, out, 3)
	assert.Equal(t, 45.0, out[0].Lat)
	assert.Equal(t, 45.001, out[1].Lat)
	assert.Equal(t, 45.002, out[2].Lat)
	assert.Equal(t, 9.0, out[2].Ele)
}

func TestOptimizeCapsPointCount(t *testing.T) {
	points := make([]models.GpxPoint, MaxPoints*2+10)
	for i := range points {
		points[i] = models.GpxPoint{Lat: 45 + float64(i)*0.0001, Lon: 7}
	}

	out := Optimize(points)
	assert.LessOrEqual(t, len(out), MaxPoints+1)
	assert.Equal(t, points[len(points)-1], out[len(out)-1])
}

func TestCleanElevations(t *testing.T) {
	points := []models.GpxPoint{{Ele: 100}, {Ele: 400}, {Ele: 110}, {Ele: -9999}, {Ele: 120}}
	CleanElevations(points)

	// -9999 becomes the mean of the valid values (100+400+110+120)/4 = 182.5,
	// then the 400 m spike is flattened to its neighbours' midpoint.
	assert.Equal(t, []float64{100, 105, 110, 182.5, 120}, elevations(points))
}

func TestCleanElevationsKeepsRealClimbs(t *testing.T) {
	points := []models.GpxPoint{{Ele: 100}, {Ele: 250}, {Ele: 400}}
	CleanElevations(points)
	assert.Equal(t, []float64{100, 250, 400}, elevations(points))
}

func TestExportIsDeterministicAndReparses(t *testing.T) {
	parsed, err := Parse([]byte(threePointGPX))
	require.NoError(t, err)

	first, err := Export("Morning Run", parsed.Points)
	require.NoError(t, err)
	second, err := Export("Morning Run", parsed.Points)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, strings.Contains(string(first), "<gpx"))

	again, err := Parse(first)
	require.NoError(t, err)
	require.Len(t, again.Points, len(parsed.Points))
	for i := range parsed.Points {
		assert.InDelta(t, parsed.Points[i].Lat, again.Points[i].Lat, 1e-9)
		assert.InDelta(t, parsed.Points[i].Ele, again.Points[i].Ele, 1e-9)
	}
}

func elevations(points []models.GpxPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Ele
	}
	return out
}

func ExampleExport() {
	out, _ := Export("Loop", []models.GpxPoint{{Lat: 45, Lon: 7, Ele: 100}, {Lat: 45.001, Lon: 7, Ele: 110}})
	fmt.Println(strings.Count(string(out), "<trkpt"))
	// Output: 2
}
