package spatial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineDistance(t *testing.T) {
	// one degree of latitude is ~111.2 km
	d := HaversineDistance(45, 7, 46, 7)
	assert.InDelta(t, 111195, d, 100)

	assert.Zero(t, HaversineDistance(10, 10, 10, 10))
}

func TestCumulativeDistances(t *testing.T) {
	points := []Point{{45, 7}, {45.001, 7}, {45.002, 7.001}}
	cum := CumulativeDistances(points)
	require.Len(t, cum, 3)
	assert.Zero(t, cum[0])
	assert.InDelta(t, HaversineDistance(45, 7, 45.001, 7), cum[1], 1e-9)
	assert.InDelta(t, cum[1]+HaversineDistance(45.001, 7, 45.002, 7.001), cum[2], 1e-9)
}

func TestBoundingBoxValidate(t *testing.T) {
	valid := BoundingBox{North: 46.0, South: 45.9, East: 7.1, West: 7.0}

	tests := []struct {
		name    string
		box     BoundingBox
		wantErr bool
	}{
		{"valid", valid, false},
		{"north equals south", BoundingBox{North: 45, South: 45, East: 7.1, West: 7}, true},
		{"north below south", BoundingBox{North: 45, South: 45.1, East: 7.1, West: 7}, true},
		{"zero span", BoundingBox{North: 46, South: 45.9, East: 7, West: 7}, true},
		{"inverted span", BoundingBox{North: 46, South: 45.9, East: 7, West: 7.1}, true},
		{"full span", BoundingBox{North: 1, South: 0, East: 180, West: -180}, true},
		{"latitude out of range", BoundingBox{North: 91, South: 45, East: 7.1, West: 7}, true},
		{"longitude out of range", BoundingBox{North: 46, South: 45.9, East: 181, West: 7}, true},
		{"too small", BoundingBox{North: 45.001, South: 45, East: 7.001, West: 7}, true},
		{"too large", BoundingBox{North: 50, South: 40, East: 20, West: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.box.Validate(DefaultAreaLimits)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidBoundingBox))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoundingBoxArea(t *testing.T) {
	// 0.1° x 0.1° at 45°N is about 11.1 km x 7.9 km
	box := BoundingBox{North: 45.1, South: 45.0, East: 7.1, West: 7.0}
	assert.InDelta(t, 87.5, box.AreaKm2(), 1.5)
}

func TestBoundingBoxContains(t *testing.T) {
	box := BoundingBox{North: 46, South: 45, East: 8, West: 7}
	assert.True(t, box.Contains(45.5, 7.5))
	assert.True(t, box.Contains(46, 8))
	assert.False(t, box.Contains(46.1, 7.5))
}

func TestBoundsOf(t *testing.T) {
	b := BoundsOf([]Point{{45, 7}, {45.5, 6.5}, {44.9, 7.2}})
	assert.Equal(t, BoundingBox{North: 45.5, South: 44.9, East: 7.2, West: 6.5}, b)
}

func TestCellIndexWithin(t *testing.T) {
	idx := NewCellIndex(DefaultCellLevel)
	idx.Insert(1, 45.0, 7.0)
	idx.Insert(2, 45.0005, 7.0) // ~55 m north
	idx.Insert(3, 45.01, 7.0)   // ~1.1 km north
	require.Equal(t, 3, idx.Len())

	matches := idx.Within(45.0, 7.0, 100)
	require.Len(t, matches, 2)
	assert.Equal(t, 1, matches[0].Key)
	assert.Equal(t, 2, matches[1].Key)
	assert.InDelta(t, 55.6, matches[1].Distance, 1)

	assert.Empty(t, idx.Within(44.0, 7.0, 100))
}

func TestEncodePolyline(t *testing.T) {
	points := []Point{{38.5, -120.2}, {40.7, -120.95}, {43.252, -126.453}}
	encoded := EncodePolyline(points)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)
	assert.Empty(t, EncodePolyline(nil))
}
