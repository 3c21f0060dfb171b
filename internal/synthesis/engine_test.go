package synthesis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltplatform/volt-backend/internal/analysis"
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/spatial"
)

var testBox = spatial.BoundingBox{North: 45.1, South: 45.0, East: 7.1, West: 7.0}

const metersPerDegLat = 111195.0

// climb runs due north from fromLat to toLat at lon, ~22 m per point, at grade
// percent. Elevation is a function of latitude so adjoining climbs line up.
func climb(fromLat, toLat, lon, grade float64) []models.GpxPoint {
	const step = 0.0002
	var points []models.GpxPoint
	for lat := fromLat; lat <= toLat+1e-9; lat += step {
		points = append(points, models.GpxPoint{
			Lat: lat,
			Lon: lon,
			Ele: 1000 + (lat-45.0)*metersPerDegLat*grade/100,
		})
	}
	return points
}

func reference(km float64) []models.GpxPoint {
	return climb(45.5, 45.5+km*1000/metersPerDegLat, 8.0, 8)
}

func TestSearchFindsMatchingClimb(t *testing.T) {
	req := Request{
		Reference:  reference(2),
		Box:        testBox,
		WindowSize: 100,
		MaxResults: 20,
		Corpus:     []CorpusTrack{{ID: "t1", Points: climb(45.01, 45.08, 7.05, 8)}},
	}

	results, stats, err := NewEngine(DefaultConfig()).Search(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 1, stats.Fragments)
	assert.LessOrEqual(t, len(results), 20)

	refEffort := analysis.ComputeMetrics(req.Reference).ITRAEffortDistance
	assert.Greater(t, results[0].Score, 0.9)
	assert.InDelta(t, refEffort, results[0].Metrics.ITRAEffortDistance, 0.3)

	for i, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.5)
		assert.LessOrEqual(t, r.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
		assert.Equal(t, analysis.ComputeMetrics(r.Points), r.Metrics)
		for _, p := range r.Points {
			assert.True(t, testBox.Contains(p.Lat, p.Lon))
		}
	}
}

func TestSearchJoinsAdjacentTracks(t *testing.T) {
	first := climb(45.01, 45.03, 7.05, 8)
	last := first[len(first)-1]
	second := climb(last.Lat+0.0003, 45.06, 7.05, 8) // starts ~33 m further on

	req := Request{
		Reference:  reference(4),
		Box:        testBox,
		WindowSize: 100,
		MaxResults: 5,
		Corpus: []CorpusTrack{
			{ID: "b", Points: second},
			{ID: "a", Points: first},
		},
	}

	results, _, err := NewEngine(DefaultConfig()).Search(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	best := results[0]
	assert.Greater(t, len(best.Points), len(first))
	assert.Greater(t, best.Score, 0.9)
	assert.Contains(t, best.Signature, ">")
}

func TestSearchDropsCandidatesShorterThanMinimum(t *testing.T) {
	req := Request{
		Reference:  reference(0.6),
		Box:        testBox,
		WindowSize: 50,
		MaxResults: 20,
		Corpus:     []CorpusTrack{{ID: "t1", Points: climb(45.01, 45.08, 7.05, 8)}},
	}

	results, _, err := NewEngine(DefaultConfig()).Search(context.Background(), req)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Metrics.DistanceKm, 0.999)
	}

	cfg := DefaultConfig()
	cfg.MinDistanceM = 0
	unbounded, _, err := NewEngine(cfg).Search(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, unbounded)
	assert.Less(t, unbounded[0].Metrics.DistanceKm, 1.0)
}

func TestSearchEmptyRegionReturnsEmptySlice(t *testing.T) {
	req := Request{
		Reference:  reference(2),
		Box:        testBox,
		WindowSize: 100,
		MaxResults: 20,
		Corpus:     []CorpusTrack{{ID: "far", Points: climb(46.0, 46.05, 7.05, 8)}},
	}

	results, stats, err := NewEngine(DefaultConfig()).Search(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, stats.Fragments)
}

func TestSearchTruncatesAndIsDeterministic(t *testing.T) {
	req := Request{
		Reference:  reference(1.5),
		Box:        testBox,
		WindowSize: 50,
		MaxResults: 3,
		Corpus: []CorpusTrack{
			{ID: "t1", Points: climb(45.01, 45.08, 7.02, 8)},
			{ID: "t2", Points: climb(45.01, 45.08, 7.04, 9)},
			{ID: "t3", Points: climb(45.01, 45.08, 7.06, 7)},
		},
	}

	engine := NewEngine(DefaultConfig())
	a, _, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	b, _, err := engine.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, a, 3)
	assert.Equal(t, a, b)
}

func TestSearchRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := Request{
		Reference:  reference(2),
		Box:        testBox,
		WindowSize: 100,
		MaxResults: 20,
		Corpus:     []CorpusTrack{{ID: "t1", Points: climb(45.01, 45.08, 7.05, 8)}},
	}
	_, _, err := NewEngine(DefaultConfig()).Search(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchRejectsEmptyReference(t *testing.T) {
	req := Request{
		Reference:  []models.GpxPoint{{Lat: 45, Lon: 7}},
		Box:        testBox,
		WindowSize: 100,
		MaxResults: 20,
	}
	_, _, err := NewEngine(DefaultConfig()).Search(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestClip(t *testing.T) {
	points := []models.GpxPoint{
		{Lat: 45.05, Lon: 7.05}, {Lat: 45.06, Lon: 7.05}, // in
		{Lat: 45.2, Lon: 7.05},  // out
		{Lat: 45.07, Lon: 7.05}, // single point run, dropped
		{Lat: 45.3, Lon: 7.05},
		{Lat: 45.08, Lon: 7.05}, {Lat: 45.09, Lon: 7.05}, {Lat: 45.095, Lon: 7.05},
	}

	frags := clip(CorpusTrack{ID: "x", Points: points}, testBox)
	require.Len(t, frags, 2)
	assert.Len(t, frags[0].points, 2)
	assert.Len(t, frags[1].points, 3)
	assert.Equal(t, "x#1", frags[1].key())
}

func TestEffortSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, EffortSimilarity(10, 10))
	assert.InDelta(t, math.Exp(-1), EffortSimilarity(10, 12), 1e-12)
	assert.InDelta(t, math.Exp(-1), EffortSimilarity(10, 8), 1e-12)
	assert.Greater(t, EffortSimilarity(10, 11), EffortSimilarity(10, 12))
	assert.Equal(t, 1.0, EffortSimilarity(0, 0))
	assert.Equal(t, 0.0, EffortSimilarity(0, 3))
}

func TestHistogramOverlap(t *testing.T) {
	assert.Equal(t, 1.0, HistogramOverlap([]float64{0.5, 0.5}, []float64{0.5, 0.5}))
	assert.Equal(t, 0.0, HistogramOverlap([]float64{1, 0}, []float64{0, 1}))
	assert.InDelta(t, 0.75, HistogramOverlap([]float64{1, 0}, []float64{0.75, 0.25}), 1e-12)
	assert.Equal(t, 0.0, HistogramOverlap([]float64{1}, []float64{0.5, 0.5}))
}

func TestCutIndex(t *testing.T) {
	effort := []float64{0, 1, 2, 3, 4, 5}
	assert.Equal(t, 3, cutIndex(effort, 0, 3))
	assert.Equal(t, 3, cutIndex(effort, 0, 2.6))
	assert.Equal(t, 2, cutIndex(effort, 0, 2.4))
	assert.Equal(t, 4, cutIndex(effort, 2, 2))
	assert.Equal(t, 5, cutIndex(effort, 0, 50))
	assert.Equal(t, 1, cutIndex(effort, 0, 0.1))
}
