package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltplatform/volt-backend/internal/analysis"
	"github.com/voltplatform/volt-backend/internal/cache"
	"github.com/voltplatform/volt-backend/internal/gpxio"
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/storage"
)

func TestUploadStoresRaceWithRawMetrics(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	ctx := context.Background()
	userID := f.signup(t, "alice")

	points := climb(45.0, 45.02, 7.0, 10)
	race := f.upload(t, userID, "morning-run", points)

	assert.Equal(t, "morning-run", race.Name)
	assert.Equal(t, userID, race.UserID)
	assert.Greater(t, race.DistanceKm, 2.0)
	assert.InDelta(t, race.DistanceKm+race.ElevationGainM/100, race.ITRAEffortDistance, 1e-9)
	assert.True(t, f.archive.has(storage.RaceKey(userID, race.ID)))

	stored, err := f.raceSvc.Get(ctx, userID, race.ID, ViewOptions{WindowSize: 100})
	require.NoError(t, err)
	assert.Equal(t, race.ElevationGainM, stored.ElevationGainM)
	assert.Nil(t, stored.SmoothedElevationGainM)
	assert.Len(t, stored.GpxData.Points, len(race.GpxData.Points))
}

func TestUploadRejectsBadFiles(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	userID := f.signup(t, "alice")

	tests := []struct {
		name string
		in   UploadInput
		want error
	}{
		{"wrong type", UploadInput{Filename: "run.fit", ContentType: "application/octet-stream", Data: []byte("x")}, gpxio.ErrInvalidFileType},
		{"not xml", UploadInput{Filename: "run.gpx", Data: []byte("hello")}, gpxio.ErrMalformed},
		{"no points", UploadInput{Filename: "run.gpx", Data: []byte(`<gpx version="1.1"></gpx>`)}, gpxio.ErrNoPoints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.raceSvc.Upload(context.Background(), userID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	small := NewRaceService(f.races, f.analytics, f.archive, nil, f.raceSvc.logger, 10)
	_, err := small.Upload(context.Background(), userID, UploadInput{Filename: "run.gpx", Data: gpxDoc(climb(45, 45.01, 7, 5))})
	assert.ErrorIs(t, err, gpxio.ErrFileTooLarge)

	races, err := f.raceSvc.List(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, races)
}

func TestGetFillsSmoothedMetrics(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	ctx := context.Background()
	userID := f.signup(t, "alice")

	points := climb(45.0, 45.02, 7.0, 10)
	for i := range points {
		if i%2 == 1 {
			points[i].Ele += 4 // jitter the raw track
		}
	}
	race := f.upload(t, userID, "jittery", points)

	got, err := f.raceSvc.Get(ctx, userID, race.ID, ViewOptions{WindowSize: 200, Smoothed: true})
	require.NoError(t, err)
	require.NotNil(t, got.SmoothedElevationGainM)
	require.NotNil(t, got.SmoothedITRAEffortDistance)
	assert.Less(t, *got.SmoothedElevationGainM, got.ElevationGainM)

	m, err := f.analytics.Metrics(ctx, userID, race.ID, ViewOptions{WindowSize: 200, Smoothed: true})
	require.NoError(t, err)
	assert.Equal(t, m.ElevationGainM, *got.SmoothedElevationGainM)

	_, err = f.raceSvc.Get(ctx, userID, race.ID, ViewOptions{WindowSize: 5, Smoothed: true})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRacesAreOwnerScoped(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	ctx := context.Background()
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	race := f.upload(t, alice, "mine", climb(45.0, 45.01, 7.0, 5))

	_, err := f.raceSvc.Get(ctx, bob, race.ID, DefaultViewOptions())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.raceSvc.Delete(ctx, bob, race.ID), ErrNotFound)

	list, err := f.raceSvc.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteRemovesRaceCacheAndArchive(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	ctx := context.Background()
	userID := f.signup(t, "alice")
	race := f.upload(t, userID, "gone", climb(45.0, 45.01, 7.0, 5))

	_, err := f.analytics.Gradient(ctx, userID, race.ID, DefaultViewOptions())
	require.NoError(t, err)
	require.Equal(t, 1, f.analytics.cache.Len())

	require.NoError(t, f.raceSvc.Delete(ctx, userID, race.ID))
	assert.Equal(t, 0, f.analytics.cache.Len())
	assert.False(t, f.archive.has(storage.RaceKey(userID, race.ID)))

	assert.ErrorIs(t, f.raceSvc.Delete(ctx, userID, race.ID), ErrNotFound)
	_, err = f.analytics.Gradient(ctx, userID, race.ID, DefaultViewOptions())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletedRaceViewNotServedFromLateCacheWrite(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	ctx := context.Background()
	userID := f.signup(t, "alice")
	race := f.upload(t, userID, "gone", climb(45.0, 45.01, 7.0, 5))
	opts := DefaultViewOptions()

	// a view loaded before the delete is written to the cache after it
	loaded, err := f.races.GetByID(ctx, userID, race.ID)
	require.NoError(t, err)
	require.NoError(t, f.raceSvc.Delete(ctx, userID, race.ID))
	profile := analysis.NewView(loaded.GpxData.Points, opts.WindowSize, opts.Smoothed).Profile()
	f.analytics.cache.Set(cache.AnalyticsKey(race.ID, kindProfile, opts.WindowSize, opts.Smoothed),
		ownedValue{userID: userID, value: &profile})

	_, err = f.analytics.Elevation(ctx, userID, race.ID, opts)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveKeepsGivenMetrics(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	userID := f.signup(t, "alice")

	m := models.RaceMetrics{DistanceKm: 12.3456, ElevationGainM: 789.1, ElevationLossM: 456.7, ITRAEffortDistance: 20.2366}
	race, err := f.raceSvc.Save(context.Background(), userID, "  Saved route ", climb(45, 45.01, 7, 5), m)
	require.NoError(t, err)
	assert.Equal(t, "Saved route", race.Name)
	assert.Equal(t, m.DistanceKm, race.DistanceKm)
	assert.Equal(t, m.ITRAEffortDistance, race.ITRAEffortDistance)

	_, err = f.raceSvc.Save(context.Background(), userID, "   ", climb(45, 45.01, 7, 5), m)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRaceName(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name, given, filename, want string
	}{
		{"explicit", " Trail 50K ", "x.gpx", "Trail 50K"},
		{"from file", "", "uploads/Mont Blanc.gpx", "Mont Blanc"},
		{"unnamed file", "", "unnamed.gpx", "Race 2024-07-01 09:30"},
		{"no file", "", "", "Race 2024-07-01 09:30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, raceName(tt.given, tt.filename, now))
		})
	}
}

func TestAnalyticsCacheRespectsOwnership(t *testing.T) {
	f := newFixture(t, testSynthesisOptions())
	ctx := context.Background()
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	race := f.upload(t, alice, "climb", climb(45.0, 45.02, 7.0, 12))

	first, err := f.analytics.Elevation(ctx, alice, race.ID, DefaultViewOptions())
	require.NoError(t, err)
	second, err := f.analytics.Elevation(ctx, alice, race.ID, DefaultViewOptions())
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = f.analytics.Elevation(ctx, bob, race.ID, DefaultViewOptions())
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := f.analytics.Elevation(ctx, alice, race.ID, ViewOptions{WindowSize: 100, Smoothed: false})
	require.NoError(t, err)
	for i, p := range race.GpxData.Points {
		assert.Equal(t, p.Ele, raw.Elevation[i])
	}

	grad, err := f.analytics.Gradient(ctx, alice, race.ID, ViewOptions{WindowSize: 100, Smoothed: true})
	require.NoError(t, err)
	var total float64
	for _, b := range grad.Ascent {
		total += b.Percentage
	}
	assert.InDelta(t, 100, total, 0.1)

	_, err = f.analytics.Gradient(ctx, alice, race.ID, ViewOptions{WindowSize: analysis.MaxWindowSize + 1})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
