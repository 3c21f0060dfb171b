package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voltplatform/volt-backend/internal/cache"
	"github.com/voltplatform/volt-backend/internal/database"
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/repository"
	"github.com/voltplatform/volt-backend/internal/spatial"
	"github.com/voltplatform/volt-backend/internal/synthesis"
)

const (
	testSecret      = "test-secret-test-secret-test-secret"
	metersPerDegLat = 111195.0
)

type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemArchive() *memArchive {
	return &memArchive{objects: make(map[string][]byte)}
}

func (a *memArchive) Put(_ context.Context, key string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return nil
}

func (a *memArchive) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func (a *memArchive) has(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok
}

type fixture struct {
	users     *repository.UserRepository
	races     *repository.RaceRepository
	jobs      *repository.SynthesisRepository
	archive   *memArchive
	auth      *AuthService
	analytics *AnalyticsService
	raceSvc   *RaceService
	synth     *SynthesisService
}

func testSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		Workers:    1,
		QueueSize:  4,
		JobTimeout: 30 * time.Second,
		AreaLimits: spatial.DefaultAreaLimits,
		Engine:     synthesis.DefaultConfig(),
	}
}

func newFixture(t *testing.T, opts SynthesisOptions) *fixture {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "svc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrationManager(db, zap.NewNop()).RunMigrations(context.Background()))

	f := &fixture{
		users:   repository.NewUserRepository(db),
		races:   repository.NewRaceRepository(db),
		jobs:    repository.NewSynthesisRepository(db),
		archive: newMemArchive(),
	}
	f.auth = NewAuthService(f.users, testSecret, 24*time.Hour)
	f.analytics = NewAnalyticsService(f.races, cache.NewAnalyticsCache(time.Minute), nil)
	f.raceSvc = NewRaceService(f.races, f.analytics, f.archive, nil, zap.NewNop(), 50<<20)
	f.synth = NewSynthesisService(f.jobs, f.races, f.raceSvc, cache.NopJobCache{}, opts, nil, zap.NewNop())
	return f
}

func (f *fixture) signup(t *testing.T, name string) string {
	t.Helper()
	resp, err := f.auth.Signup(context.Background(), SignupRequest{
		Email:    name + "@example.com",
		Username: name,
		Password: "Secret123",
	})
	require.NoError(t, err)
	return resp.User.ID
}

func (f *fixture) upload(t *testing.T, userID, name string, points []models.GpxPoint) *models.Race {
	t.Helper()
	race, err := f.raceSvc.Upload(context.Background(), userID, UploadInput{
		Filename: name + ".gpx",
		Data:     gpxDoc(points),
	})
	require.NoError(t, err)
	return race
}

// climb runs due north at lon, ~22 m per point, at grade percent
func climb(fromLat, toLat, lon, grade float64) []models.GpxPoint {
	const step = 0.0002
	var points []models.GpxPoint
	for lat := fromLat; lat <= toLat+1e-9; lat += step {
		points = append(points, models.GpxPoint{
			Lat: lat,
			Lon: lon,
			Ele: 1000 + (lat-fromLat)*metersPerDegLat*grade/100,
		})
	}
	return points
}

func gpxDoc(points []models.GpxPoint) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1"><trk><name>test</name><trkseg>`)
	for _, p := range points {
		fmt.Fprintf(&b, `<trkpt lat="%.7f" lon="%.7f"><ele>%.2f</ele></trkpt>`, p.Lat, p.Lon, p.Ele)
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	return []byte(b.String())
}
