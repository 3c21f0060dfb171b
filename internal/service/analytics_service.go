package service

import (
	"context"
	"errors"

	"github.com/voltplatform/volt-backend/internal/analysis"
	"github.com/voltplatform/volt-backend/internal/cache"
	"github.com/voltplatform/volt-backend/internal/metrics"
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/repository"
)

// Analytics kinds used in cache keys
const (
	kindProfile  = "elevation"
	kindGradient = "gradient"
	kindMetrics  = "metrics"
)

// ViewOptions select the series a race is analysed on
type ViewOptions struct {
	WindowSize int
	Smoothed   bool
}

// DefaultViewOptions 默认窗口 100 米，平滑开启
func DefaultViewOptions() ViewOptions {
	return ViewOptions{WindowSize: analysis.DefaultWindowSize, Smoothed: true}
}

// Validate checks the window bounds
func (o ViewOptions) Validate() error {
	if o.WindowSize < analysis.MinWindowSize || o.WindowSize > analysis.MaxWindowSize {
		return invalid("window_size", "must be between %d and %d", analysis.MinWindowSize, analysis.MaxWindowSize)
	}
	return nil
}

// cached values remember their owner so a cache hit never bypasses ownership
type ownedValue struct {
	userID string
	value  interface{}
}

// AnalyticsService computes elevation profiles, gradient distributions and
// smoothed metrics of stored races
type AnalyticsService struct {
	races   *repository.RaceRepository
	cache   *cache.AnalyticsCache
	metrics *metrics.Metrics
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(races *repository.RaceRepository, c *cache.AnalyticsCache, m *metrics.Metrics) *AnalyticsService {
	return &AnalyticsService{races: races, cache: c, metrics: m}
}

// Elevation returns the elevation profile of a race
func (s *AnalyticsService) Elevation(ctx context.Context, userID, raceID string, opts ViewOptions) (*models.ElevationProfile, error) {
	v, err := s.compute(ctx, userID, raceID, kindProfile, opts, func(view *analysis.View) interface{} {
		p := view.Profile()
		return &p
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ElevationProfile), nil
}

// Gradient returns the ascent/descent gradient distribution of a race
func (s *AnalyticsService) Gradient(ctx context.Context, userID, raceID string, opts ViewOptions) (*models.GradientDistribution, error) {
	v, err := s.compute(ctx, userID, raceID, kindGradient, opts, func(view *analysis.View) interface{} {
		g := view.Gradient()
		return &g
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.GradientDistribution), nil
}

// Metrics returns distance, gain, loss and effort of the viewed series
func (s *AnalyticsService) Metrics(ctx context.Context, userID, raceID string, opts ViewOptions) (*models.SmoothedMetrics, error) {
	v, err := s.compute(ctx, userID, raceID, kindMetrics, opts, func(view *analysis.View) interface{} {
		m := view.Metrics()
		return &m
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SmoothedMetrics), nil
}

// Decorate fills the smoothed_* fields of a loaded race
func (s *AnalyticsService) Decorate(race *models.Race, windowSize int) {
	key := cache.AnalyticsKey(race.ID, kindMetrics, windowSize, true)
	var m *models.SmoothedMetrics
	if hit, ok := s.lookup(key, race.UserID); ok {
		m = hit.(*models.SmoothedMetrics)
	} else {
		computed := analysis.NewView(race.GpxData.Points, windowSize, true).Metrics()
		m = &computed
		s.cache.Set(key, ownedValue{userID: race.UserID, value: m})
	}

	gain, loss, effort := m.ElevationGainM, m.ElevationLossM, m.ITRAEffortDistance
	race.SmoothedElevationGainM = &gain
	race.SmoothedElevationLossM = &loss
	race.SmoothedITRAEffortDistance = &effort
}

// Invalidate drops cached analytics of a race
func (s *AnalyticsService) Invalidate(raceID string) {
	s.cache.InvalidateRace(raceID)
}

func (s *AnalyticsService) compute(ctx context.Context, userID, raceID, kind string, opts ViewOptions, fn func(*analysis.View) interface{}) (interface{}, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	key := cache.AnalyticsKey(raceID, kind, opts.WindowSize, opts.Smoothed)
	if v, ok := s.lookup(key, userID); ok {
		return v, nil
	}

	race, err := s.races.GetByID(ctx, userID, raceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	v := fn(analysis.NewView(race.GpxData.Points, opts.WindowSize, opts.Smoothed))
	s.cache.Set(key, ownedValue{userID: userID, value: v})
	return v, nil
}

func (s *AnalyticsService) lookup(key, userID string) (interface{}, bool) {
	if v, ok := s.cache.Get(key); ok {
		if owned, ok := v.(ownedValue); ok && owned.userID == userID {
			s.metrics.RecordCache("analytics", true)
			return owned.value, true
		}
	}
	s.metrics.RecordCache("analytics", false)
	return nil, false
}
