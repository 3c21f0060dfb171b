package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltplatform/volt-backend/internal/analysis"
	"github.com/voltplatform/volt-backend/internal/gpxio"
	"github.com/voltplatform/volt-backend/internal/metrics"
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/repository"
	"github.com/voltplatform/volt-backend/internal/storage"
)

const maxRaceNameLength = 200

// UploadInput is one GPX file posted by a user
type UploadInput struct {
	Filename    string
	ContentType string
	Name        string
	Data        []byte
}

// RaceService handles the race library
type RaceService struct {
	races     *repository.RaceRepository
	analytics *AnalyticsService
	archive   storage.Archive
	metrics   *metrics.Metrics
	logger    *zap.Logger
	maxBytes  int64
	now       func() time.Time
}

// NewRaceService creates a new race service
func NewRaceService(races *repository.RaceRepository, analytics *AnalyticsService, archive storage.Archive, m *metrics.Metrics, logger *zap.Logger, maxBytes int64) *RaceService {
	return &RaceService{
		races:     races,
		analytics: analytics,
		archive:   archive,
		metrics:   m,
		logger:    logger,
		maxBytes:  maxBytes,
		now:       time.Now,
	}
}

// Upload parses a GPX file, computes its raw metrics and stores it
func (s *RaceService) Upload(ctx context.Context, userID string, in UploadInput) (*models.Race, error) {
	race, err := s.upload(ctx, userID, in)
	if err != nil {
		s.metrics.RecordUpload("rejected")
		return nil, err
	}
	s.metrics.RecordUpload("accepted")
	return race, nil
}

func (s *RaceService) upload(ctx context.Context, userID string, in UploadInput) (*models.Race, error) {
	if err := gpxio.ValidateUpload(in.Filename, in.ContentType, int64(len(in.Data)), s.maxBytes); err != nil {
		return nil, err
	}

	parsed, err := gpxio.Parse(in.Data)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	race := &models.Race{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      raceName(in.Name, in.Filename, now),
		GpxData:   models.GpxData{Points: parsed.Points},
		CreatedAt: now,
	}
	setMetrics(race, analysis.ComputeMetrics(parsed.Points))
	race.SetExtent()

	if err := s.races.Create(ctx, race); err != nil {
		return nil, err
	}

	// 原始文件归档失败不影响上传
	if err := s.archive.Put(ctx, storage.RaceKey(userID, race.ID), in.Data); err != nil {
		s.logger.Warn("failed to archive upload", zap.String("race_id", race.ID), zap.Error(err))
	}

	s.logger.Info("race uploaded",
		zap.String("race_id", race.ID),
		zap.String("user_id", userID),
		zap.Int("points", len(parsed.Points)),
		zap.Float64("distance_km", race.DistanceKm),
	)
	return race, nil
}

// List returns a user's races, newest first
func (s *RaceService) List(ctx context.Context, userID string) ([]*models.Race, error) {
	return s.races.ListByUser(ctx, userID)
}

// Get returns one race. With opts.Smoothed the smoothed_* fields are filled
// from the opts.WindowSize view.
func (s *RaceService) Get(ctx context.Context, userID, id string, opts ViewOptions) (*models.Race, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	race, err := s.races.GetByID(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if opts.Smoothed {
		s.analytics.Decorate(race, opts.WindowSize)
	}
	return race, nil
}

// Delete removes a race with its cached analytics and archived upload
func (s *RaceService) Delete(ctx context.Context, userID, id string) error {
	if err := s.races.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.analytics.Invalidate(id)
	if err := s.archive.Delete(ctx, storage.RaceKey(userID, id)); err != nil {
		s.logger.Warn("failed to remove archived upload", zap.String("race_id", id), zap.Error(err))
	}
	return nil
}

// Save stores a point sequence with already computed metrics as a new race
func (s *RaceService) Save(ctx context.Context, userID, name string, points []models.GpxPoint, m models.RaceMetrics) (*models.Race, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxRaceNameLength {
		return nil, invalid("name", "must be at most %d characters", maxRaceNameLength)
	}

	race := &models.Race{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		GpxData:   models.GpxData{Points: points},
		CreatedAt: s.now().UTC(),
	}
	setMetrics(race, m)
	race.SetExtent()

	if err := s.races.Create(ctx, race); err != nil {
		return nil, fmt.Errorf("failed to save route: %w", err)
	}
	return race, nil
}

func setMetrics(race *models.Race, m models.RaceMetrics) {
	race.DistanceKm = m.DistanceKm
	race.ElevationGainM = m.ElevationGainM
	race.ElevationLossM = m.ElevationLossM
	race.ITRAEffortDistance = m.ITRAEffortDistance
}

// raceName picks the explicit name, else the file name without extension,
// else a dated default
func raceName(name, filename string, now time.Time) string {
	if name = strings.TrimSpace(name); name != "" {
		return truncate(name, maxRaceNameLength)
	}
	base := filepath.Base(filename)
	if stem := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base))); stem != "" && stem != "." && stem != "unnamed" {
		return truncate(stem, maxRaceNameLength)
	}
	return "Race " + now.Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
