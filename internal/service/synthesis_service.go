package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltplatform/volt-backend/internal/analysis"
	"github.com/voltplatform/volt-backend/internal/cache"
	"github.com/voltplatform/volt-backend/internal/gpxio"
	"github.com/voltplatform/volt-backend/internal/metrics"
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/repository"
	"github.com/voltplatform/volt-backend/internal/spatial"
	"github.com/voltplatform/volt-backend/internal/synthesis"
)

// Result count bounds
const (
	MinMaxResults     = 1
	MaxMaxResults     = 50
	DefaultMaxResults = 20
)

// GenerateRequest is the body of POST /synthesis/generate
type GenerateRequest struct {
	ReferenceRaceID string             `json:"reference_race_id"`
	BoundingBox     models.BoundingBox `json:"bounding_box"`
	RollingWindow   int                `json:"rolling_window"`
	MaxResults      int                `json:"max_results"`
}

// SynthesisOptions configures job execution
type SynthesisOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// OwnerCorpusOnly limits candidate geometry to the job owner's races
	OwnerCorpusOnly bool
	AreaLimits      spatial.AreaLimits
	Engine          synthesis.Config
}

// SynthesisService creates synthesis jobs and runs them on a worker pool
type SynthesisService struct {
	jobs     *repository.SynthesisRepository
	races    *repository.RaceRepository
	raceSvc  *RaceService
	jobCache cache.JobCache
	engine   *synthesis.Engine
	runner   *synthesis.Runner
	opts     SynthesisOptions
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewSynthesisService creates a new synthesis service. Call Start to begin processing.
func NewSynthesisService(
	jobs *repository.SynthesisRepository,
	races *repository.RaceRepository,
	raceSvc *RaceService,
	jobCache cache.JobCache,
	opts SynthesisOptions,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SynthesisService {
	s := &SynthesisService{
		jobs:     jobs,
		races:    races,
		raceSvc:  raceSvc,
		jobCache: jobCache,
		engine:   synthesis.NewEngine(opts.Engine),
		opts:     opts,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	s.runner = synthesis.NewRunner(opts.Workers, opts.QueueSize, s.process, logger)
	return s
}

// Start launches the workers and re-queues jobs a previous process left
// unfinished. The backlog is fed in the background so it may exceed the queue size.
func (s *SynthesisService) Start(ctx context.Context) error {
	// nothing of this process runs yet, so every running row was interrupted
	if n, err := s.jobs.RequeueRunning(ctx); err != nil {
		return err
	} else if n > 0 {
		s.logger.Info("reset interrupted synthesis jobs", zap.Int64("count", n))
	}

	pending, err := s.jobs.ListByStatus(ctx, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to load unfinished jobs: %w", err)
	}

	s.runner.Start(ctx)
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info("re-queueing unfinished synthesis jobs", zap.Int("count", len(pending)))
	s.wg.Add(1)
	go s.requeue(ctx, pending)
	return nil
}

func (s *SynthesisService) requeue(ctx context.Context, jobs []*models.SynthesisJob) {
	defer s.wg.Done()
	for _, job := range jobs {
		if err := s.runner.Enqueue(ctx, job.ID); err != nil {
			// the rows stay queued for the next start
			s.logger.Warn("stopped re-queueing synthesis jobs", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		s.metrics.SetQueueDepth(s.runner.Pending())
	}
}

// Stop cancels running jobs and waits for the workers
func (s *SynthesisService) Stop() {
	s.runner.Stop()
	s.wg.Wait()
}

// Generate validates a request and enqueues a job
func (s *SynthesisService) Generate(ctx context.Context, userID string, req GenerateRequest) (*models.SynthesisJob, error) {
	if req.RollingWindow == 0 {
		req.RollingWindow = analysis.DefaultWindowSize
	}
	if req.MaxResults == 0 {
		req.MaxResults = DefaultMaxResults
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	if _, err := s.races.GetByID(ctx, userID, req.ReferenceRaceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: reference race %s", ErrNotFound, req.ReferenceRaceID)
		}
		return nil, err
	}

	job := &models.SynthesisJob{
		ID:              uuid.NewString(),
		UserID:          userID,
		ReferenceRaceID: req.ReferenceRaceID,
		BoundingBox:     req.BoundingBox,
		RollingWindow:   req.RollingWindow,
		MaxResults:      req.MaxResults,
		Status:          models.JobStatusQueued,
		Results:         []models.SynthesisResult{},
		CreatedAt:       s.now().UTC(),
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := s.runner.Submit(job.ID); err != nil {
		if markErr := s.jobs.MarkAsFailed(ctx, job.ID, err.Error(), s.now().UTC()); markErr != nil {
			s.logger.Error("failed to mark rejected job", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		s.metrics.RecordJob(models.JobStatusFailed, 0)
		return nil, fmt.Errorf("%w: %v", ErrQueueFull, err)
	}
	s.metrics.SetQueueDepth(s.runner.Pending())

	s.logger.Info("synthesis job queued",
		zap.String("job_id", job.ID),
		zap.String("user_id", userID),
		zap.String("reference_race_id", job.ReferenceRaceID),
	)
	return job, nil
}

func (s *SynthesisService) validate(req GenerateRequest) error {
	if req.ReferenceRaceID == "" {
		return invalid("reference_race_id", "is required")
	}
	if req.RollingWindow < analysis.MinWindowSize || req.RollingWindow > analysis.MaxWindowSize {
		return invalid("rolling_window", "must be between %d and %d", analysis.MinWindowSize, analysis.MaxWindowSize)
	}
	if req.MaxResults < MinMaxResults || req.MaxResults > MaxMaxResults {
		return invalid("max_results", "must be between %d and %d", MinMaxResults, MaxMaxResults)
	}
	if err := toSpatial(req.BoundingBox).Validate(s.opts.AreaLimits); err != nil {
		return invalid("bounding_box", "%v", err)
	}
	return nil
}

// GetJob returns a job with its results
func (s *SynthesisService) GetJob(ctx context.Context, userID, jobID string) (*models.SynthesisJob, error) {
	cached, ok, err := s.jobCache.Get(ctx, jobID)
	if err != nil {
		s.logger.Warn("job cache read failed", zap.String("job_id", jobID), zap.Error(err))
	}
	s.metrics.RecordCache("jobs", ok)
	if ok {
		if cached.UserID != userID {
			return nil, ErrNotFound
		}
		return cached, nil
	}

	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusComplete {
		if job.Results, err = s.jobs.ListResults(ctx, job.ID); err != nil {
			return nil, err
		}
	}
	if job.Terminal() {
		if err := s.jobCache.Set(ctx, job); err != nil {
			s.logger.Warn("job cache write failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	return job, nil
}

// Download renders one result as a GPX document
func (s *SynthesisService) Download(ctx context.Context, userID, jobID, resultID string) ([]byte, string, error) {
	result, err := s.ownedResult(ctx, userID, jobID, resultID)
	if err != nil {
		return nil, "", err
	}

	name := fmt.Sprintf("Volt route %d", result.Rank)
	data, err := gpxio.Export(name, result.Route.ToGpxPoints())
	if err != nil {
		return nil, "", fmt.Errorf("failed to export route: %w", err)
	}
	return data, fmt.Sprintf("volt-route-%d.gpx", result.Rank), nil
}

// Save copies a result into the user's library as a new race
func (s *SynthesisService) Save(ctx context.Context, userID, jobID, resultID, name string) (*models.Race, error) {
	result, err := s.ownedResult(ctx, userID, jobID, resultID)
	if err != nil {
		return nil, err
	}

	return s.raceSvc.Save(ctx, userID, name, result.Route.ToGpxPoints(), models.RaceMetrics{
		DistanceKm:         result.DistanceKm,
		ElevationGainM:     result.ElevationGainM,
		ElevationLossM:     result.ElevationLossM,
		ITRAEffortDistance: result.ITRAEffortDistance,
	})
}

func (s *SynthesisService) ownedJob(ctx context.Context, userID, jobID string) (*models.SynthesisJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *SynthesisService) ownedResult(ctx context.Context, userID, jobID, resultID string) (*models.SynthesisResult, error) {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return nil, err
	}
	result, err := s.jobs.GetResult(ctx, jobID, resultID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return result, err
}

// process runs one job on a worker
func (s *SynthesisService) process(ctx context.Context, jobID string) {
	logger := s.logger.With(zap.String("job_id", jobID))
	s.metrics.SetQueueDepth(s.runner.Pending())

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("failed to load synthesis job", zap.Error(err))
		return
	}
	if job.Terminal() {
		return
	}

	started := s.now()
	claimed, err := s.jobs.MarkAsRunning(ctx, jobID, started.UTC())
	if err != nil {
		logger.Error("failed to mark job as running", zap.Error(err))
		return
	}
	if !claimed {
		logger.Debug("synthesis job already claimed")
		return
	}

	results, stats, err := s.run(ctx, job)
	elapsed := s.now().Sub(started)
	if err != nil {
		// shutdown: leave the job running so the next start picks it up
		if ctx.Err() != nil {
			logger.Info("synthesis job interrupted by shutdown")
			return
		}
		s.fail(ctx, job, err, elapsed)
		return
	}

	if err := s.jobs.Complete(ctx, jobID, results, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrJobNotRunning) {
			logger.Warn("synthesis job finished elsewhere, results dropped")
			return
		}
		s.fail(ctx, job, err, elapsed)
		return
	}
	s.metrics.RecordJob(models.JobStatusComplete, elapsed.Seconds())
	s.metrics.AddCandidates(stats.Evaluated)

	logger.Info("synthesis job complete",
		zap.String("reference_race_id", job.ReferenceRaceID),
		zap.Int("fragments", stats.Fragments),
		zap.Int("chains", stats.Chains),
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("results", len(results)),
		zap.Duration("duration", elapsed),
	)
}

func (s *SynthesisService) run(ctx context.Context, job *models.SynthesisJob) ([]models.SynthesisResult, synthesis.Stats, error) {
	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}

	reference, err := s.races.GetByID(ctx, job.UserID, job.ReferenceRaceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, synthesis.Stats{}, errors.New("reference race no longer exists")
	}
	if err != nil {
		return nil, synthesis.Stats{}, err
	}

	box := toSpatial(job.BoundingBox)
	scope := ""
	if s.opts.OwnerCorpusOnly {
		scope = job.UserID
	}
	stored, err := s.races.ListInBox(ctx, box, reference.ID, scope)
	if err != nil {
		return nil, synthesis.Stats{}, err
	}
	corpus := make([]synthesis.CorpusTrack, len(stored))
	for i, r := range stored {
		corpus[i] = synthesis.CorpusTrack{ID: r.ID, Points: r.GpxData.Points}
	}

	candidates, stats, err := s.engine.Search(ctx, synthesis.Request{
		Reference:  reference.GpxData.Points,
		Box:        box,
		WindowSize: job.RollingWindow,
		MaxResults: job.MaxResults,
		Corpus:     corpus,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, stats, fmt.Errorf("synthesis timed out after %s", s.opts.JobTimeout)
		}
		return nil, stats, err
	}

	results := make([]models.SynthesisResult, len(candidates))
	for i, c := range candidates {
		results[i] = models.SynthesisResult{
			ID:                 uuid.NewString(),
			JobID:              job.ID,
			Rank:               i + 1,
			DistanceKm:         c.Metrics.DistanceKm,
			ElevationGainM:     c.Metrics.ElevationGainM,
			ElevationLossM:     c.Metrics.ElevationLossM,
			ITRAEffortDistance: c.Metrics.ITRAEffortDistance,
			SimilarityScore:    c.Score,
			Polyline:           spatial.EncodePolyline(toPath(c.Points)),
			Route:              models.RouteFromGpxPoints(c.Points),
		}
	}
	return results, stats, nil
}

func (s *SynthesisService) fail(ctx context.Context, job *models.SynthesisJob, cause error, elapsed time.Duration) {
	s.logger.Warn("synthesis job failed", zap.String("job_id", job.ID), zap.Error(cause))
	if err := s.jobs.MarkAsFailed(ctx, job.ID, cause.Error(), s.now().UTC()); err != nil {
		s.logger.Error("failed to mark job as failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	s.metrics.RecordJob(models.JobStatusFailed, elapsed.Seconds())
}

func toSpatial(b models.BoundingBox) spatial.BoundingBox {
	return spatial.BoundingBox{North: b.North, South: b.South, East: b.East, West: b.West}
}

func toPath(points []models.GpxPoint) []spatial.Point {
	path := make([]spatial.Point, len(points))
	for i, p := range points {
		path[i] = spatial.Point{Lat: p.Lat, Lon: p.Lon}
	}
	return path
}
