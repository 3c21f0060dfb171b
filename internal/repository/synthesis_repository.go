package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/voltplatform/volt-backend/internal/database"
	"github.com/voltplatform/volt-backend/internal/models"
)

// SynthesisRepository handles database operations for synthesis jobs and results
type SynthesisRepository struct {
	db *sql.DB
}

// NewSynthesisRepository creates a new synthesis repository
func NewSynthesisRepository(db *sql.DB) *SynthesisRepository {
	return &SynthesisRepository{db: db}
}

const jobColumns = `id, user_id, reference_race_id, bbox_north, bbox_south, bbox_east, bbox_west,
	rolling_window, max_results, status, error_message, created_at, started_at, completed_at`

// CreateJob inserts a new job
func (r *SynthesisRepository) CreateJob(ctx context.Context, job *models.SynthesisJob) error {
	query := `
		INSERT INTO synthesis_jobs (
			id, user_id, reference_race_id, bbox_north, bbox_south, bbox_east, bbox_west,
			rolling_window, max_results, status, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.ReferenceRaceID,
		job.BoundingBox.North,
		job.BoundingBox.South,
		job.BoundingBox.East,
		job.BoundingBox.West,
		job.RollingWindow,
		job.MaxResults,
		job.Status,
		job.Error,
		toMillis(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create synthesis job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID without its results
func (r *SynthesisRepository) GetJob(ctx context.Context, id string) (*models.SynthesisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM synthesis_jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get synthesis job: %w", err)
	}
	return job, nil
}

// ListByStatus retrieves jobs in any of the given statuses, oldest first
func (r *SynthesisRepository) ListByStatus(ctx context.Context, statuses ...string) ([]*models.SynthesisJob, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + jobColumns + ` FROM synthesis_jobs WHERE status IN (?` +
		repeatPlaceholders(len(statuses)-1) + `) ORDER BY created_at, id`
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list synthesis jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SynthesisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan synthesis job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

// MarkAsRunning claims a queued job. It reports false when the job is not
// queued, e.g. another worker already took it or it has finished.
func (r *SynthesisRepository) MarkAsRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE synthesis_jobs
		SET status = ?, started_at = ?, error_message = ''
		WHERE id = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query, models.JobStatusRunning, toMillis(at), id, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark job as running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark job as running: %w", err)
	}
	return n == 1, nil
}

// RequeueRunning puts jobs interrupted by a previous shutdown back in the queued state
func (r *SynthesisRepository) RequeueRunning(ctx context.Context) (int64, error) {
	query := `UPDATE synthesis_jobs SET status = ?, started_at = NULL WHERE status = ?`
	res, err := r.db.ExecContext(ctx, query, models.JobStatusQueued, models.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue running jobs: %w", err)
	}
	return res.RowsAffected()
}

// Complete stores the ranked results and marks a running job complete in one
// transaction. A job that is not running is left untouched (ErrJobNotRunning).
func (r *SynthesisRepository) Complete(ctx context.Context, id string, results []models.SynthesisResult, at time.Time) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		query := `UPDATE synthesis_jobs SET status = ?, completed_at = ?, error_message = '' WHERE id = ? AND status = ?`
		res, err := tx.ExecContext(ctx, query, models.JobStatusComplete, toMillis(at), id, models.JobStatusRunning)
		if err != nil {
			return fmt.Errorf("failed to mark job as complete: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to mark job as complete: %w", err)
		} else if n == 0 {
			return ErrJobNotRunning
		}

		// a re-run after restart replaces any partial results
		if _, err := tx.ExecContext(ctx, "DELETE FROM synthesis_results WHERE job_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear synthesis results: %w", err)
		}

		insert := `
			INSERT INTO synthesis_results (
				id, job_id, rank, distance_km, elevation_gain_m, elevation_loss_m,
				itra_effort_distance, similarity_score, polyline, route_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, res := range results {
			routeJSON, err := json.Marshal(res.Route)
			if err != nil {
				return fmt.Errorf("failed to encode route: %w", err)
			}
			_, err = tx.ExecContext(ctx, insert,
				res.ID,
				id,
				res.Rank,
				res.DistanceKm,
				res.ElevationGainM,
				res.ElevationLossM,
				res.ITRAEffortDistance,
				res.SimilarityScore,
				res.Polyline,
				string(routeJSON),
			)
			if err != nil {
				return fmt.Errorf("failed to insert synthesis result: %w", err)
			}
		}
		return nil
	})
}

// MarkAsFailed marks an unfinished job as failed with an error message.
// Completed jobs keep their results.
func (r *SynthesisRepository) MarkAsFailed(ctx context.Context, id string, errorMessage string, at time.Time) error {
	query := `
		UPDATE synthesis_jobs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND status IN (?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, models.JobStatusFailed, toMillis(at), errorMessage, id,
		models.JobStatusQueued, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job as failed: %w", err)
	}
	return nil
}

// ListResults retrieves a job's results in rank order
func (r *SynthesisRepository) ListResults(ctx context.Context, jobID string) ([]models.SynthesisResult, error) {
	query := `
		SELECT id, job_id, rank, distance_km, elevation_gain_m, elevation_loss_m,
			itra_effort_distance, similarity_score, polyline, route_json
		FROM synthesis_results
		WHERE job_id = ?
		ORDER BY rank
	`
	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list synthesis results: %w", err)
	}
	defer rows.Close()

	results := []models.SynthesisResult{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

// GetResult retrieves one result of a job
func (r *SynthesisRepository) GetResult(ctx context.Context, jobID, resultID string) (*models.SynthesisResult, error) {
	query := `
		SELECT id, job_id, rank, distance_km, elevation_gain_m, elevation_loss_m,
			itra_effort_distance, similarity_score, polyline, route_json
		FROM synthesis_results
		WHERE job_id = ? AND id = ?
	`
	res, err := scanResult(r.db.QueryRowContext(ctx, query, jobID, resultID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func scanJob(row rowScanner) (*models.SynthesisJob, error) {
	job := &models.SynthesisJob{Results: []models.SynthesisResult{}}
	var createdAt int64
	var startedAt, completedAt sql.NullInt64
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.ReferenceRaceID,
		&job.BoundingBox.North,
		&job.BoundingBox.South,
		&job.BoundingBox.East,
		&job.BoundingBox.West,
		&job.RollingWindow,
		&job.MaxResults,
		&job.Status,
		&job.Error,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.CreatedAt = fromMillis(createdAt)
	if startedAt.Valid {
		t := fromMillis(startedAt.Int64)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		job.CompletedAt = &t
	}
	return job, nil
}

func scanResult(row rowScanner) (*models.SynthesisResult, error) {
	res := &models.SynthesisResult{}
	var routeJSON string
	err := row.Scan(
		&res.ID,
		&res.JobID,
		&res.Rank,
		&res.DistanceKm,
		&res.ElevationGainM,
		&res.ElevationLossM,
		&res.ITRAEffortDistance,
		&res.SimilarityScore,
		&res.Polyline,
		&routeJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan synthesis result: %w", err)
	}

	if err := json.Unmarshal([]byte(routeJSON), &res.Route); err != nil {
		return nil, fmt.Errorf("failed to decode route: %w", err)
	}
	return res, nil
}
