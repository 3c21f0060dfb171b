package models

import "time"

// BoundingBox is a lat/lon rectangle in degrees
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// JobStatus constants
const (
	JobStatusQueued   = "queued"
	JobStatusRunning  = "running"
	JobStatusComplete = "complete"
	JobStatusFailed   = "failed"
)

// SynthesisJob is an asynchronous route search
type SynthesisJob struct {
	ID              string            `json:"id" db:"id"`
	UserID          string            `json:"user_id" db:"user_id"`
	ReferenceRaceID string            `json:"reference_race_id" db:"reference_race_id"`
	BoundingBox     BoundingBox       `json:"bounding_box" db:"-"`
	RollingWindow   int               `json:"rolling_window" db:"rolling_window"`
	MaxResults      int               `json:"max_results" db:"max_results"`
	Status          string            `json:"status" db:"status"` // queued, running, complete, failed
	Error           string            `json:"error,omitempty" db:"error_message"`
	Results         []SynthesisResult `json:"results"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Terminal reports whether the job will not change any more
func (j *SynthesisJob) Terminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusFailed
}

// SynthesisResult is one candidate route of a job
type SynthesisResult struct {
	ID                 string  `json:"id" db:"id"`
	JobID              string  `json:"-" db:"job_id"`
	Rank               int     `json:"rank" db:"rank"`
	DistanceKm         float64 `json:"distance_km" db:"distance_km"`
	ElevationGainM     float64 `json:"elevation_gain_m" db:"elevation_gain_m"`
	ElevationLossM     float64 `json:"elevation_loss_m" db:"elevation_loss_m"`
	ITRAEffortDistance float64 `json:"itra_effort_distance" db:"itra_effort_distance"`
	SimilarityScore    float64 `json:"similarity_score" db:"similarity_score"`
	Polyline           string  `json:"polyline" db:"polyline"`
	Route              Route   `json:"route" db:"route_json"`
}
