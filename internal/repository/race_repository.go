package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/spatial"
)

// RaceRepository handles database operations for races
type RaceRepository struct {
	db *sql.DB
}

// NewRaceRepository creates a new race repository
func NewRaceRepository(db *sql.DB) *RaceRepository {
	return &RaceRepository{db: db}
}

const raceColumns = `id, user_id, name, points_json, distance_km, elevation_gain_m, elevation_loss_m,
	itra_effort_distance, min_lat, max_lat, min_lon, max_lon, created_at`

// Create inserts a race with its points and raw metrics
func (r *RaceRepository) Create(ctx context.Context, race *models.Race) error {
	pointsJSON, err := json.Marshal(race.GpxData)
	if err != nil {
		return fmt.Errorf("failed to encode race points: %w", err)
	}

	query := `
		INSERT INTO races (
			id, user_id, name, points_json, point_count, distance_km, elevation_gain_m,
			elevation_loss_m, itra_effort_distance, min_lat, max_lat, min_lon, max_lon, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		race.ID,
		race.UserID,
		race.Name,
		string(pointsJSON),
		len(race.GpxData.Points),
		race.DistanceKm,
		race.ElevationGainM,
		race.ElevationLossM,
		race.ITRAEffortDistance,
		race.MinLat,
		race.MaxLat,
		race.MinLon,
		race.MaxLon,
		toMillis(race.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create race: %w", err)
	}
	return nil
}

// GetByID retrieves a race owned by userID
func (r *RaceRepository) GetByID(ctx context.Context, userID, id string) (*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id = ? AND user_id = ?`

	race, err := scanRace(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return race, nil
}

// ListByUser retrieves all races of a user, newest first
func (r *RaceRepository) ListByUser(ctx context.Context, userID string) ([]*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE user_id = ? ORDER BY created_at DESC, id`
	return r.list(ctx, query, userID)
}

// ListInBox retrieves races whose extent overlaps the box, excluding one
// race id. An empty userID searches every user's races.
func (r *RaceRepository) ListInBox(ctx context.Context, box spatial.BoundingBox, excludeID, userID string) ([]*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races
		WHERE min_lat <= ? AND max_lat >= ? AND min_lon <= ? AND max_lon >= ? AND id != ?`
	args := []interface{}{box.North, box.South, box.East, box.West, excludeID}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY id"

	return r.list(ctx, query, args...)
}

// Delete removes a race owned by userID
func (r *RaceRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM races WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete race: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RaceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Race, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	defer rows.Close()

	races := []*models.Race{}
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		races = append(races, race)
	}
	return races, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRace(row rowScanner) (*models.Race, error) {
	race := &models.Race{}
	var pointsJSON string
	var createdAt int64
	err := row.Scan(
		&race.ID,
		&race.UserID,
		&race.Name,
		&pointsJSON,
		&race.DistanceKm,
		&race.ElevationGainM,
		&race.ElevationLossM,
		&race.ITRAEffortDistance,
		&race.MinLat,
		&race.MaxLat,
		&race.MinLon,
		&race.MaxLon,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(pointsJSON), &race.GpxData); err != nil {
		return nil, fmt.Errorf("failed to decode race points: %w", err)
	}
	race.CreatedAt = fromMillis(createdAt)
	return race, nil
}
