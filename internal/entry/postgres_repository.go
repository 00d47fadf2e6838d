package entry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tohomedistance/tohomedistance/internal/routing"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		id                       TEXT PRIMARY KEY,
		title                    TEXT NOT NULL,
		api_key                  TEXT NOT NULL,
		device_tracker_entity_id TEXT NOT NULL,
		sensor_entity_id         TEXT NOT NULL UNIQUE,
		home_zone_entity_id      TEXT NOT NULL,
		home_longitude           TEXT NOT NULL DEFAULT '',
		home_latitude            TEXT NOT NULL DEFAULT '',
		mode                     SMALLINT NOT NULL,
		update_interval_minutes  INTEGER NOT NULL,
		trigger                  TEXT NOT NULL,
		city                     TEXT NOT NULL DEFAULT '',
		created_at               TIMESTAMPTZ NOT NULL
	)
`

const selectColumns = `
	id, title, api_key, device_tracker_entity_id, sensor_entity_id,
	home_zone_entity_id, home_longitude, home_latitude,
	mode, update_interval_minutes, trigger, city, created_at
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL entry repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the entries table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM entries WHERE id = $1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// List retrieves all entries, oldest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM entries ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Create stores a new entry.
func (r *PostgresRepository) Create(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO entries (
			id, title, api_key, device_tracker_entity_id, sensor_entity_id,
			home_zone_entity_id, home_longitude, home_latitude,
			mode, update_interval_minutes, trigger, city, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.Title,
		e.APIKey,
		e.DeviceTrackerEntityID,
		e.SensorEntityID,
		e.HomeZoneEntityID,
		e.HomeLongitude,
		e.HomeLatitude,
		int(e.Mode),
		e.UpdateIntervalMinutes,
		string(e.Trigger),
		e.City,
		e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Delete removes an entry by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e       Entry
		mode    int
		trigger string
	)
	err := row.Scan(
		&e.ID,
		&e.Title,
		&e.APIKey,
		&e.DeviceTrackerEntityID,
		&e.SensorEntityID,
		&e.HomeZoneEntityID,
		&e.HomeLongitude,
		&e.HomeLatitude,
		&mode,
		&e.UpdateIntervalMinutes,
		&trigger,
		&e.City,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Mode = routing.Mode(mode)
	e.Trigger = Trigger(trigger)
	return &e, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
