package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/infrastructure/database"
)

// WorkerRecord is the persisted status row for one served entry.
type WorkerRecord struct {
	Entry     string    `json:"entry"`
	Driver    string    `json:"driver"`
	Status    string    `json:"status"`
	PID       int       `json:"pid"`
	Restarts  int       `json:"restarts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceEvent is one persisted lifecycle transition.
type DeviceEvent struct {
	Entry      string    `json:"entry"`
	State      string    `json:"state"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StatusRepository persists worker status and device lifecycle events.
// Rows survive parent restarts so an operator can inspect what happened
// to a worker that is no longer running.
type StatusRepository struct {
	db *database.DB
}

// NewStatusRepository wraps the given database.
func NewStatusRepository(db *database.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// UpsertWorker writes the current status row for an entry, replacing any
// previous row.
func (r *StatusRepository) UpsertWorker(ctx context.Context, rec WorkerRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO worker_status (entry, driver, status, pid, restarts, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(entry) DO UPDATE SET
			driver = excluded.driver,
			status = excluded.status,
			pid = excluded.pid,
			restarts = excluded.restarts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		rec.Entry, rec.Driver, rec.Status, rec.PID, rec.Restarts, nullable(rec.LastError),
	)
	if err != nil {
		return fmt.Errorf("upserting worker status for %q: %w", rec.Entry, err)
	}
	return nil
}

// RecordEvent appends one lifecycle event for an entry.
func (r *StatusRepository) RecordEvent(ctx context.Context, entry, state, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_events (entry, state, detail) VALUES (?, ?, ?)`,
		entry, state, nullable(detail),
	)
	if err != nil {
		return fmt.Errorf("recording event for %q: %w", entry, err)
	}
	return nil
}

// Worker returns the status row for one entry. A missing row fails with
// an error wrapping device.ErrNotFound.
func (r *StatusRepository) Worker(ctx context.Context, entry string) (WorkerRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entry, driver, status, COALESCE(pid, 0), restarts, COALESCE(last_error, ''), updated_at
		FROM worker_status WHERE entry = ?`, entry)

	var rec WorkerRecord
	err := row.Scan(&rec.Entry, &rec.Driver, &rec.Status, &rec.PID, &rec.Restarts, &rec.LastError, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkerRecord{}, fmt.Errorf("%w: worker %q", device.ErrNotFound, entry)
	}
	if err != nil {
		return WorkerRecord{}, fmt.Errorf("reading worker status for %q: %w", entry, err)
	}
	return rec, nil
}

// Workers returns all status rows ordered by entry name.
func (r *StatusRepository) Workers(ctx context.Context) ([]WorkerRecord, error) {
	rows, err := r.db.DB.QueryContext(ctx, `
		SELECT entry, driver, status, COALESCE(pid, 0), restarts, COALESCE(last_error, ''), updated_at
		FROM worker_status ORDER BY entry`)
	if err != nil {
		return nil, fmt.Errorf("listing worker status: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []WorkerRecord
	for rows.Next() {
		var rec WorkerRecord
		if err := rows.Scan(&rec.Entry, &rec.Driver, &rec.Status, &rec.PID,
			&rec.Restarts, &rec.LastError, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning worker status: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing worker status: %w", err)
	}
	return out, nil
}

// Events returns the most recent lifecycle events for an entry, newest
// first, capped at limit.
func (r *StatusRepository) Events(ctx context.Context, entry string, limit int) ([]DeviceEvent, error) {
	rows, err := r.db.DB.QueryContext(ctx, `
		SELECT entry, state, COALESCE(detail, ''), occurred_at
		FROM device_events WHERE entry = ?
		ORDER BY id DESC LIMIT ?`, entry, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events for %q: %w", entry, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []DeviceEvent
	for rows.Next() {
		var ev DeviceEvent
		if err := rows.Scan(&ev.Entry, &ev.State, &ev.Detail, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events for %q: %w", entry, err)
	}
	return out, nil
}

// nullable maps an empty string to NULL so COALESCE reads stay clean.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
