package storage

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/models"
)

// SourceActivity counts a source's upserts over a window.
type SourceActivity struct {
	Source   string `json:"source"`
	Inserted uint64 `json:"inserted"`
	Updated  uint64 `json:"updated"`
	// Overridden counts updates where the source did not have priority
	Overridden uint64 `json:"overridden"`
}

// UpsertEventRepository appends upsert audit events to ClickHouse
type UpsertEventRepository struct {
	db *EventLogDB
}

// NewUpsertEventRepository creates a new upsert event repository
func NewUpsertEventRepository(db *EventLogDB) *UpsertEventRepository {
	return &UpsertEventRepository{db: db}
}

// Record appends events in one batch.
func (r *UpsertEventRepository) Record(ctx context.Context, events ...*models.UpsertEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.PrepareBatch(ctx, `
		INSERT INTO upsert_events (
			event_id, project_uid, project_name, project_ticker, source,
			action, prefer_incoming, version, warnings, timestamp
		)
	`)
	if err != nil {
		return apperrors.NewPersistenceError("prepare upsert event batch", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.EventID,
			e.ProjectUID,
			e.ProjectName,
			e.ProjectTicker,
			e.Source,
			string(e.Action),
			e.PreferIncoming,
			e.Version,
			e.Warnings,
			e.Timestamp,
		); err != nil {
			return apperrors.NewPersistenceError("append upsert event", err)
		}
	}

	if err := batch.Send(); err != nil {
		return apperrors.NewPersistenceError("send upsert event batch", err)
	}
	return nil
}

// History returns a record's events, newest first.
func (r *UpsertEventRepository) History(ctx context.Context, projectUID string, limit int) ([]*models.UpsertEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, `
		SELECT event_id, project_uid, project_name, project_ticker, source,
			action, prefer_incoming, version, warnings, timestamp
		FROM upsert_events
		WHERE project_uid = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, projectUID, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("query upsert events", err)
	}
	defer rows.Close()

	var events []*models.UpsertEvent
	for rows.Next() {
		var e models.UpsertEvent
		var action string
		if err := rows.Scan(
			&e.EventID, &e.ProjectUID, &e.ProjectName, &e.ProjectTicker, &e.Source,
			&action, &e.PreferIncoming, &e.Version, &e.Warnings, &e.Timestamp,
		); err != nil {
			return nil, apperrors.NewPersistenceError("scan upsert event", err)
		}
		e.Action = models.UpsertAction(action)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate upsert events", err)
	}
	return events, nil
}

// ActivitySince summarises upserts per source since the given time.
func (r *UpsertEventRepository) ActivitySince(ctx context.Context, since time.Time) ([]SourceActivity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			source,
			countIf(action = 'inserted') AS inserted,
			countIf(action = 'updated') AS updated,
			countIf(action = 'updated' AND prefer_incoming = false) AS overridden
		FROM upsert_events
		WHERE timestamp >= ?
		GROUP BY source
		ORDER BY source
	`, since)
	if err != nil {
		return nil, apperrors.NewPersistenceError("query source activity", err)
	}
	defer rows.Close()

	var out []SourceActivity
	for rows.Next() {
		var a SourceActivity
		if err := rows.Scan(&a.Source, &a.Inserted, &a.Updated, &a.Overridden); err != nil {
			return nil, fmt.Errorf("failed to scan source activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
