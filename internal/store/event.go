package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
	"tzscheduler/internal/service"
)

const eventCols = `id, users, event_timezone, start_at_utc, end_at_utc,
	created_by, version, created_at, updated_at`

// scanEvent reads one row; timestamps come back in UTC regardless of the
// session zone.
func scanEvent(row pgx.Row, e *model.Event) error {
	err := row.Scan(&e.ID, &e.Users, &e.EventTimezone, &e.StartAtUTC, &e.EndAtUTC,
		&e.CreatedBy, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return err
	}
	e.StartAtUTC, e.EndAtUTC = e.StartAtUTC.UTC(), e.EndAtUTC.UTC()
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (id, users, event_timezone, start_at_utc, end_at_utc, created_by, version)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING created_at, updated_at`,
		e.ID, e.Users, e.EventTimezone, e.StartAtUTC, e.EndAtUTC, e.CreatedBy, e.Version,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return mapErr(err, "Event")
	}
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e := &model.Event{}
	err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM events WHERE id = $1`, id), e)
	if err != nil {
		return nil, mapErr(err, "Event")
	}
	return e, nil
}

// UpdateEvent is a compare-and-swap on version.
func (s *Store) UpdateEvent(ctx context.Context, e *model.Event, expected int64) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE events
		 SET users = $2, event_timezone = $3, start_at_utc = $4, end_at_utc = $5,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $6
		 RETURNING version, updated_at`,
		e.ID, e.Users, e.EventTimezone, e.StartAtUTC, e.EndAtUTC, expected,
	).Scan(&e.Version, &e.UpdatedAt)
	if err == nil {
		e.UpdatedAt = e.UpdatedAt.UTC()
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update event %s: %w", e.ID, err)
	}

	// no row matched: either gone or someone else got there first
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update event %s: %w", e.ID, err)
	}
	if !exists {
		return apperr.NotFound("Event not found")
	}
	return apperr.Conflict("Event was modified concurrently, reload and retry")
}

func (s *Store) ListEvents(ctx context.Context, f service.EventFilter) ([]model.Event, error) {
	q := `SELECT ` + eventCols + ` FROM events WHERE users && $1::uuid[]`
	args := []any{f.UserIDs}

	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(` AND start_at_utc >= $%d`, len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(` AND end_at_utc <= $%d`, len(args))
	}
	q += ` ORDER BY start_at_utc, id`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
