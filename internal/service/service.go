// Package service holds the event scheduling rules: time conversion on the
// way in, access checks, change logging on update and localized rendering on
// the way out.
package service

import (
	"context"
	"log/slog"
	"time"

	"tzscheduler/internal/model"
)

// Store is the persistence the service needs. Implementations return
// *apperr.NotFoundError for missing records and *apperr.ConflictError when an
// update loses a version race.
type Store interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// UpdateEvent writes e if its stored version still equals expected, then
	// bumps e.Version and e.UpdatedAt.
	UpdateEvent(ctx context.Context, e *model.Event, expected int64) error
	ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error)

	CreateEventLog(ctx context.Context, l *model.EventLog) error
	ListEventLogs(ctx context.Context, eventID string, offset, limit int) ([]model.EventLog, error)
	CountEventLogs(ctx context.Context, eventID string) (int, error)

	UserNames(ctx context.Context, ids []string) (map[string]string, error)
}

// EventFilter selects events sharing at least one participant with UserIDs.
// Limit 0 means no limit.
type EventFilter struct {
	UserIDs []string
	From    *time.Time
	To      *time.Time
	Offset  int
	Limit   int
}

type Events struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Events)

// WithClock overrides the time source used for expiry checks and log stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Events) { s.now = now }
}

func NewEvents(st Store, logger *slog.Logger, opts ...Option) *Events {
	s := &Events{store: st, log: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}
