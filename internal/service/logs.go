package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"tzscheduler/internal/access"
	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
	"tzscheduler/internal/timeconv"
	"tzscheduler/internal/validation"
)

const (
	DefaultLogLimit = 20
	MaxLogLimit     = 100

	// keeps (page-1)*limit inside int
	maxLogPage = math.MaxInt / MaxLogLimit
)

// LogQuery pages through an event's change history. Page and Limit are
// clamped; callers substitute DefaultLogLimit when none was given.
type LogQuery struct {
	Page           int
	Limit          int
	ViewerTimezone string
}

// Logs returns an event's change history, newest first, with every instant
// shown in both UTC and the viewer's zone.
func (s *Events) Logs(ctx context.Context, p model.Principal, id string, q LogQuery) (*LogPage, error) {
	if err := validation.EventID(id); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, e, "event logs"); err != nil {
		return nil, err
	}

	page := min(max(q.Page, 1), maxLogPage)
	limit := min(max(q.Limit, 1), MaxLogLimit)

	var (
		logs  []model.EventLog
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = s.store.ListEventLogs(gctx, id, (page-1)*limit, limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountEventLogs(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load event logs: %w", err)
	}

	actors := make([]string, 0, len(logs))
	for _, l := range logs {
		if !slices.Contains(actors, l.ChangedBy) {
			actors = append(actors, l.ChangedBy)
		}
	}
	names, err := s.names(ctx, actors)
	if err != nil {
		return nil, err
	}

	r := newRenderer(q.ViewerTimezone)
	data := make([]LogEntryView, len(logs))
	for i, l := range logs {
		changes := make([]ChangeView, len(l.Changes))
		for j, c := range l.Changes {
			changes[j] = ChangeView{Field: c.Field, Before: r.value(c.Before), After: r.value(c.After)}
		}
		data[i] = LogEntryView{
			ID:           l.ID,
			Event:        l.EventID,
			ChangedBy:    newActor(l.ChangedBy, names),
			Changes:      changes,
			TimestampUTC: r.dual(l.TimestampUTC),
		}
	}

	return &LogPage{
		Data: data,
		Pagination: Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

// renderer falls back to the UTC ISO string when the viewer zone is missing
// or unknown.
type renderer struct {
	loc *time.Location
}

func newRenderer(tz string) renderer {
	if tz == "" {
		return renderer{}
	}
	loc, err := timeconv.LoadLocation(tz)
	if err != nil {
		return renderer{}
	}
	return renderer{loc: loc}
}

func (r renderer) dual(t time.Time) DualTime {
	d := DualTime{UTC: timeconv.ISO(t), Local: timeconv.ISO(t)}
	if r.loc != nil {
		d.Local = t.In(r.loc).Format(timeconv.DisplayLayout)
	}
	return d
}

func (r renderer) value(v any) any {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return r.dual(x)
	case []string:
		return slices.Clone(x)
	default:
		return v
	}
}
