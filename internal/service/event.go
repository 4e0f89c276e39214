package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"tzscheduler/internal/access"
	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
	"tzscheduler/internal/timeconv"
	"tzscheduler/internal/validation"
)

const (
	defaultListLimit = 20
	MaxListPage      = 10000
)

// Create converts the local window to UTC and stores a new event.
func (s *Events) Create(ctx context.Context, p model.Principal, in model.CreateEventInput) (string, error) {
	if p.UserID == "" {
		return "", apperr.Unauthenticated("Authentication required")
	}
	if !p.IsAdmin {
		return "", apperr.Forbidden("Admin privileges required")
	}

	conv := converter{tz: in.EventTimezone}
	start := conv.toUTC("startLocal", in.StartLocal)
	end := conv.toUTC("endLocal", in.EndLocal)
	if err := conv.err(); err != nil {
		return "", err
	}

	if !end.After(start) {
		return "", apperr.ErrInvalidRange
	}
	if !end.After(s.now()) {
		return "", apperr.ErrAlreadyExpired
	}

	e := &model.Event{
		ID:            uuid.New().String(),
		Users:         slices.Clone(in.Users),
		EventTimezone: in.EventTimezone,
		StartAtUTC:    start,
		EndAtUTC:      end,
		CreatedBy:     p.UserID,
		Version:       1,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	s.log.InfoContext(ctx, "event created", "event_id", e.ID, "created_by", p.UserID, "participants", len(e.Users))
	return e.ID, nil
}

// Update applies a partial patch and records one change log for the deltas.
func (s *Events) Update(ctx context.Context, p model.Principal, id string, patch model.EventPatch) (string, error) {
	if p.UserID == "" {
		return "", apperr.Unauthenticated("Authentication required")
	}
	if err := validation.EventID(id); err != nil {
		return "", err
	}
	if patch.Empty() {
		return "", apperr.Validation("", `"value" must have at least 1 key`)
	}

	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return "", err
	}
	if err := access.Require(p, e, "this event"); err != nil {
		return "", err
	}

	tz := e.EventTimezone
	if patch.EventTimezone != nil {
		tz = *patch.EventTimezone
	}
	conv := converter{tz: tz}
	if patch.EventTimezone != nil {
		conv.checkZone()
	}

	// deltas are taken from the pre-mutation snapshot
	var changes []model.Change
	start, end := e.StartAtUTC, e.EndAtUTC
	if patch.StartLocal != nil {
		if t := conv.toUTC("startLocal", *patch.StartLocal); !t.IsZero() && !t.Equal(start) {
			changes = append(changes, model.Change{Field: model.FieldStartAtUTC, Before: start, After: t})
			start = t
		}
	}
	if patch.EndLocal != nil {
		if t := conv.toUTC("endLocal", *patch.EndLocal); !t.IsZero() && !t.Equal(end) {
			changes = append(changes, model.Change{Field: model.FieldEndAtUTC, Before: end, After: t})
			end = t
		}
	}
	if err := conv.err(); err != nil {
		return "", err
	}
	if patch.EventTimezone != nil && *patch.EventTimezone != e.EventTimezone {
		changes = append(changes, model.Change{Field: model.FieldEventTimezone, Before: e.EventTimezone, After: *patch.EventTimezone})
	}
	if patch.Users != nil && !slices.Equal(patch.Users, e.Users) {
		changes = append(changes, model.Change{Field: model.FieldUsers, Before: slices.Clone(e.Users), After: slices.Clone(patch.Users)})
	}

	if len(changes) == 0 {
		return e.ID, nil
	}
	if (!start.Equal(e.StartAtUTC) || !end.Equal(e.EndAtUTC)) && !end.After(start) {
		return "", apperr.ErrInvalidRange
	}

	expected := e.Version
	e.StartAtUTC, e.EndAtUTC = start, end
	if patch.EventTimezone != nil {
		e.EventTimezone = *patch.EventTimezone
	}
	if patch.Users != nil {
		e.Users = slices.Clone(patch.Users)
	}
	if err := s.store.UpdateEvent(ctx, e, expected); err != nil {
		return "", fmt.Errorf("update event: %w", err)
	}

	s.appendLog(ctx, &model.EventLog{
		ID:           uuid.New().String(),
		EventID:      e.ID,
		ChangedBy:    p.UserID,
		Changes:      changes,
		TimestampUTC: s.now().UTC(),
	})
	return e.ID, nil
}

// appendLog is best effort: the event write has already committed, so a
// failure here is logged and not returned.
func (s *Events) appendLog(ctx context.Context, l *model.EventLog) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.CreateEventLog(ctx, l); err != nil {
		s.log.ErrorContext(ctx, "event log append failed",
			"event_id", l.EventID, "changed_by", l.ChangedBy, "changes", len(l.Changes), "err", err)
		return
	}
	s.log.InfoContext(ctx, "event updated", "event_id", l.EventID, "changed_by", l.ChangedBy, "changes", len(l.Changes))
}

// List returns events sharing a participant with the filter, start ascending.
func (s *Events) List(ctx context.Context, p model.Principal, q model.ListEventsQuery) ([]EventView, error) {
	if p.UserID == "" {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	if q.Filter == nil {
		return nil, apperr.Validation("userId", `"userId" is required`)
	}
	if !access.CanList(p, q.Filter) {
		return nil, apperr.Forbidden("Forbidden: cannot list events of other users")
	}

	tz := q.ViewerTimezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := timeconv.LoadLocation(tz); err != nil {
		return nil, apperr.Validation("viewerTimezone", "unknown timezone %q", tz)
	}

	f := EventFilter{UserIDs: q.Filter.IDs(), From: q.From, To: q.To}
	if q.Paginated() {
		page, limit := max(q.Page, 1), q.Limit
		if page > MaxListPage {
			return nil, apperr.Validation("page", `"page" must be less than or equal to %d`, MaxListPage)
		}
		if limit <= 0 {
			limit = defaultListLimit
		}
		f.Offset, f.Limit = (page-1)*limit, limit
	}

	events, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	names, err := s.names(ctx, participantIDs(events))
	if err != nil {
		return nil, err
	}

	out := make([]EventView, len(events))
	for i := range events {
		out[i] = newEventView(&events[i], names)
		if err := out[i].localize(tz); err != nil {
			return nil, fmt.Errorf("render event %s: %w", events[i].ID, err)
		}
	}
	return out, nil
}

// Get returns one event with participant names. A viewer timezone that does
// not resolve only drops the local renderings.
func (s *Events) Get(ctx context.Context, p model.Principal, id, viewerTZ string) (*EventView, error) {
	if p.UserID == "" {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	if err := validation.EventID(id); err != nil {
		return nil, err
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, e, "this event"); err != nil {
		return nil, err
	}

	names, err := s.names(ctx, e.Users)
	if err != nil {
		return nil, err
	}
	v := newEventView(e, names)
	if viewerTZ != "" {
		if err := v.localize(viewerTZ); err != nil {
			s.log.WarnContext(ctx, "timezone conversion failed", "event_id", id, "tz", viewerTZ, "err", err)
		}
	}
	return &v, nil
}

func (s *Events) names(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	names, err := s.store.UserNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	return names, nil
}

func participantIDs(events []model.Event) []string {
	seen := map[string]bool{}
	var ids []string
	for _, e := range events {
		for _, u := range e.Users {
			if !seen[u] {
				seen[u] = true
				ids = append(ids, u)
			}
		}
	}
	return ids
}

// converter turns local strings into instants and gathers every failure into
// one ValidationError.
type converter struct {
	tz      string
	details []apperr.Detail
	zoneBad bool
}

func (c *converter) checkZone() {
	if _, err := timeconv.LoadLocation(c.tz); err != nil {
		c.badZone()
	}
}

func (c *converter) badZone() {
	if c.zoneBad {
		return
	}
	c.zoneBad = true
	c.details = append(c.details, apperr.Detail{
		Message: fmt.Sprintf("unknown timezone %q", c.tz),
		Path:    []any{model.FieldEventTimezone},
	})
}

func (c *converter) toUTC(field, local string) time.Time {
	t, err := timeconv.LocalToUTC(local, c.tz)
	switch {
	case err == nil:
		return t
	case errors.Is(err, timeconv.ErrInvalidTimezone):
		c.badZone()
	default:
		c.details = append(c.details, apperr.Detail{
			Message: fmt.Sprintf("%q must be a local date-time like 2006-01-02T15:04:05", field),
			Path:    []any{field},
		})
	}
	return time.Time{}
}

func (c *converter) err() error {
	if len(c.details) == 0 {
		return nil
	}
	return &apperr.ValidationError{Details: c.details}
}
