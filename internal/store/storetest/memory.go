// Package storetest provides an in-memory store for tests of the layers above
// Postgres.
package storetest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
	"tzscheduler/internal/service"
)

// Memory implements service.Store and service.AccountStore. Fields may be
// read or seeded directly between calls.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	Events map[string]model.Event
	Logs   []model.EventLog
	Users  []model.User
	Tokens map[string]*model.RefreshToken

	// LogErr, when set, fails every CreateEventLog.
	LogErr error
	// RaceOnce bumps the stored version right before the next UpdateEvent.
	RaceOnce bool
}

func New(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:    now,
		Events: map[string]model.Event{},
		Tokens: map[string]*model.RefreshToken{},
	}
}

// AddUser seeds a user without going through validation.
func (m *Memory) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users = append(m.Users, u)
}

// LogsFor returns the stored logs of one event in insertion order.
func (m *Memory) LogsFor(eventID string) []model.EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventLog
	for _, l := range m.Logs {
		if l.EventID == eventID {
			out = append(out, l)
		}
	}
	return out
}

func (m *Memory) CreateEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.CreatedAt, e.UpdatedAt = m.now().UTC(), m.now().UTC()
	m.Events[e.ID] = clone(*e)
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Events[id]
	if !ok {
		return nil, apperr.NotFound("Event not found")
	}
	c := clone(e)
	return &c, nil
}

func (m *Memory) UpdateEvent(_ context.Context, e *model.Event, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.Events[e.ID]
	if !ok {
		return apperr.NotFound("Event not found")
	}
	if m.RaceOnce {
		m.RaceOnce = false
		cur.Version++
		m.Events[e.ID] = cur
	}
	if cur.Version != expected {
		return apperr.Conflict("Event was modified concurrently, reload and retry")
	}
	e.Version = expected + 1
	e.UpdatedAt = m.now().UTC()
	m.Events[e.ID] = clone(*e)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, f service.EventFilter) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.Events {
		if !slices.ContainsFunc(e.Users, func(u string) bool { return slices.Contains(f.UserIDs, u) }) {
			continue
		}
		if f.From != nil && e.StartAtUTC.Before(*f.From) {
			continue
		}
		if f.To != nil && e.EndAtUTC.After(*f.To) {
			continue
		}
		out = append(out, clone(e))
	}
	slices.SortFunc(out, func(a, b model.Event) int {
		if c := a.StartAtUTC.Compare(b.StartAtUTC); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return window(out, f.Offset, f.Limit), nil
}

func (m *Memory) CreateEventLog(_ context.Context, l *model.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LogErr != nil {
		return m.LogErr
	}
	m.Logs = append(m.Logs, *l)
	return nil
}

func (m *Memory) ListEventLogs(_ context.Context, eventID string, offset, limit int) ([]model.EventLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventLog
	for _, l := range m.Logs {
		if l.EventID == eventID {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b model.EventLog) int {
		return b.TimestampUTC.Compare(a.TimestampUTC)
	})
	return window(out, offset, limit), nil
}

func (m *Memory) CountEventLogs(_ context.Context, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.Logs {
		if l.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UserNames(_ context.Context, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, u := range m.Users {
		if slices.Contains(ids, u.ID) {
			out[u.ID] = u.Name
		}
	}
	return out, nil
}

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.Users {
		if strings.EqualFold(x.Name, u.Name) {
			return apperr.Conflict("User already exists")
		}
	}
	u.CreatedAt, u.UpdatedAt = m.now().UTC(), m.now().UTC()
	m.Users = append(m.Users, *u)
	return nil
}

func (m *Memory) findUser(match func(model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (m *Memory) UserByName(_ context.Context, name string) (*model.User, error) {
	return m.findUser(func(u model.User) bool { return strings.EqualFold(u.Name, name) })
}

func (m *Memory) UserByID(_ context.Context, id string) (*model.User, error) {
	return m.findUser(func(u model.User) bool { return u.ID == id })
}

func (m *Memory) ListNonAdminUsers(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.Users {
		if !u.IsAdmin {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) CreateRefreshToken(_ context.Context, userID, hash string, exp time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.Tokens[hash] = &model.RefreshToken{ID: id, UserID: userID, TokenHash: hash, ExpiresAt: exp, CreatedAt: m.now()}
	return id, nil
}

func (m *Memory) RefreshTokenByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.Tokens[hash]
	if !ok {
		return nil, apperr.NotFound("Refresh token not found")
	}
	c := *rt
	return &c, nil
}

func (m *Memory) RotateRefreshToken(_ context.Context, oldID, userID, newHash string, exp time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	newID := uuid.NewString()
	var old *model.RefreshToken
	for _, rt := range m.Tokens {
		if rt.ID == oldID {
			old = rt
		}
	}
	if old == nil || old.Revoked {
		return "", apperr.Unauthenticated("Refresh token already used")
	}
	old.Revoked, old.ReplacedBy = true, &newID
	m.Tokens[newHash] = &model.RefreshToken{ID: newID, UserID: userID, TokenHash: newHash, ExpiresAt: exp, CreatedAt: m.now()}
	return newID, nil
}

func (m *Memory) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.Tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func clone(e model.Event) model.Event {
	e.Users = slices.Clone(e.Users)
	return e
}

func window[T any](s []T, offset, limit int) []T {
	if offset >= len(s) {
		return nil
	}
	s = s[offset:]
	if limit > 0 && limit < len(s) {
		s = s[:limit]
	}
	return s
}

var (
	_ service.Store        = (*Memory)(nil)
	_ service.AccountStore = (*Memory)(nil)
)
