package model

import "time"

type User struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"isAdmin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Principal is the authenticated caller; decoded per request, never stored.
type Principal struct {
	UserID  string
	IsAdmin bool
	Name    string
}

type Event struct {
	ID            string    `json:"_id"`
	Users         []string  `json:"users"`
	EventTimezone string    `json:"eventTimezone"`
	StartAtUTC    time.Time `json:"startAtUTC"`
	EndAtUTC      time.Time `json:"endAtUTC"`
	CreatedBy     string    `json:"createdBy"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasParticipant reports whether uid is listed on the event.
func (e *Event) HasParticipant(uid string) bool {
	for _, u := range e.Users {
		if u == uid {
			return true
		}
	}
	return false
}

// Field names recorded in change logs.
const (
	FieldStartAtUTC    = "startAtUTC"
	FieldEndAtUTC      = "endAtUTC"
	FieldEventTimezone = "eventTimezone"
	FieldUsers         = "users"
)

// Change is one {field, before, after} delta. Before and After hold
// time.Time for instants, []string for user lists and string otherwise.
type Change struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

type EventLog struct {
	ID           string    `json:"_id"`
	EventID      string    `json:"event"`
	ChangedBy    string    `json:"changedBy"`
	Changes      []Change  `json:"changes"`
	TimestampUTC time.Time `json:"timestampUTC"`
}

// CreateEventInput is a validated creation payload.
type CreateEventInput struct {
	Users         []string `json:"users"`
	EventTimezone string   `json:"eventTimezone"`
	StartLocal    string   `json:"startLocal"`
	EndLocal      string   `json:"endLocal"`
}

// EventPatch is a validated partial update; nil fields are left unchanged.
type EventPatch struct {
	Users         []string `json:"users,omitempty"`
	EventTimezone *string  `json:"eventTimezone,omitempty"`
	StartLocal    *string  `json:"startLocal,omitempty"`
	EndLocal      *string  `json:"endLocal,omitempty"`
}

// Empty reports whether the patch carries no field at all.
func (p EventPatch) Empty() bool {
	return p.Users == nil && p.EventTimezone == nil && p.StartLocal == nil && p.EndLocal == nil
}

type ListEventsQuery struct {
	Filter         ParticipantFilter
	From           *time.Time
	To             *time.Time
	Page           int
	Limit          int
	ViewerTimezone string
}

// Paginated reports whether the caller asked for a page window.
func (q ListEventsQuery) Paginated() bool {
	return q.Page > 0 || q.Limit > 0
}

type LoginInput struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	IsAdmin  bool   `json:"isAdmin"`
	Password string `json:"password"`
}

// RefreshToken is a stored refresh credential. Only the hash is kept.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}

// Usable reports whether the token may still be exchanged at now.
func (rt *RefreshToken) Usable(now time.Time) bool {
	return !rt.Revoked && now.Before(rt.ExpiresAt)
}
