package service

import (
	"time"

	"tzscheduler/internal/model"
	"tzscheduler/internal/timeconv"
)

// Participant is a user reference with its display name resolved.
type Participant struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// EventView is an event as returned to callers: participants resolved and,
// when a viewer timezone applies, each instant rendered in it.
type EventView struct {
	ID            string        `json:"_id"`
	Users         []Participant `json:"users"`
	EventTimezone string        `json:"eventTimezone"`
	StartAtUTC    time.Time     `json:"startAtUTC"`
	EndAtUTC      time.Time     `json:"endAtUTC"`
	CreatedBy     string        `json:"createdBy"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`

	StartLocal     string `json:"startLocal,omitempty"`
	EndLocal       string `json:"endLocal,omitempty"`
	CreatedAtLocal string `json:"createdAtLocal,omitempty"`
	UpdatedAtLocal string `json:"updatedAtLocal,omitempty"`
}

func newEventView(e *model.Event, names map[string]string) EventView {
	users := make([]Participant, len(e.Users))
	for i, id := range e.Users {
		users[i] = Participant{ID: id, Name: names[id]}
	}
	return EventView{
		ID:            e.ID,
		Users:         users,
		EventTimezone: e.EventTimezone,
		StartAtUTC:    e.StartAtUTC,
		EndAtUTC:      e.EndAtUTC,
		CreatedBy:     e.CreatedBy,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// localize fills the *Local fields. On error v is left untouched.
func (v *EventView) localize(tz string) error {
	loc, err := timeconv.LoadLocation(tz)
	if err != nil {
		return err
	}
	render := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(loc).Format(timeconv.DisplayLayout)
	}
	v.StartLocal = render(v.StartAtUTC)
	v.EndLocal = render(v.EndAtUTC)
	v.CreatedAtLocal = render(v.CreatedAt)
	v.UpdatedAtLocal = render(v.UpdatedAt)
	return nil
}

// DualTime is an instant shown both as UTC and in the viewer's zone.
type DualTime struct {
	UTC   string `json:"utc"`
	Local string `json:"local"`
}

type ChangeView struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Actor is whoever made a change. Name is nil once the user is gone.
type Actor struct {
	ID   string  `json:"_id"`
	Name *string `json:"name"`
}

func newActor(id string, names map[string]string) Actor {
	a := Actor{ID: id}
	if n, ok := names[id]; ok {
		a.Name = &n
	}
	return a
}

type LogEntryView struct {
	ID           string       `json:"_id"`
	Event        string       `json:"event"`
	ChangedBy    Actor        `json:"changedBy"`
	Changes      []ChangeView `json:"changes"`
	TimestampUTC DualTime     `json:"timestampUTC"`
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type LogPage struct {
	Data       []LogEntryView `json:"data"`
	Pagination Pagination     `json:"pagination"`
}
