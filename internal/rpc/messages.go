package rpc

import (
	"google.golang.org/protobuf/types/known/timestamppb"

	"tzscheduler/internal/service"
)

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type CreateEventRequest struct {
	Users         []string `json:"users"`
	EventTimezone string   `json:"eventTimezone"`
	StartLocal    string   `json:"startLocal"`
	EndLocal      string   `json:"endLocal"`
}

// UpdateEventRequest leaves nil fields unchanged.
type UpdateEventRequest struct {
	ID            string   `json:"id"`
	Users         []string `json:"users,omitempty"`
	EventTimezone *string  `json:"eventTimezone,omitempty"`
	StartLocal    *string  `json:"startLocal,omitempty"`
	EndLocal      *string  `json:"endLocal,omitempty"`
}

type EventIDResponse struct {
	ID string `json:"id"`
}

type ListEventsRequest struct {
	UserIDs        []string               `json:"userIds"`
	From           *timestamppb.Timestamp `json:"from,omitempty"`
	To             *timestamppb.Timestamp `json:"to,omitempty"`
	Page           int32                  `json:"page,omitempty"`
	Limit          int32                  `json:"limit,omitempty"`
	ViewerTimezone string                 `json:"viewerTimezone,omitempty"`
}

type ListEventsResponse struct {
	Events []*Event `json:"events"`
}

type GetEventRequest struct {
	ID             string `json:"id"`
	ViewerTimezone string `json:"viewerTimezone,omitempty"`
}

type GetEventResponse struct {
	Event *Event `json:"event"`
}

type GetEventLogsRequest struct {
	ID             string `json:"id"`
	Page           int32  `json:"page,omitempty"`
	Limit          int32  `json:"limit,omitempty"`
	ViewerTimezone string `json:"viewerTimezone,omitempty"`
}

type GetEventLogsResponse struct {
	Entries    []service.LogEntryView `json:"entries"`
	Pagination service.Pagination     `json:"pagination"`
}

// Event carries instants as timestamps; the *Local strings are set only when
// a viewer timezone applied.
type Event struct {
	ID            string                 `json:"id"`
	Users         []service.Participant  `json:"users"`
	EventTimezone string                 `json:"eventTimezone"`
	StartAt       *timestamppb.Timestamp `json:"startAt"`
	EndAt         *timestamppb.Timestamp `json:"endAt"`
	StartLocal    string                 `json:"startLocal,omitempty"`
	EndLocal      string                 `json:"endLocal,omitempty"`
	CreatedBy     string                 `json:"createdBy"`
	Version       int64                  `json:"version"`
	CreatedAt     *timestamppb.Timestamp `json:"createdAt"`
	UpdatedAt     *timestamppb.Timestamp `json:"updatedAt"`
}

func toEvent(v *service.EventView) *Event {
	return &Event{
		ID:            v.ID,
		Users:         v.Users,
		EventTimezone: v.EventTimezone,
		StartAt:       timestamppb.New(v.StartAtUTC),
		EndAt:         timestamppb.New(v.EndAtUTC),
		StartLocal:    v.StartLocal,
		EndLocal:      v.EndLocal,
		CreatedBy:     v.CreatedBy,
		Version:       v.Version,
		CreatedAt:     timestamppb.New(v.CreatedAt),
		UpdatedAt:     timestamppb.New(v.UpdatedAt),
	}
}
