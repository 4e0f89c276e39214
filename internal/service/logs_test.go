package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
	"tzscheduler/internal/service"
	"tzscheduler/internal/store/storetest"
)

func seedLogs(st *storetest.Memory, eventID string, n int) {
	for i := range n {
		st.Logs = append(st.Logs, model.EventLog{
			ID:           fmt.Sprintf("log-%02d", i),
			EventID:      eventID,
			ChangedBy:    aliceID,
			Changes:      []model.Change{{Field: model.FieldEventTimezone, Before: "UTC", After: "UTC"}},
			TimestampUTC: t0.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestLogsPagination(t *testing.T) {
	svc, st := setup(t)
	id := nyMeeting(t, svc, aliceID)
	seedLogs(st, id, 45)

	page, err := svc.Logs(context.Background(), alice, id, service.LogQuery{Page: 2, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, service.Pagination{Total: 45, Page: 2, Limit: 20, TotalPages: 3}, page.Pagination)
	require.Len(t, page.Data, 20)
	// newest first: the 21st newest is log 24, the 40th is log 05
	assert.Equal(t, "log-24", page.Data[0].ID)
	assert.Equal(t, "log-05", page.Data[19].ID)

	last, err := svc.Logs(context.Background(), alice, id, service.LogQuery{Page: 3, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, last.Data, 5)

	past, err := svc.Logs(context.Background(), alice, id, service.LogQuery{Page: 9, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, past.Data)
	assert.Equal(t, 45, past.Pagination.Total)
}

func TestLogsClamp(t *testing.T) {
	svc, st := setup(t)
	id := nyMeeting(t, svc, aliceID)
	seedLogs(st, id, 3)

	tests := []struct {
		name      string
		q         service.LogQuery
		wantPage  int
		wantLimit int
	}{
		{"too large", service.LogQuery{Page: 1, Limit: 500}, 1, 100},
		{"zero", service.LogQuery{}, 1, 1},
		{"negative", service.LogQuery{Page: -3, Limit: -1}, 1, 1},
		{"default", service.LogQuery{Limit: service.DefaultLogLimit}, 1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.Logs(context.Background(), alice, id, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, p.Pagination.Page)
			assert.Equal(t, tt.wantLimit, p.Pagination.Limit)
			assert.Equal(t, (3+tt.wantLimit-1)/tt.wantLimit, p.Pagination.TotalPages)
		})
	}
}

func TestLogsRendering(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	id := nyMeeting(t, svc, aliceID)

	_, err := svc.Update(ctx, alice, id, model.EventPatch{
		StartLocal:    ptr("2030-06-01T08:00:00"),
		EventTimezone: ptr("America/Chicago"),
		Users:         []string{aliceID, bobID},
	})
	require.NoError(t, err)
	require.Len(t, st.LogsFor(id), 1)

	page, err := svc.Logs(ctx, bob, id, service.LogQuery{Page: 1, Limit: 20, ViewerTimezone: "America/New_York"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)

	entry := page.Data[0]
	assert.Equal(t, id, entry.Event)
	assert.Equal(t, service.Actor{ID: aliceID, Name: ptr("alice")}, entry.ChangedBy)
	assert.Equal(t, service.DualTime{UTC: "2030-01-01T00:00:00.000Z", Local: "2029-12-31T19:00:00-05:00"}, entry.TimestampUTC)

	require.Len(t, entry.Changes, 3)
	// 08:00 Chicago (CDT) is 13:00Z, one hour before the old start
	assert.Equal(t, "startAtUTC", entry.Changes[0].Field)
	assert.Equal(t, service.DualTime{UTC: "2030-06-01T14:00:00.000Z", Local: "2030-06-01T10:00:00-04:00"}, entry.Changes[0].Before)
	assert.Equal(t, service.DualTime{UTC: "2030-06-01T13:00:00.000Z", Local: "2030-06-01T09:00:00-04:00"}, entry.Changes[0].After)
	assert.Equal(t, "eventTimezone", entry.Changes[1].Field)
	assert.Equal(t, "America/New_York", entry.Changes[1].Before)
	assert.Equal(t, "America/Chicago", entry.Changes[1].After)
	assert.Equal(t, "users", entry.Changes[2].Field)
	assert.Equal(t, []string{aliceID}, entry.Changes[2].Before)
	assert.Equal(t, []string{aliceID, bobID}, entry.Changes[2].After)
}

func TestLogsFallBackToUTC(t *testing.T) {
	svc, st := setup(t)
	id := nyMeeting(t, svc, aliceID)
	st.Logs = append(st.Logs, model.EventLog{
		ID:        "only",
		EventID:   id,
		ChangedBy: adminID,
		Changes: []model.Change{{
			Field:  model.FieldEndAtUTC,
			Before: time.Date(2030, 6, 1, 15, 0, 0, 0, time.UTC),
			After:  time.Date(2030, 6, 1, 16, 30, 0, 0, time.UTC),
		}},
		TimestampUTC: t0,
	})

	for _, tz := range []string{"", "Nowhere/Land"} {
		page, err := svc.Logs(context.Background(), alice, id, service.LogQuery{Page: 1, Limit: 20, ViewerTimezone: tz})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		c := page.Data[0].Changes[0]
		assert.Equal(t, service.DualTime{UTC: "2030-06-01T15:00:00.000Z", Local: "2030-06-01T15:00:00.000Z"}, c.Before)
		assert.Equal(t, service.DualTime{UTC: "2030-06-01T16:30:00.000Z", Local: "2030-06-01T16:30:00.000Z"}, c.After)
		require.NotNil(t, page.Data[0].ChangedBy.Name)
		assert.Equal(t, "root", *page.Data[0].ChangedBy.Name)
	}
}

func TestLogsAccess(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	id := nyMeeting(t, svc, aliceID)

	_, err := svc.Logs(ctx, carol, id, service.LogQuery{Page: 1, Limit: 20})
	require.Error(t, err)
	assert.Equal(t, "Forbidden: access denied to event logs", err.Error())

	_, err = svc.Logs(ctx, admin, id, service.LogQuery{Page: 1, Limit: 20})
	assert.NoError(t, err)

	_, err = svc.Logs(ctx, alice, "abc", service.LogQuery{})
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Logs(ctx, alice, bobID, service.LogQuery{})
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = svc.Logs(ctx, model.Principal{}, id, service.LogQuery{})
	var ue *apperr.UnauthenticatedError
	assert.ErrorAs(t, err, &ue)
}

// offsetRecorder remembers every offset the log listing was asked for.
type offsetRecorder struct {
	*storetest.Memory
	offsets []int
}

func (r *offsetRecorder) ListEventLogs(ctx context.Context, eventID string, offset, limit int) ([]model.EventLog, error) {
	r.offsets = append(r.offsets, offset)
	return r.Memory.ListEventLogs(ctx, eventID, offset, limit)
}

func TestLogsHugePage(t *testing.T) {
	svc, st := setup(t)
	id := nyMeeting(t, svc, aliceID)
	seedLogs(st, id, 3)

	rec := &offsetRecorder{Memory: st}
	spied := service.NewEvents(rec, slog.New(slog.DiscardHandler), service.WithClock(clock))

	for _, page := range []int{math.MaxInt / 50, math.MaxInt} {
		got, err := spied.Logs(context.Background(), alice, id, service.LogQuery{Page: page, Limit: 100})
		require.NoError(t, err)
		assert.Empty(t, got.Data)
		assert.Equal(t, 3, got.Pagination.Total)
		assert.Equal(t, 1, got.Pagination.TotalPages)
	}
	require.Len(t, rec.offsets, 2)
	for _, off := range rec.offsets {
		assert.GreaterOrEqual(t, off, 0)
	}
}

func TestLogsUnknownActorHasNullName(t *testing.T) {
	svc, st := setup(t)
	id := nyMeeting(t, svc, aliceID)
	gone := "00000000-0000-4000-8000-0000000000ff"
	st.Logs = append(st.Logs, model.EventLog{
		ID:           "orphan",
		EventID:      id,
		ChangedBy:    gone,
		Changes:      []model.Change{{Field: model.FieldEventTimezone, Before: "UTC", After: "Asia/Tokyo"}},
		TimestampUTC: t0,
	})

	page, err := svc.Logs(context.Background(), alice, id, service.LogQuery{Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, service.Actor{ID: gone}, page.Data[0].ChangedBy)

	b, err := json.Marshal(page.Data[0].ChangedBy)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"`+gone+`","name":null}`, string(b))
}
