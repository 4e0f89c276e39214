package rpc_test

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/auth"
	"tzscheduler/internal/middleware"
	"tzscheduler/internal/model"
	"tzscheduler/internal/rpc"
	"tzscheduler/internal/service"
	"tzscheduler/internal/store/storetest"
	"tzscheduler/internal/validation"
)

const (
	secret  = "rpc-secret"
	adminID = "00000000-0000-4000-8000-000000000001"
	aliceID = "00000000-0000-4000-8000-00000000000a"
	bobID   = "00000000-0000-4000-8000-00000000000b"
)

var t0 = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	client   *rpc.Client
	st       *storetest.Memory
	accounts *service.Accounts
}

func setup(t *testing.T, rl *middleware.RateLimiter) *fixture {
	t.Helper()
	clock := func() time.Time { return t0 }
	st := storetest.New(clock)
	st.AddUser(model.User{ID: adminID, Name: "root", IsAdmin: true})
	st.AddUser(model.User{ID: aliceID, Name: "alice"})
	st.AddUser(model.User{ID: bobID, Name: "bob"})

	logger := slog.New(slog.DiscardHandler)
	v, err := validation.New()
	require.NoError(t, err)
	events := service.NewEvents(st, logger, service.WithClock(clock))
	accounts := service.NewAccounts(st, service.TokenConfig{Secret: secret, AccessTTL: time.Hour, RefreshTTL: time.Hour}, logger)

	srv := rpc.NewGRPCServer(rpc.NewServer(events, accounts, v, logger), secret, rl)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{client: rpc.NewClient(conn), st: st, accounts: accounts}
}

func as(t *testing.T, id, name string, admin bool) context.Context {
	t.Helper()
	tok, err := auth.MakeToken(&model.User{ID: id, Name: name, IsAdmin: admin}, secret, time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func code(err error) codes.Code {
	return status.Code(err)
}

func (f *fixture) meeting(t *testing.T) string {
	t.Helper()
	resp, err := f.client.CreateEvent(as(t, adminID, "root", true), &rpc.CreateEventRequest{
		Users:         []string{aliceID},
		EventTimezone: "America/New_York",
		StartLocal:    "2030-06-01T10:00:00",
		EndLocal:      "2030-06-01T11:00:00",
	})
	require.NoError(t, err)
	return resp.ID
}

func TestLoginThenCreate(t *testing.T) {
	f := setup(t, nil)
	_, err := f.accounts.CreateUser(context.Background(), model.RegisterInput{Name: "ops", IsAdmin: true, Password: "ops-password"})
	require.NoError(t, err)

	login, err := f.client.Login(context.Background(), &rpc.LoginRequest{Name: "ops", Password: "ops-password"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.RefreshToken)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+login.Token)
	created, err := f.client.CreateEvent(ctx, &rpc.CreateEventRequest{
		Users:         []string{aliceID},
		EventTimezone: "Europe/Berlin",
		StartLocal:    "2030-03-31T01:30:00",
		EndLocal:      "2030-03-31T03:30:00",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = f.client.Login(context.Background(), &rpc.LoginRequest{Name: "ops", Password: "nope-nope"})
	assert.Equal(t, codes.Unauthenticated, code(err))
}

func TestGetUpdateAndLogs(t *testing.T) {
	f := setup(t, nil)
	id := f.meeting(t)
	alice := as(t, aliceID, "alice", false)

	got, err := f.client.GetEvent(alice, &rpc.GetEventRequest{ID: id, ViewerTimezone: "Asia/Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 1, 14, 0, 0, 0, time.UTC), got.Event.StartAt.AsTime())
	assert.Equal(t, "2030-06-02T00:00:00+09:00", got.Event.EndLocal)
	assert.Equal(t, []service.Participant{{ID: aliceID, Name: "alice"}}, got.Event.Users)

	tz := "Europe/London"
	upd, err := f.client.UpdateEvent(alice, &rpc.UpdateEventRequest{ID: id, EventTimezone: &tz})
	require.NoError(t, err)
	assert.Equal(t, id, upd.ID)

	logs, err := f.client.GetEventLogs(alice, &rpc.GetEventLogsRequest{ID: id})
	require.NoError(t, err)
	assert.Equal(t, service.Pagination{Total: 1, Page: 1, Limit: service.DefaultLogLimit, TotalPages: 1}, logs.Pagination)
	require.Len(t, logs.Entries, 1)
	require.Len(t, logs.Entries[0].Changes, 1)
	assert.Equal(t, "eventTimezone", logs.Entries[0].Changes[0].Field)
	assert.Equal(t, "America/New_York", logs.Entries[0].Changes[0].Before)
	assert.Equal(t, "Europe/London", logs.Entries[0].Changes[0].After)
}

func TestListEvents(t *testing.T) {
	f := setup(t, nil)
	f.meeting(t)

	resp, err := f.client.ListEvents(as(t, aliceID, "alice", false), &rpc.ListEventsRequest{
		UserIDs:        []string{aliceID},
		ViewerTimezone: "Asia/Kolkata",
	})
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "2030-06-01T19:30:00+05:30", resp.Events[0].StartLocal)

	_, err = f.client.ListEvents(as(t, aliceID, "alice", false), &rpc.ListEventsRequest{UserIDs: []string{bobID}})
	assert.Equal(t, codes.PermissionDenied, code(err))

	_, err = f.client.ListEvents(as(t, aliceID, "alice", false), &rpc.ListEventsRequest{})
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestErrorCodes(t *testing.T) {
	f := setup(t, nil)
	id := f.meeting(t)

	_, err := f.client.GetEvent(context.Background(), &rpc.GetEventRequest{ID: id})
	assert.Equal(t, codes.Unauthenticated, code(err))

	_, err = f.client.GetEvent(as(t, bobID, "bob", false), &rpc.GetEventRequest{ID: id})
	assert.Equal(t, codes.PermissionDenied, code(err))

	_, err = f.client.GetEvent(as(t, adminID, "root", true), &rpc.GetEventRequest{ID: "00000000-0000-4000-8000-0000000000ff"})
	assert.Equal(t, codes.NotFound, code(err))

	_, err = f.client.CreateEvent(as(t, aliceID, "alice", false), &rpc.CreateEventRequest{
		Users: []string{aliceID}, EventTimezone: "UTC", StartLocal: "2030-06-01T10:00:00", EndLocal: "2030-06-01T11:00:00",
	})
	assert.Equal(t, codes.PermissionDenied, code(err))

	_, err = f.client.UpdateEvent(as(t, aliceID, "alice", false), &rpc.UpdateEventRequest{ID: id})
	assert.Equal(t, codes.InvalidArgument, code(err))

	f.st.RaceOnce = true
	tz := "UTC"
	_, err = f.client.UpdateEvent(as(t, aliceID, "alice", false), &rpc.UpdateEventRequest{ID: id, EventTimezone: &tz})
	assert.Equal(t, codes.Aborted, code(err))
}

func TestLoginRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f := setup(t, middleware.NewRateLimiter(ctx, 0.01, 1))

	_, err := f.client.Login(context.Background(), &rpc.LoginRequest{Name: "ghost", Password: "whatever1"})
	assert.Equal(t, codes.Unauthenticated, code(err))
	_, err = f.client.Login(context.Background(), &rpc.LoginRequest{Name: "ghost", Password: "whatever1"})
	assert.Equal(t, codes.ResourceExhausted, code(err))
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{apperr.Validation("x", "bad"), codes.InvalidArgument},
		{apperr.ErrInvalidRange, codes.InvalidArgument},
		{apperr.NotFound("gone"), codes.NotFound},
		{apperr.Unauthenticated("who"), codes.Unauthenticated},
		{apperr.Forbidden("no"), codes.PermissionDenied},
		{apperr.Conflict("again"), codes.Aborted},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rpc.Code(tt.err), tt.err.Error())
	}
}
