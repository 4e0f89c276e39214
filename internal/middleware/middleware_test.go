package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"tzscheduler/internal/auth"
	"tzscheduler/internal/middleware"
	"tzscheduler/internal/model"
)

const secret = "mw-secret"

func token(t *testing.T, admin bool) string {
	t.Helper()
	raw, err := auth.MakeToken(&model.User{ID: "u-1", Name: "ada", IsAdmin: admin}, secret, time.Hour)
	require.NoError(t, err)
	return raw
}

// echo reports the principal it saw.
var echo = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	_ = json.NewEncoder(w).Encode(p)
})

func TestAuthenticate(t *testing.T) {
	h := middleware.Authenticate(secret)(echo)
	good := token(t, false)

	tests := []struct {
		name   string
		header string
		want   int
		errMsg string
	}{
		{"bearer", "Bearer " + good, http.StatusOK, ""},
		{"bare token", good, http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, "A token is required for authentication"},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized, "Invalid Token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)

			if tt.errMsg != "" {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tt.errMsg, body["error"])
				return
			}
			var p model.Principal
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
			assert.Equal(t, model.Principal{UserID: "u-1", Name: "ada"}, p)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	h := middleware.Authenticate(secret)(middleware.RequireAdmin(echo))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, false))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("Authorization", "Bearer "+token(t, true))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := middleware.NewRateLimiter(ctx, 1, 2)
	h := rl.HTTP(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for range 2 {
		require.Equal(t, http.StatusOK, call("10.0.0.1:1111").Code)
	}
	rec := call("10.0.0.1:2222")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1111").Code)
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := middleware.RequestID(middleware.Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, middleware.RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "/api/health", line["path"])
	assert.InDelta(t, 418, line["status"], 0.001)
	assert.Equal(t, "req-42", line["request_id"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGRPCAuth(t *testing.T) {
	ic := middleware.Auth(secret, "/svc/Login")
	seen := model.Principal{}
	next := func(ctx context.Context, _ any) (any, error) {
		seen, _ = middleware.PrincipalFromContext(ctx)
		return "ok", nil
	}

	_, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Login"}, next)
	require.NoError(t, err)

	_, err = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, next)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	md := metadata.Pairs("authorization", "Bearer "+token(t, true))
	ctx := metadata.NewIncomingContext(context.Background(), md)
	_, err = ic(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, next)
	require.NoError(t, err)
	assert.Equal(t, model.Principal{UserID: "u-1", IsAdmin: true, Name: "ada"}, seen)

	md = metadata.Pairs("authorization", "Bearer nope")
	ctx = metadata.NewIncomingContext(context.Background(), md)
	_, err = ic(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, next)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPCRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ic := middleware.RateLimit(middleware.NewRateLimiter(ctx, 1, 1), "/svc/Login")
	next := func(context.Context, any) (any, error) { return "ok", nil }

	pctx := peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.1.1.1"), Port: 5000}})
	login := &grpc.UnaryServerInfo{FullMethod: "/svc/Login"}

	_, err := ic(pctx, nil, login, next)
	require.NoError(t, err)
	_, err = ic(pctx, nil, login, next)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// unlisted methods are never throttled
	for range 3 {
		_, err = ic(pctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, next)
		assert.NoError(t, err)
	}
}

func TestGRPCRateLimitForwardedFromLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ic := middleware.RateLimit(middleware.NewRateLimiter(ctx, 1, 1), "/svc/Login")
	next := func(context.Context, any) (any, error) { return "ok", nil }
	login := &grpc.UnaryServerInfo{FullMethod: "/svc/Login"}

	from := func(peerIP, fwd string) context.Context {
		c := peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(peerIP), Port: 5000}})
		return metadata.NewIncomingContext(c, metadata.Pairs(middleware.ForwardedForKey, fwd))
	}

	// two browsers behind the local bridge get separate buckets
	_, err := ic(from("127.0.0.1", "203.0.113.1"), nil, login, next)
	require.NoError(t, err)
	_, err = ic(from("127.0.0.1", "203.0.113.2"), nil, login, next)
	require.NoError(t, err)
	_, err = ic(from("127.0.0.1", "203.0.113.1"), nil, login, next)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// a remote peer cannot pick its own bucket
	_, err = ic(from("10.9.9.9", "203.0.113.50"), nil, login, next)
	require.NoError(t, err)
	_, err = ic(from("10.9.9.9", "203.0.113.51"), nil, login, next)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
