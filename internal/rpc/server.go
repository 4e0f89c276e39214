// Package rpc exposes the event service over gRPC with a JSON codec.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/middleware"
	"tzscheduler/internal/model"
	"tzscheduler/internal/service"
	"tzscheduler/internal/validation"
)

type Server struct {
	events   *service.Events
	accounts *service.Accounts
	v        *validation.Validator
	log      *slog.Logger
}

func NewServer(events *service.Events, accounts *service.Accounts, v *validation.Validator, logger *slog.Logger) *Server {
	return &Server{events: events, accounts: accounts, v: v, log: logger}
}

// NewGRPCServer builds a grpc.Server with auth and login throttling and
// registers s on it. A nil limiter disables throttling.
func NewGRPCServer(s *Server, secret string, rl *middleware.RateLimiter) *grpc.Server {
	EnsureCodec()
	chain := []grpc.UnaryServerInterceptor{}
	if rl != nil {
		chain = append(chain, middleware.RateLimit(rl, MethodLogin))
	}
	chain = append(chain, middleware.Auth(secret, MethodLogin))

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(chain...))
	Register(srv, s)
	return srv
}

func (s *Server) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	in, err := s.v.Login(mustJSON(req))
	if err != nil {
		return nil, s.status(ctx, "Login", err)
	}
	tok, err := s.accounts.Login(ctx, in)
	if err != nil {
		return nil, s.status(ctx, "Login", err)
	}
	return &LoginResponse{Token: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

func (s *Server) CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventIDResponse, error) {
	p, _ := middleware.PrincipalFromContext(ctx)
	in, err := s.v.CreateEvent(mustJSON(req))
	if err != nil {
		return nil, s.status(ctx, "CreateEvent", err)
	}
	id, err := s.events.Create(ctx, p, in)
	if err != nil {
		return nil, s.status(ctx, "CreateEvent", err)
	}
	return &EventIDResponse{ID: id}, nil
}

func (s *Server) UpdateEvent(ctx context.Context, req *UpdateEventRequest) (*EventIDResponse, error) {
	p, _ := middleware.PrincipalFromContext(ctx)
	patch, err := s.v.UpdateEvent(mustJSON(model.EventPatch{
		Users:         req.Users,
		EventTimezone: req.EventTimezone,
		StartLocal:    req.StartLocal,
		EndLocal:      req.EndLocal,
	}))
	if err != nil {
		return nil, s.status(ctx, "UpdateEvent", err)
	}
	id, err := s.events.Update(ctx, p, req.ID, patch)
	if err != nil {
		return nil, s.status(ctx, "UpdateEvent", err)
	}
	return &EventIDResponse{ID: id}, nil
}

func (s *Server) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error) {
	p, _ := middleware.PrincipalFromContext(ctx)

	qs := url.Values{}
	for _, id := range req.UserIDs {
		qs.Add("userId", id)
	}
	if req.From != nil {
		qs.Set("from", req.From.AsTime().Format(time.RFC3339))
	}
	if req.To != nil {
		qs.Set("to", req.To.AsTime().Format(time.RFC3339))
	}
	if req.Page != 0 {
		qs.Set("page", strconv.Itoa(int(req.Page)))
	}
	if req.Limit != 0 {
		qs.Set("limit", strconv.Itoa(int(req.Limit)))
	}
	if req.ViewerTimezone != "" {
		qs.Set("viewerTimezone", req.ViewerTimezone)
	}

	q, err := s.v.ListEvents(qs)
	if err != nil {
		return nil, s.status(ctx, "ListEvents", err)
	}
	views, err := s.events.List(ctx, p, q)
	if err != nil {
		return nil, s.status(ctx, "ListEvents", err)
	}
	out := &ListEventsResponse{Events: make([]*Event, len(views))}
	for i := range views {
		out.Events[i] = toEvent(&views[i])
	}
	return out, nil
}

func (s *Server) GetEvent(ctx context.Context, req *GetEventRequest) (*GetEventResponse, error) {
	p, _ := middleware.PrincipalFromContext(ctx)
	v, err := s.events.Get(ctx, p, req.ID, req.ViewerTimezone)
	if err != nil {
		return nil, s.status(ctx, "GetEvent", err)
	}
	return &GetEventResponse{Event: toEvent(v)}, nil
}

func (s *Server) GetEventLogs(ctx context.Context, req *GetEventLogsRequest) (*GetEventLogsResponse, error) {
	p, _ := middleware.PrincipalFromContext(ctx)
	q := service.LogQuery{
		Page:           max(int(req.Page), 1),
		Limit:          int(req.Limit),
		ViewerTimezone: req.ViewerTimezone,
	}
	if q.Limit == 0 {
		q.Limit = service.DefaultLogLimit
	}
	page, err := s.events.Logs(ctx, p, req.ID, q)
	if err != nil {
		return nil, s.status(ctx, "GetEventLogs", err)
	}
	return &GetEventLogsResponse{Entries: page.Data, Pagination: page.Pagination}, nil
}

// status maps domain errors onto gRPC codes. Anything unrecognised is logged
// and reported as Internal without detail.
func (s *Server) status(ctx context.Context, method string, err error) error {
	code := Code(err)
	if code == codes.Internal {
		s.log.ErrorContext(ctx, "rpc failed", "method", method, "err", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

// Code returns the gRPC code for a domain error.
func Code(err error) codes.Code {
	var (
		invalid   *apperr.ValidationError
		rule      *apperr.BusinessRuleError
		notFound  *apperr.NotFoundError
		unauth    *apperr.UnauthenticatedError
		forbidden *apperr.ForbiddenError
		conflict  *apperr.ConflictError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &rule):
		return codes.InvalidArgument
	case errors.As(err, &notFound):
		return codes.NotFound
	case errors.As(err, &unauth):
		return codes.Unauthenticated
	case errors.As(err, &forbidden):
		return codes.PermissionDenied
	case errors.As(err, &conflict):
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// mustJSON re-encodes a decoded request so it runs through the same schema
// checks as the REST payloads. The request types always marshal.
func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
