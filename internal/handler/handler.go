// Package handler serves the scheduler's REST API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/middleware"
	"tzscheduler/internal/service"
	"tzscheduler/internal/validation"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	events   *service.Events
	accounts *service.Accounts
	v        *validation.Validator
	log      *slog.Logger
}

func New(events *service.Events, accounts *service.Accounts, v *validation.Validator, logger *slog.Logger) *Handler {
	return &Handler{events: events, accounts: accounts, v: v, log: logger}
}

type Options struct {
	Secret      string
	CORSOrigins []string
	// Limiter throttles login and refresh. Nil disables throttling.
	Limiter *middleware.RateLimiter
}

// Routes mounts everything under /api.
func (h *Handler) Routes(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Authorization", "X-Request-ID"},
		MaxAge:         300,
	}))

	authn := middleware.Authenticate(opts.Secret)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if opts.Limiter != nil {
					r.Use(opts.Limiter.HTTP)
				}
				r.Post("/login", h.login)
				r.Post("/refresh", h.refresh)
			})
			r.Group(func(r chi.Router) {
				r.Use(authn, middleware.RequireAdmin)
				r.Post("/register", h.register)
				r.Get("/all-users", h.allUsers)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Use(authn)
			r.With(middleware.RequireAdmin).Post("/", h.createEvent)
			r.Get("/", h.listEvents)
			r.Get("/logs/{id}", h.eventLogs)
			r.Get("/{id}", h.getEvent)
			r.Patch("/{id}", h.updateEvent)
		})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, apperr.Validation("", "request body exceeds %d bytes", maxBodyBytes)
		}
		return nil, apperr.Validation("", "could not read request body")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Success *bool           `json:"success,omitempty"`
	Error   string          `json:"error"`
	Details []apperr.Detail `json:"details,omitempty"`
}

// fail writes err with its mapped status. Errors outside the taxonomy are
// logged and replaced by a generic message. flagged adds "success": false.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, flagged bool) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error()}
	if flagged {
		f := false
		body.Success = &f
	}

	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		body.Error = "Validation failed"
		body.Details = ve.Details
	case status == http.StatusInternalServerError:
		h.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"err", err,
		)
		body.Error = "Internal Server Error"
	}
	writeJSON(w, status, body)
}
