package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tzscheduler/internal/middleware"
	"tzscheduler/internal/service"
)

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	in, err := h.v.CreateEvent(body)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	id, err := h.events.Create(r.Context(), p, in)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	patch, err := h.v.UpdateEvent(body)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	id, err := h.events.Update(r.Context(), p, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	q, err := h.v.ListEvents(r.URL.Query())
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	events, err := h.events.List(r.Context(), p, q)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	if events == nil {
		events = []service.EventView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	ev, err := h.events.Get(r.Context(), p, chi.URLParam(r, "id"), r.URL.Query().Get("viewerTimezone"))
	if err != nil {
		h.fail(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "event": ev})
}

func (h *Handler) eventLogs(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	qs := r.URL.Query()
	q := service.LogQuery{
		Page:           intParam(qs.Get("page"), 1),
		Limit:          intParam(qs.Get("limit"), service.DefaultLogLimit),
		ViewerTimezone: qs.Get("viewerTimezone"),
	}
	page, err := h.events.Logs(r.Context(), p, chi.URLParam(r, "id"), q)
	if err != nil {
		h.fail(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       page.Data,
		"pagination": page.Pagination,
	})
}

// intParam returns def when s is missing or not a number. Out of range values
// are left for the service to clamp.
func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
