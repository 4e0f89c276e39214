package handler

import (
	"net/http"

	"tzscheduler/internal/middleware"
	"tzscheduler/internal/model"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	in, err := h.v.Login(body)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	tok, err := h.accounts.Login(r.Context(), in)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}

	w.Header().Set("Authorization", "Bearer "+tok.AccessToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Login successful",
		"success":      true,
		"token":        tok.AccessToken,
		"refreshToken": tok.RefreshToken,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	raw, err := h.v.RefreshToken(body)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	tok, err := h.accounts.Refresh(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	w.Header().Set("Authorization", "Bearer "+tok.AccessToken)
	writeJSON(w, http.StatusOK, tok)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	in, err := h.v.Register(body)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	u, err := h.accounts.Register(r.Context(), p, in)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"user":    u,
	})
}

func (h *Handler) allUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	users, err := h.accounts.Users(r.Context(), p)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
