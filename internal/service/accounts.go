package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/auth"
	"tzscheduler/internal/model"
)

type AccountStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByName(ctx context.Context, name string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	ListNonAdminUsers(ctx context.Context) ([]model.User, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	RefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, newExpiry time.Time) (string, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Tokens is what a successful login or refresh hands back.
type Tokens struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

var ErrBadCredentials = apperr.Unauthenticated("Invalid credentials")

type Accounts struct {
	store AccountStore
	cfg   TokenConfig
	log   *slog.Logger
	now   func() time.Time
}

func NewAccounts(st AccountStore, cfg TokenConfig, logger *slog.Logger) *Accounts {
	return &Accounts{store: st, cfg: cfg, log: logger, now: time.Now}
}

// Login checks name and password. Unknown names and wrong passwords fail the
// same way.
func (a *Accounts) Login(ctx context.Context, in model.LoginInput) (*Tokens, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name", `"name" is required`)
	}

	u, err := a.store.UserByName(ctx, name)
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if u.PasswordHash == "" {
		return nil, &apperr.BusinessRuleError{
			Code:    "NO_PASSWORD",
			Message: "This account has no password. Ask an admin to set one.",
		}
	}
	if in.Password == "" {
		return nil, apperr.Validation("password", "password is required for this account")
	}
	if !auth.CheckPassword(u.PasswordHash, in.Password) {
		a.log.WarnContext(ctx, "login failed", "user_id", u.ID)
		return nil, ErrBadCredentials
	}

	t, err := a.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	a.log.InfoContext(ctx, "login", "user_id", u.ID, "admin", u.IsAdmin)
	return t, nil
}

// Refresh exchanges a refresh token for a new pair. Presenting a token that
// was already rotated revokes every token of its owner.
func (a *Accounts) Refresh(ctx context.Context, raw string) (*Tokens, error) {
	rt, err := a.store.RefreshTokenByHash(ctx, auth.HashRefreshToken(raw))
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		return nil, apperr.Unauthenticated("Invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if rt.Revoked {
		a.log.WarnContext(ctx, "refresh token replay", "user_id", rt.UserID)
		if err := a.store.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			return nil, fmt.Errorf("revoke tokens: %w", err)
		}
		return nil, apperr.Unauthenticated("Invalid refresh token")
	}
	if !rt.Usable(a.now()) {
		return nil, apperr.Unauthenticated("Refresh token expired")
	}

	u, err := a.store.UserByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	access, err := auth.MakeToken(u, a.cfg.Secret, a.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	newRaw, newHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := a.store.RotateRefreshToken(ctx, rt.ID, u.ID, newHash, a.now().Add(a.cfg.RefreshTTL)); err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: newRaw}, nil
}

func (a *Accounts) issue(ctx context.Context, u *model.User) (*Tokens, error) {
	access, err := auth.MakeToken(u, a.cfg.Secret, a.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := a.store.CreateRefreshToken(ctx, u.ID, hash, a.now().Add(a.cfg.RefreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Tokens{AccessToken: access, RefreshToken: raw}, nil
}

// Register creates a user. Only admins may call it, and admin accounts need
// a password.
func (a *Accounts) Register(ctx context.Context, p model.Principal, in model.RegisterInput) (*model.User, error) {
	if !p.IsAdmin {
		return nil, apperr.Forbidden("Admin privileges required")
	}
	return a.CreateUser(ctx, in)
}

// CreateUser skips the caller check. It backs Register and the bootstrap
// command.
func (a *Accounts) CreateUser(ctx context.Context, in model.RegisterInput) (*model.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name", `"name" is required`)
	}
	if in.IsAdmin && in.Password == "" {
		return nil, apperr.Validation("password", "password is required for admin accounts")
	}
	if in.Password != "" && len(in.Password) < auth.MinPasswordLen {
		return nil, apperr.Validation("password", `"password" must be at least %d characters`, auth.MinPasswordLen)
	}

	u := &model.User{ID: uuid.New().String(), Name: name, IsAdmin: in.IsAdmin}
	if in.Password != "" {
		h, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = h
	}

	if err := a.store.CreateUser(ctx, u); err != nil {
		var ce *apperr.ConflictError
		if errors.As(err, &ce) {
			return nil, apperr.Conflict("User already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	a.log.InfoContext(ctx, "user registered", "user_id", u.ID, "admin", u.IsAdmin)
	return u, nil
}

// Users lists non-admin accounts for the participant picker.
func (a *Accounts) Users(ctx context.Context, p model.Principal) ([]model.User, error) {
	if !p.IsAdmin {
		return nil, apperr.Forbidden("Admin privileges required")
	}
	users, err := a.store.ListNonAdminUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
