package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tzscheduler/internal/model"
)

var ErrBadToken = errors.New("invalid token")

const (
	MinPasswordLen = 8
	Issuer         = "tzscheduler"
)

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type Claims struct {
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
	Name    string `json:"name"`
	jwt.RegisteredClaims
}

// Principal is the caller the token speaks for.
func (c *Claims) Principal() model.Principal {
	return model.Principal{UserID: c.UserID, IsAdmin: c.IsAdmin, Name: c.Name}
}

// MakeToken signs an HS256 access token for u that expires after ttl.
func MakeToken(u *model.User, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		UserID:  u.ID,
		IsAdmin: u.IsAdmin,
		Name:    u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// ParseToken verifies an access token and returns its claims. Tokens must be
// HS256, carry an expiry and come from this issuer.
func ParseToken(raw, secret string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	if c.UserID == "" {
		return nil, ErrBadToken
	}
	return &c, nil
}

// GenerateRefreshToken returns an opaque token and the hash to store for it.
func GenerateRefreshToken() (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, HashRefreshToken(raw), nil
}

func HashRefreshToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
