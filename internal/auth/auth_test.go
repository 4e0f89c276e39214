package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tzscheduler/internal/auth"
	"tzscheduler/internal/model"
)

const secret = "test-secret"

func TestPasswordRoundTrip(t *testing.T) {
	h, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(h, "correct horse"))
	assert.False(t, auth.CheckPassword(h, "battery staple"))
	assert.False(t, auth.CheckPassword("", "correct horse"))
}

func TestTokenCarriesPrincipal(t *testing.T) {
	u := &model.User{ID: "u-1", Name: "ada", IsAdmin: true}
	raw, err := auth.MakeToken(u, secret, time.Hour)
	require.NoError(t, err)

	c, err := auth.ParseToken(raw, secret)
	require.NoError(t, err)
	assert.Equal(t, model.Principal{UserID: "u-1", IsAdmin: true, Name: "ada"}, c.Principal())
}

func TestParseTokenRejects(t *testing.T) {
	u := &model.User{ID: "u-1", Name: "ada"}

	expired, err := auth.MakeToken(u, secret, -time.Minute)
	require.NoError(t, err)
	good, err := auth.MakeToken(u, secret, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{UserID: "u-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: "u-1"}).SignedString([]byte(secret))
	require.NoError(t, err)
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, auth.Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		raw    string
		secret string
	}{
		{"expired", expired, secret},
		{"wrong secret", good, "other"},
		{"alg none", none, secret},
		{"no expiry", noExp, secret},
		{"foreign issuer", foreign, secret},
		{"other hmac", hs512, secret},
		{"garbage", "not.a.jwt", secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.ParseToken(tt.raw, tt.secret)
			assert.ErrorIs(t, err, auth.ErrBadToken)
		})
	}
}

func TestRefreshToken(t *testing.T) {
	raw, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, hash, auth.HashRefreshToken(raw))
	assert.NotEqual(t, raw, hash)

	raw2, _, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}
