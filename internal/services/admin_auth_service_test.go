package services

import (
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVerifyToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed"), bcrypt.MinCost)
	require.NoError(t, err)

	s := NewAdminAuthService(&config.Config{AdminToken: "plain", AdminTokenHash: string(hash)})
	assert.True(t, s.VerifyToken("plain"))
	assert.True(t, s.VerifyToken("hashed"))
	assert.False(t, s.VerifyToken("other"))
	assert.False(t, s.VerifyToken(""))

	assert.False(t, NewAdminAuthService(&config.Config{}).VerifyToken(""))
}

func TestLoginIssuesAdminJWT(t *testing.T) {
	cfg := &config.Config{
		AdminToken:     "plain",
		AdminJWTSecret: "jwt-secret",
		AdminJWTExpiry: time.Hour,
		AdminEmail:     "ops@example.com",
	}
	s := NewAdminAuthService(cfg)
	s.now = func() time.Time { return time.Now().Truncate(time.Second) }

	signed, expiresAt, err := s.Login("plain")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte("jwt-secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "admin", claims["role"])
	assert.Equal(t, "ops@example.com", claims["email"])
	assert.NotEmpty(t, claims["jti"])
}

func TestLoginFailures(t *testing.T) {
	_, _, err := NewAdminAuthService(&config.Config{AdminToken: "plain"}).Login("plain")
	assert.ErrorIs(t, err, ErrJWTDisabled)

	_, _, err = NewAdminAuthService(&config.Config{AdminToken: "plain", AdminJWTSecret: "s"}).Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
