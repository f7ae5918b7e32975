package services

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid admin token")
	ErrJWTDisabled        = errors.New("admin JWT login is not configured")
)

// AdminAuthService checks the static admin token and trades it for a
// short-lived JWT, so browser sessions do not keep the token around.
type AdminAuthService struct {
	cfg *config.Config
	now func() time.Time
}

func NewAdminAuthService(cfg *config.Config) *AdminAuthService {
	return &AdminAuthService{cfg: cfg, now: time.Now}
}

// VerifyToken matches token against ADMIN_TOKEN or the bcrypt ADMIN_TOKEN_HASH.
func (s *AdminAuthService) VerifyToken(token string) bool {
	if token == "" {
		return false
	}
	if s.cfg.AdminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) == 1 {
		return true
	}
	if s.cfg.AdminTokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminTokenHash), []byte(token)) == nil
	}
	return false
}

// Login returns a signed admin JWT and its expiry.
func (s *AdminAuthService) Login(token string) (string, time.Time, error) {
	if s.cfg.AdminJWTSecret == "" {
		return "", time.Time{}, ErrJWTDisabled
	}
	if !s.VerifyToken(token) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.AdminJWTExpiry)
	claims := jwt.MapClaims{
		"sub":   "admin",
		"jti":   uuid.NewString(),
		"role":  "admin",
		"email": s.cfg.AdminEmail,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AdminJWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
