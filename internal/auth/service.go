// Package auth guards the admin API with a single operator credential
// exchanged for a short-lived bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the admin password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

const adminRole = "admin"

// Service validates the operator password and issues admin tokens.
// The configured password may be a bcrypt hash (recommended) or
// plaintext for local development.
type Service struct {
	password  string
	hashed    bool
	jwtConfig *JWTConfig
}

// NewService creates an admin auth service.
func NewService(adminPassword string, jwtConfig *JWTConfig) *Service {
	if jwtConfig.TTL == 0 {
		jwtConfig.TTL = 12 * time.Hour
	}
	return &Service{
		password:  adminPassword,
		hashed:    strings.HasPrefix(adminPassword, "$2"),
		jwtConfig: jwtConfig,
	}
}

// Enabled reports whether an admin password is configured at all.
func (s *Service) Enabled() bool {
	return s.password != ""
}

// Login checks the password and returns a bearer token.
func (s *Service) Login(password string) (string, error) {
	if !s.Enabled() {
		return "", ErrInvalidCredentials
	}

	if s.hashed {
		if err := bcrypt.CompareHashAndPassword([]byte(s.password), []byte(password)); err != nil {
			return "", ErrInvalidCredentials
		}
	} else if subtle.ConstantTimeCompare([]byte(s.password), []byte(password)) != 1 {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, adminRole)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates an admin bearer token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// HashPassword generates a bcrypt hash suitable for the admin_password
// configuration value.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
