package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type AccessClaims struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}
