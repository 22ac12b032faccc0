package auth

import (
	"errors"
	"time"
)

// ErrAccountInactive is returned when a deactivated user tries to sign in.
var ErrAccountInactive = errors.New("account is inactive")

// User is the subset of a users row needed to sign in.
type User struct {
	ID           int64
	UserCode     string
	Name         string
	Email        string
	PasswordHash string
	Status       string
	LastLoginAt  *time.Time
}

// Active reports whether the account may sign in.
func (u User) Active() bool {
	return u.Status == "active"
}
