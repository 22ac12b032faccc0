package users

import (
	"time"

	"github.com/posadmin/posadmin/internal/platform/httpx"
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// OTP parameters.
const (
	OTPDigits      = 6
	OTPTTL         = 10 * time.Minute
	OTPMaxAttempts = 5
	OTPCooldown    = 60 * time.Second
	// VerifiedEmailWindow bounds how old an OTP verification may be when
	// creating an account for that address.
	VerifiedEmailWindow = 24 * time.Hour

	DefaultCodePrefix = "USR"
	codeDigits        = 5
	maxCodeAttempts   = 10
)

// User is a row of the users table joined with its role name.
type User struct {
	ID              int64
	UserCode        string
	Name            string
	Email           string
	RoleID          int64
	RoleName        string
	Status          string
	EmailVerifiedAt *time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
}

// Active reports whether the account may sign in.
func (u User) Active() bool { return u.Status == StatusActive }

// NewUser is the insert payload for an account.
type NewUser struct {
	UserCode     string
	Name         string
	Email        string
	PasswordHash string
	RoleID       int64
	Verified     bool
}

// Verification is a row of email_verifications.
type Verification struct {
	ID         int64
	UserID     *int64
	Email      string
	CodeHash   string
	Attempts   int
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Errors surfaced to API callers.
var (
	ErrSelfToggle       = httpx.Errorf(httpx.ErrValidation, "You cannot change the status of your own account")
	ErrUserNotFound     = httpx.Errorf(httpx.ErrNotFound, "User not found")
	ErrInvalidUserID    = httpx.Errorf(httpx.ErrValidation, "A valid user_id is required")
	ErrInvalidEmail     = httpx.Errorf(httpx.ErrValidation, "A valid email address is required")
	ErrInvalidOTPFormat = httpx.Errorf(httpx.ErrValidation, "The verification code must be 6 digits")
	ErrOTPNotFound      = httpx.Errorf(httpx.ErrValidation, "No pending verification code for this email")
	ErrOTPExpired       = httpx.Errorf(httpx.ErrValidation, "The verification code has expired")
	ErrOTPLocked        = httpx.Errorf(httpx.ErrValidation, "Too many failed attempts, request a new code")
	ErrOTPCooldown      = httpx.Errorf(httpx.ErrTooMany, "Please wait before requesting another code")
	ErrCodesExhausted   = httpx.Errorf(httpx.ErrDuplicate, "Could not allocate a free user ID, try again")
	ErrEmailTaken       = httpx.Errorf(httpx.ErrDuplicate, "Email address is already registered")
	ErrEmailUnverified  = httpx.Errorf(httpx.ErrValidation, "Verify the email address with a code before creating the account")
	ErrUnknownRole      = httpx.Errorf(httpx.ErrValidation, "Selected role does not exist")
)

func invalidCode(remaining int) error {
	if remaining <= 0 {
		return httpx.Errorf(httpx.ErrValidation, "Invalid verification code. Too many failed attempts, request a new code")
	}
	return httpx.Errorf(httpx.ErrValidation, "Invalid verification code, %d attempt(s) remaining", remaining)
}
