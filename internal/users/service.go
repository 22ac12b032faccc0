package users

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	netmail "net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/posadmin/posadmin/internal/mail"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/settings"
	"github.com/posadmin/posadmin/internal/shared"
)

// SettingsReader resolves single settings values.
type SettingsReader interface {
	String(ctx context.Context, key, def string) (string, error)
}

// RoleCatalog lists and resolves roles.
type RoleCatalog interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
}

// Service handles user business logic.
type Service struct {
	store    Store
	settings SettingsReader
	roles    RoleCatalog
	mailer   mail.Dispatcher
	activity shared.ActivityRecorder
	logger   *slog.Logger
	now      func() time.Time
	otp      func() (string, error)
}

// NewService builds Service instance.
func NewService(store Store, settings SettingsReader, roles RoleCatalog, mailer mail.Dispatcher, activity shared.ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		settings: settings,
		roles:    roles,
		mailer:   mailer,
		activity: activity,
		logger:   logger,
		now:      time.Now,
		otp:      generateOTP,
	}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// ListRoles returns the roles selectable on the create form.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.roles.ListRoles(ctx)
}

// ToggleStatus flips the target account between active and inactive.
func (s *Service) ToggleStatus(ctx context.Context, actorID, targetID int64, ip string) (string, error) {
	if targetID <= 0 {
		return "", ErrInvalidUserID
	}
	if actorID == targetID {
		return "", ErrSelfToggle
	}
	status, err := s.store.ToggleStatus(ctx, targetID)
	if err != nil {
		return "", err
	}
	s.record(ctx, shared.ActivityLog{
		UserID:     actorID,
		Action:     "user.status_changed",
		EntityType: "user",
		EntityID:   fmt.Sprint(targetID),
		Details:    map[string]any{"status": status},
		IPAddress:  ip,
	})
	return status, nil
}

// GenerateCode returns the next free user code for the configured prefix.
func (s *Service) GenerateCode(ctx context.Context) (string, error) {
	prefix, err := s.settings.String(ctx, settings.KeyUserIDPrefix, DefaultCodePrefix)
	if err != nil {
		return "", err
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	max, err := s.store.MaxCodeSuffix(ctx, prefix)
	if err != nil {
		return "", err
	}
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		candidate := fmt.Sprintf("%s%0*d", prefix, codeDigits, max+attempt)
		taken, err := s.store.CodeExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrCodesExhausted
}

// SendOTP issues a fresh verification code for email and mails it.
// It returns how long the code stays valid.
func (s *Service) SendOTP(ctx context.Context, actorID int64, email string) (time.Duration, error) {
	email, err := parseEmail(email)
	if err != nil {
		return 0, err
	}
	now := s.now()
	last, err := s.store.LastIssuedAt(ctx, email)
	if err != nil {
		return 0, err
	}
	if !last.IsZero() && now.Sub(last) < OTPCooldown {
		return 0, ErrOTPCooldown
	}

	code, err := s.otp()
	if err != nil {
		return 0, fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash otp: %w", err)
	}
	userID, err := s.store.UserIDByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	id, err := s.store.CreateVerification(ctx, Verification{
		UserID:    userID,
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(OTPTTL),
		CreatedAt: now,
	})
	if err != nil {
		return 0, err
	}

	msg := mail.Message{
		To:      email,
		Subject: "Your verification code",
		Body: fmt.Sprintf("Your verification code is %s.\n\nIt expires in %d minutes. If you did not request it, ignore this email.\n",
			code, int(OTPTTL.Minutes())),
	}
	if err := s.mailer.Dispatch(ctx, msg); err != nil {
		// Drop the undelivered code so the cooldown does not block a retry.
		if delErr := s.store.DeleteVerification(ctx, id); delErr != nil {
			s.logger.Warn("delete undelivered otp", slog.Any("error", delErr))
		}
		return 0, fmt.Errorf("dispatch otp email: %w", err)
	}
	s.record(ctx, shared.ActivityLog{
		UserID:     actorID,
		Action:     "user.otp_sent",
		EntityType: "email_verification",
		EntityID:   fmt.Sprint(id),
		Details:    map[string]any{"email": email},
	})
	return OTPTTL, nil
}

// VerifyOTP checks code against the newest pending code for email.
func (s *Service) VerifyOTP(ctx context.Context, actorID int64, email, code string) error {
	email, err := parseEmail(email)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !isNumericCode(code) {
		return ErrInvalidOTPFormat
	}
	v, err := s.store.LatestPendingVerification(ctx, email)
	if err != nil {
		return err
	}
	if !s.now().Before(v.ExpiresAt) {
		return ErrOTPExpired
	}
	if v.Attempts >= OTPMaxAttempts {
		return ErrOTPLocked
	}
	// Reserved before the compare; the store refuses once the limit is hit.
	attempts, err := s.store.ReserveAttempt(ctx, v.ID, OTPMaxAttempts)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(code)); err != nil {
		return invalidCode(OTPMaxAttempts - attempts)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.MarkVerified(ctx, v.ID); err != nil {
			return err
		}
		_, err := tx.SetEmailVerified(ctx, email)
		return err
	})
	if err != nil {
		return err
	}
	s.record(ctx, shared.ActivityLog{
		UserID:     actorID,
		Action:     "user.email_verified",
		EntityType: "email_verification",
		EntityID:   fmt.Sprint(v.ID),
		Details:    map[string]any{"email": email},
	})
	return nil
}

// CreateInput is the validated create-account form.
type CreateInput struct {
	UserCode string `validate:"required,max=20"`
	Name     string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=150"`
	Password string `validate:"required,min=8,max=72"`
	RoleID   int64  `validate:"required,gt=0"`
}

// CreateUser inserts an account whose email was verified recently.
func (s *Service) CreateUser(ctx context.Context, actorID int64, in CreateInput) (int64, error) {
	email := normalizeEmail(in.Email)
	if _, err := s.roles.GetRole(ctx, in.RoleID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return 0, ErrUnknownRole
		}
		return 0, err
	}
	taken, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, ErrEmailTaken
	}
	verified, err := s.store.VerifiedSince(ctx, email, s.now().Add(-VerifiedEmailWindow))
	if err != nil {
		return 0, err
	}
	if !verified {
		return 0, ErrEmailUnverified
	}
	code := strings.ToUpper(strings.TrimSpace(in.UserCode))
	if exists, err := s.store.CodeExists(ctx, code); err != nil {
		return 0, err
	} else if exists {
		if code, err = s.GenerateCode(ctx); err != nil {
			return 0, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	id, err := s.store.CreateUser(ctx, NewUser{
		UserCode:     code,
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       in.RoleID,
		Verified:     true,
	})
	if err != nil {
		return 0, err
	}
	s.record(ctx, shared.ActivityLog{
		UserID:     actorID,
		Action:     "user.created",
		EntityType: "user",
		EntityID:   fmt.Sprint(id),
		Details:    map[string]any{"user_code": code, "email": email},
	})
	return id, nil
}

func (s *Service) record(ctx context.Context, entry shared.ActivityLog) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("record activity", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func parseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := netmail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return normalizeEmail(raw), nil
}

func isNumericCode(code string) bool {
	if len(code) != OTPDigits {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func generateOTP() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}
