// Package settings reads the key/value settings table.
package settings

import (
	"context"
	"strconv"
	"strings"

	"github.com/posadmin/posadmin/internal/platform/db"
)

// Keys stored in the settings table.
const (
	KeySMTPHost       = "smtp_host"
	KeySMTPPort       = "smtp_port"
	KeySMTPUsername   = "smtp_username"
	KeySMTPPassword   = "smtp_password"
	KeySMTPEncryption = "smtp_encryption"
	KeySMTPFromEmail  = "smtp_from_email"
	KeySMTPFromName   = "smtp_from_name"
	KeyUserIDPrefix   = "user_id_prefix"
	KeyCompanyName    = "company_name"
)

// SMTP holds outbound mail settings.
type SMTP struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string
	FromEmail  string
	FromName   string
}

// Source loads raw settings.
type Source interface {
	Values(ctx context.Context, keys ...string) (map[string]string, error)
}

// Store implements Source over the settings table.
type Store struct {
	db db.DBTX
}

// NewStore constructs a Store.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// Values returns the requested keys that exist.
func (s *Store) Values(ctx context.Context, keys ...string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT key, COALESCE(value, '') FROM settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}

// Service layers typed accessors and fallbacks on top of a Source.
type Service struct {
	source   Source
	fallback SMTP
}

// NewService constructs a Service. fallback fills SMTP keys absent from the table.
func NewService(source Source, fallback SMTP) *Service {
	return &Service{source: source, fallback: fallback}
}

// SMTP assembles the outbound mail configuration.
func (s *Service) SMTP(ctx context.Context) (SMTP, error) {
	values, err := s.source.Values(ctx, KeySMTPHost, KeySMTPPort, KeySMTPUsername, KeySMTPPassword,
		KeySMTPEncryption, KeySMTPFromEmail, KeySMTPFromName)
	if err != nil {
		return SMTP{}, err
	}
	cfg := s.fallback
	if v := strings.TrimSpace(values[KeySMTPHost]); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(values[KeySMTPPort]); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v, ok := values[KeySMTPUsername]; ok && v != "" {
		cfg.Username = v
	}
	if v, ok := values[KeySMTPPassword]; ok && v != "" {
		cfg.Password = v
	}
	if v := strings.ToLower(strings.TrimSpace(values[KeySMTPEncryption])); v != "" {
		cfg.Encryption = v
	}
	if v := strings.TrimSpace(values[KeySMTPFromEmail]); v != "" {
		cfg.FromEmail = v
	}
	if v := strings.TrimSpace(values[KeySMTPFromName]); v != "" {
		cfg.FromName = v
	}
	return cfg, nil
}

// String returns a single value or def when missing or blank.
func (s *Service) String(ctx context.Context, key, def string) (string, error) {
	values, err := s.source.Values(ctx, key)
	if err != nil {
		return def, err
	}
	if v := strings.TrimSpace(values[key]); v != "" {
		return v, nil
	}
	return def, nil
}
