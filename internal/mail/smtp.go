package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/posadmin/posadmin/internal/settings"
)

// ConfigSource yields SMTP settings at send time so edits to the settings
// table apply without a restart.
type ConfigSource interface {
	SMTP(ctx context.Context) (settings.SMTP, error)
}

type deliverFunc func(ctx context.Context, cfg settings.SMTP, to string, data []byte) error

// SMTPSender delivers messages synchronously with retries.
type SMTPSender struct {
	config   ConfigSource
	logger   *slog.Logger
	attempts uint
	delays   []time.Duration
	deliver  deliverFunc
	now      func() time.Time
}

// NewSMTPSender constructs a sender.
func NewSMTPSender(config ConfigSource, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		config:   config,
		logger:   logger,
		attempts: 3,
		delays:   []time.Duration{500 * time.Millisecond, 2 * time.Second},
		deliver:  deliverSMTP,
		now:      time.Now,
	}
}

// Dispatch implements Dispatcher.
func (s *SMTPSender) Dispatch(ctx context.Context, msg Message) error {
	return s.Send(ctx, msg)
}

// Send validates and delivers msg, retrying transient failures.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	cfg, err := s.config.SMTP(ctx)
	if err != nil {
		return fmt.Errorf("mail: load smtp settings: %w", err)
	}
	if cfg.Host == "" || cfg.FromEmail == "" {
		return errors.New("mail: smtp host and sender address must be configured")
	}
	data := Build(cfg.FromEmail, cfg.FromName, msg, s.now())

	return retry.Do(func() error {
		return s.deliver(ctx, cfg, msg.To, data)
	},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			if len(s.delays) == 0 {
				return 0
			}
			return s.delays[min(int(n), len(s.delays)-1)]
		}),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if s.logger != nil {
				s.logger.Warn("smtp delivery retry", slog.Uint64("attempt", uint64(n+1)), slog.Any("error", err))
			}
		}),
	)
}

// isTransient treats permanent SMTP replies (5xx) as final.
func isTransient(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code < 500
	}
	return !errors.Is(err, context.Canceled)
}

func deliverSMTP(ctx context.Context, cfg settings.SMTP, to string, data []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: 15 * time.Second}
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if cfg.Encryption == "ssl" {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = client.Close() }()

	if cfg.Encryption == "tls" {
		if err := client.StartTLS(tlsConfig); err != nil {
			return err
		}
	}
	if cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return err
		}
	}
	if err := client.Mail(cfg.FromEmail); err != nil {
		return err
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return err
	}
	if err := client.Rcpt(rcpt.Address); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
