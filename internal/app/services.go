package app

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posadmin/posadmin/internal/audit"
	"github.com/posadmin/posadmin/internal/auth"
	"github.com/posadmin/posadmin/internal/mail"
	"github.com/posadmin/posadmin/internal/platform/storage"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/settings"
	"github.com/posadmin/posadmin/internal/shared"
	"github.com/posadmin/posadmin/internal/suppliers"
	"github.com/posadmin/posadmin/internal/users"
	"github.com/posadmin/posadmin/jobs"
)

// Services are the domain services shared by the server, the worker and the CLI.
type Services struct {
	RBAC      *rbac.Service
	Settings  *settings.Service
	Activity  *shared.ActivityLogger
	SMTP      *mail.SMTPSender
	Mailer    mail.Dispatcher
	Queue     *jobs.Client
	Auth      *auth.Service
	Users     *users.Service
	Suppliers *suppliers.Service
	Audit     *audit.Service
}

// RedisOpts returns the asynq connection options.
func (c *Config) RedisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr}
}

// SMTPFallback converts the SMTP_* environment values.
func (c *Config) SMTPFallback() settings.SMTP {
	return settings.SMTP{
		Host:       c.SMTPHost,
		Port:       c.SMTPPort,
		Username:   c.SMTPUsername,
		Password:   c.SMTPPassword,
		Encryption: c.SMTPEncryption,
		FromEmail:  c.SMTPFrom,
		FromName:   c.SMTPFromName,
	}
}

// SupplierConfig converts the document and performance settings.
func (c *Config) SupplierConfig() suppliers.Config {
	return suppliers.Config{
		ExpiryWindow:      c.DocumentExpiryWindow,
		PerformanceWindow: c.PerformanceWindow,
		Thresholds: suppliers.Thresholds{
			MinOnTimeRate:   c.AlertMinOnTimeRate,
			MinQuality:      c.AlertMinQuality,
			MaxLeadTimeDays: c.AlertMaxLeadTimeDays,
		},
	}
}

// NewServices wires repositories and services over one pool. With
// MAIL_DELIVERY=queue mail goes through the asynq worker; otherwise it is
// sent inline.
func NewServices(cfg *Config, pool *pgxpool.Pool, logger *slog.Logger) *Services {
	s := &Services{
		RBAC:     rbac.NewService(pool),
		Settings: settings.NewService(settings.NewStore(pool), cfg.SMTPFallback()),
		Activity: shared.NewActivityLogger(pool),
	}
	s.SMTP = mail.NewSMTPSender(s.Settings, logger)
	s.Queue = jobs.NewClient(cfg.RedisOpts())
	if cfg.MailDelivery == MailDeliverySync {
		s.Mailer = s.SMTP
	} else {
		s.Mailer = jobs.MailQueue{Client: s.Queue}
	}
	s.Auth = auth.NewService(auth.NewRepository(pool))
	s.Users = users.NewService(users.NewRepository(pool), s.Settings, s.RBAC, s.Mailer, s.Activity, logger)
	s.Suppliers = suppliers.NewService(
		suppliers.NewRepository(pool),
		storage.NewLocal(cfg.UploadDir),
		cfg.SupplierConfig(),
		logger,
	)
	s.Audit = audit.NewService(audit.NewRepository(pool))
	return s
}

// Close releases the queue client.
func (s *Services) Close() error {
	if s == nil || s.Queue == nil {
		return nil
	}
	return s.Queue.Close()
}
