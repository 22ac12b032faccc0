package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/posadmin/posadmin/internal/jobs"
	"github.com/posadmin/posadmin/internal/mail"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SendEmailJob delivers queued mail through a synchronous sender.
type SendEmailJob struct {
	Sender  mail.Dispatcher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSendEmailJob wires the mail:send handler.
func NewSendEmailJob(sender mail.Dispatcher, logger *slog.Logger, metrics *jobmetrics.Metrics) *SendEmailJob {
	return &SendEmailJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks. Malformed payloads and bad
// recipients are not retried.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("send email: handler not configured")
	}
	var msg mail.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := loggerFor(j.Logger, TaskTypeSendEmail).With(slog.String("to", msg.To))
	if err := msg.Validate(); err != nil {
		logger.Warn("dropping invalid email", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOr(j.Metrics).Track(TaskTypeSendEmail)
	err := tracker.End(j.Sender.Dispatch(ctx, msg))
	if err != nil {
		logger.Error("send email", slog.Any("error", err))
		return err
	}
	logger.Info("email sent", slog.String("subject", msg.Subject))
	return nil
}

func loggerFor(l *slog.Logger, job string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", job))
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
