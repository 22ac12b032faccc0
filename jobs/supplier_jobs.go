package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/posadmin/posadmin/internal/jobs"
	"github.com/posadmin/posadmin/internal/mail"
	"github.com/posadmin/posadmin/internal/suppliers"
)

// Snapshotter stores performance snapshots for every active supplier.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) (suppliers.SnapshotResult, error)
}

// SupplierSnapshotJob handles TaskSupplierSnapshot.
type SupplierSnapshotJob struct {
	Service Snapshotter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSupplierSnapshotJob wires the snapshot handler.
func NewSupplierSnapshotJob(svc Snapshotter, logger *slog.Logger, metrics *jobmetrics.Metrics) *SupplierSnapshotJob {
	return &SupplierSnapshotJob{Service: svc, Logger: logger, Metrics: metrics}
}

// Handle runs one snapshot pass.
func (j *SupplierSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("supplier snapshot: handler not configured")
	}
	start := time.Now()
	tracker := metricsOr(j.Metrics).Track(TaskSupplierSnapshot)
	logger := loggerFor(j.Logger, TaskSupplierSnapshot)
	logger.Info("starting supplier snapshot")

	res, err := j.Service.SnapshotAll(ctx)
	metricsOr(j.Metrics).AddAlerts(res.AlertsOpened)
	if err != nil {
		logger.Error("supplier snapshot failed", slog.Int("suppliers", res.Suppliers), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed supplier snapshot",
		slog.Int("suppliers", res.Suppliers),
		slog.Int("failed", res.Failed),
		slog.Int("alerts_opened", res.AlertsOpened),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

// ExpirySource lists documents past or near expiry.
type ExpirySource interface {
	ExpiringDocuments(ctx context.Context) ([]suppliers.ExpiringDocument, error)
}

// DocumentExpiryJob mails the expiring-document summary to an admin address.
type DocumentExpiryJob struct {
	Source    ExpirySource
	Mailer    mail.Dispatcher
	Recipient string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle scans documents and sends one summary email when any are found.
func (j *DocumentExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Mailer == nil {
		return errors.New("document expiry: handler not configured")
	}
	tracker := metricsOr(j.Metrics).Track(TaskDocumentExpiry)
	logger := loggerFor(j.Logger, TaskDocumentExpiry)

	docs, err := j.Source.ExpiringDocuments(ctx)
	if err != nil {
		logger.Error("load expiring documents", slog.Any("error", err))
		return tracker.End(err)
	}
	expired, expiring := countByStatus(docs)
	metricsOr(j.Metrics).SetExpiringDocuments(suppliers.ExpiryExpired, expired)
	metricsOr(j.Metrics).SetExpiringDocuments(suppliers.ExpiryExpiring, expiring)

	if len(docs) == 0 {
		logger.Info("no expiring documents")
		return tracker.End(nil)
	}
	if strings.TrimSpace(j.Recipient) == "" {
		logger.Warn("expiring documents found but ADMIN_NOTIFY_EMAIL is empty", slog.Int("documents", len(docs)))
		return tracker.End(nil)
	}
	msg := ExpirySummary(j.Recipient, docs)
	if err := j.Mailer.Dispatch(ctx, msg); err != nil {
		logger.Error("send expiry summary", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("expiry summary sent", slog.Int("expired", expired), slog.Int("expiring", expiring))
	return tracker.End(nil)
}

func countByStatus(docs []suppliers.ExpiringDocument) (expired, expiring int) {
	for _, d := range docs {
		switch d.Status {
		case suppliers.ExpiryExpired:
			expired++
		case suppliers.ExpiryExpiring:
			expiring++
		}
	}
	return expired, expiring
}

// ExpirySummary builds the plain-text summary email.
func ExpirySummary(to string, docs []suppliers.ExpiringDocument) mail.Message {
	expired, expiring := countByStatus(docs)
	var b strings.Builder
	fmt.Fprintf(&b, "%d supplier document(s) need attention: %d expired, %d expiring soon.\n\n", len(docs), expired, expiring)
	for _, d := range docs {
		when := ""
		if d.ExpiresAt != nil {
			when = d.ExpiresAt.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- [%s] %s: %s (%s) expires %s\n", d.Status, d.SupplierName, d.Title, d.DocumentType, when)
	}
	return mail.Message{
		To:      to,
		Subject: fmt.Sprintf("Supplier documents: %d expired, %d expiring", expired, expiring),
		Body:    b.String(),
	}
}
