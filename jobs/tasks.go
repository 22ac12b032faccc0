package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/posadmin/posadmin/internal/mail"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMail carries outbound email so a slow SMTP server does not hold up snapshots.
	QueueMail = "mail"

	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskSupplierSnapshot stores performance snapshots for active suppliers.
	TaskSupplierSnapshot = "suppliers:performance_snapshot"
	// TaskDocumentExpiry mails the expiring-document summary.
	TaskDocumentExpiry = "suppliers:document_expiry"
)

// Cron specs in UTC.
const (
	SnapshotCron = "30 1 * * *"
	ExpiryCron   = "0 6 * * *"
)

// NewSendEmailTask constructs an Asynq task carrying msg.
func NewSendEmailTask(msg mail.Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueMail), asynq.MaxRetry(5)), nil
}

// ScheduledPayload carries scheduling metadata for cron-driven tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSupplierSnapshotTask constructs the nightly snapshot task.
func NewSupplierSnapshotTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskSupplierSnapshot, at)
}

// NewDocumentExpiryTask constructs the daily expiry scan task.
func NewDocumentExpiryTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskDocumentExpiry, at)
}

func newScheduledTask(typ string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// TaskTypes lists tasks posadminctl may trigger by name.
func TaskTypes() []string {
	return []string{TaskSupplierSnapshot, TaskDocumentExpiry}
}

// NewTaskByType builds a schedulable task from its type name.
func NewTaskByType(typ string, at time.Time) (*asynq.Task, error) {
	switch typ {
	case TaskSupplierSnapshot:
		return NewSupplierSnapshotTask(at)
	case TaskDocumentExpiry:
		return NewDocumentExpiryTask(at)
	default:
		return nil, ErrUnknownTask
	}
}
