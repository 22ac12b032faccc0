package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/posadmin/posadmin/internal/platform/db"
)

// ActivityLog represents a record stored in activity_logs.
type ActivityLog struct {
	UserID     int64
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]any
	IPAddress  string
	At         time.Time
}

// ActivityRecorder is implemented by ActivityLogger and by test doubles.
type ActivityRecorder interface {
	Record(ctx context.Context, log ActivityLog) error
}

// ActivityLogger writes records into activity_logs.
type ActivityLogger struct {
	db db.DBTX
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(conn db.DBTX) *ActivityLogger {
	return &ActivityLogger{db: conn}
}

// WithTx returns a logger bound to the given transaction.
func (l *ActivityLogger) WithTx(tx db.DBTX) *ActivityLogger {
	return &ActivityLogger{db: tx}
}

// Record persists the log entry.
func (l *ActivityLogger) Record(ctx context.Context, log ActivityLog) error {
	if l == nil || l.db == nil {
		return errors.New("activity logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	details, err := json.Marshal(log.Details)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	var userID *int64
	if log.UserID > 0 {
		userID = &log.UserID
	}
	_, err = l.db.Exec(ctx, `INSERT INTO activity_logs (user_id, action, entity_type, entity_id, details, ip_address, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), COALESCE($7, NOW()))`,
		userID, log.Action, log.EntityType, log.EntityID, details, log.IPAddress, at)
	return err
}

func (log ActivityLog) validate() error {
	if log.Action == "" || log.EntityType == "" || log.EntityID == "" {
		return errors.New("activity log requires action/entity_type/entity_id")
	}
	return nil
}
