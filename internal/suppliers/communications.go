package suppliers

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/posadmin/posadmin/internal/platform/httpx"
)

// FollowUpHorizon is how far ahead the follow-up list looks.
const FollowUpHorizon = 14 * 24 * time.Hour

// CommunicationInput is the log-communication form.
type CommunicationInput struct {
	Channel       string
	Direction     string
	Subject       string
	Body          string
	ContactPerson string
	OccurredAt    *time.Time
	FollowUpAt    *time.Time
}

// LogCommunication records an interaction with a supplier.
func (s *Service) LogCommunication(ctx context.Context, actor Actor, supplierID int64, in CommunicationInput) (int64, error) {
	in.Channel = strings.ToLower(strings.TrimSpace(in.Channel))
	in.Direction = strings.ToLower(strings.TrimSpace(in.Direction))
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	in.ContactPerson = strings.TrimSpace(in.ContactPerson)

	fields := map[string]string{}
	if !slices.Contains(Channels, in.Channel) {
		fields["channel"] = "Choose a channel"
	}
	if !slices.Contains(Directions, in.Direction) {
		fields["direction"] = "Choose a direction"
	}
	if in.Subject == "" {
		fields["subject"] = "subject is required"
	} else if len(in.Subject) > 200 {
		fields["subject"] = "subject must be at most 200 characters"
	}
	occurred := s.now()
	if in.OccurredAt != nil {
		occurred = *in.OccurredAt
	}
	if in.FollowUpAt != nil && in.FollowUpAt.Before(occurred) {
		fields["follow_up_at"] = "Follow-up must be after the communication date"
	}
	if len(fields) > 0 {
		return 0, &ValidationError{Fields: fields}
	}

	var id int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Get(ctx, supplierID); err != nil {
			return err
		}
		var err error
		id, err = tx.InsertCommunication(ctx, Communication{
			SupplierID:    supplierID,
			Channel:       in.Channel,
			Direction:     in.Direction,
			Subject:       in.Subject,
			Body:          in.Body,
			ContactPerson: in.ContactPerson,
			OccurredAt:    occurred,
			FollowUpAt:    in.FollowUpAt,
			CreatedBy:     actor.ref(),
		})
		if err != nil {
			return err
		}
		return tx.RecordActivity(ctx, activity(actor, "supplier.communication_logged", supplierID, map[string]any{
			"communication_id": id, "channel": in.Channel, "subject": in.Subject,
		}))
	})
	return id, err
}

// DeleteCommunication removes a logged interaction.
func (s *Service) DeleteCommunication(ctx context.Context, actor Actor, supplierID, commID int64) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.DeleteCommunication(ctx, supplierID, commID); err != nil {
			return err
		}
		return tx.RecordActivity(ctx, activity(actor, "supplier.communication_deleted", supplierID, map[string]any{"communication_id": commID}))
	})
}

// FollowUp is a communication with its due classification.
type FollowUp struct {
	Communication
	Overdue bool
}

// FollowUps lists overdue follow-ups and those due within FollowUpHorizon.
func (s *Service) FollowUps(ctx context.Context) ([]FollowUp, error) {
	now := s.now()
	comms, err := s.store.FollowUps(ctx, now.Add(FollowUpHorizon))
	if err != nil {
		return nil, err
	}
	out := make([]FollowUp, 0, len(comms))
	for _, c := range comms {
		out = append(out, FollowUp{Communication: c, Overdue: c.FollowUpAt.Before(now)})
	}
	return out, nil
}

// ParseDate parses a yyyy-mm-dd or datetime-local form value; blank yields nil.
func ParseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, httpx.Errorf(httpx.ErrValidation, "Invalid date %q", raw)
}
