package suppliers

import (
	"context"
	"strings"
)

const maxReasonRunes = 500

// SetWorkflowState moves a supplier to state directly. Any state may follow
// any other; repeating the current state is rejected.
func (s *Service) SetWorkflowState(ctx context.Context, actor Actor, id int64, state WorkflowState, reason string) error {
	state = WorkflowState(strings.TrimSpace(string(state)))
	if !state.Valid() {
		return ErrInvalidState
	}
	reason = truncateRunes(strings.TrimSpace(reason), maxReasonRunes)
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		sup, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if sup.WorkflowState == state {
			return ErrSameState
		}
		if err := tx.SetWorkflowState(ctx, id, state); err != nil {
			return err
		}
		if err := tx.InsertWorkflowChange(ctx, WorkflowChange{
			SupplierID: id,
			FromState:  sup.WorkflowState,
			ToState:    state,
			Reason:     reason,
			ChangedBy:  actor.ref(),
		}); err != nil {
			return err
		}
		return tx.RecordActivity(ctx, activity(actor, "supplier.workflow_changed", id, map[string]any{
			"from":   string(sup.WorkflowState),
			"to":     string(state),
			"reason": reason,
		}))
	})
}

// truncateRunes cuts s to at most n characters without splitting one.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
