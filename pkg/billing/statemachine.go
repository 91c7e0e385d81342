package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// validTransitions is the authoritative definition of the subscription
// lifecycle. Terminal states have no outgoing edges.
var validTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive: {
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
	},
	SubscriptionStatusPastDue: {
		SubscriptionStatusActive,
		SubscriptionStatusGracePeriod,
		SubscriptionStatusCanceledAuto,
		SubscriptionStatusCanceled,
	},
	SubscriptionStatusGracePeriod: {
		SubscriptionStatusActive,
		SubscriptionStatusCanceledAuto,
		SubscriptionStatusCanceled,
	},
}

// CanTransition reports whether the state machine defines an edge from one
// status to another.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves a subscription from an expected prior status to a new one.
// The update is conditional: it applies only if the row still holds the
// expected status, so two processors racing on the same subscription produce
// a first-writer-wins outcome. Returns whether the transition applied.
//
// An edge the state machine does not define returns ErrInvalidTransition
// before touching the database.
func (s *Store) Transition(ctx context.Context, q Querier, subID uuid.UUID, expectedFrom, to SubscriptionStatus) (bool, error) {
	if !CanTransition(expectedFrom, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expectedFrom, to)
	}

	now := time.Now().UTC()
	query := `UPDATE subscriptions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	args := []any{to, now, subID, expectedFrom}
	if to == SubscriptionStatusGracePeriod {
		// Entering grace starts the expiry clock. The stamp must survive
		// later row updates, so it lives in its own column.
		query = `UPDATE subscriptions SET status = $1, updated_at = $2, grace_entered_at = $3 WHERE id = $4 AND status = $5`
		args = []any{to, now, now, subID, expectedFrom}
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// TerminateLive forces every non-terminal subscription of a tenant into the
// given terminal status. Called inside the same transaction that creates a
// replacement subscription, which is how the at-most-one-live-subscription
// invariant is enforced.
func (s *Store) TerminateLive(ctx context.Context, q Querier, tenantID uuid.UUID, to SubscriptionStatus) (int64, error) {
	if to != SubscriptionStatusCanceled && to != SubscriptionStatusCanceledAuto {
		return 0, fmt.Errorf("%w: terminate target must be terminal, got %s", ErrInvalidTransition, to)
	}

	query := `UPDATE subscriptions SET status = $1, cancel_at_period_end = $2, updated_at = $3
		WHERE tenant_id = $4 AND status IN ('active', 'past_due', 'grace_period')`
	res, err := q.ExecContext(ctx, query, to, true, time.Now().UTC(), tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to terminate live subscriptions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
