package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActorSync marks transitions applied by the reconciliation engine.
const ActorSync = "sync"

// Transition is one append-only audit entry for a lead status change.
type Transition struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	OldStatus  string
	NewStatus  string
	Actor      string
	Regression bool
	OccurredAt time.Time
}

// InsertTransition appends an audit entry. Entries are only written when the
// status text actually changed, which keeps reconciliation idempotent.
func (r *Repository) InsertTransition(ctx context.Context, q Querier, leadID uuid.UUID, oldStatus, newStatus, actor string, regression bool) (Transition, error) {
	var t Transition
	err := q.QueryRow(ctx, `
		INSERT INTO lead_transitions (lead_id, old_status, new_status, actor, regression)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, lead_id, old_status, new_status, actor, regression, occurred_at
	`, leadID, oldStatus, newStatus, actor, regression).Scan(
		&t.ID, &t.LeadID, &t.OldStatus, &t.NewStatus, &t.Actor, &t.Regression, &t.OccurredAt,
	)
	if err != nil {
		return Transition{}, err
	}
	return t, nil
}

// ListTransitions returns the audit trail for one lead, oldest first.
func (r *Repository) ListTransitions(ctx context.Context, leadID uuid.UUID) ([]Transition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, old_status, new_status, actor, regression, occurred_at
		FROM lead_transitions
		WHERE lead_id = $1
		ORDER BY occurred_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Transition, 0)
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.LeadID, &t.OldStatus, &t.NewStatus, &t.Actor, &t.Regression, &t.OccurredAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}
