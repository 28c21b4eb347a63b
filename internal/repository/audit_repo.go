package repository

import (
	"context"
	"time"

	"github.com/samber/oops"

	"identity-service/internal/event"
)

// AuditRepository persists credential events to auth_events.
type AuditRepository struct {
	pool pgxQuerier
}

func NewAuditRepository(pool pgxQuerier) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record stores e. A zero or unparsable timestamp is replaced by now.
func (r *AuditRepository) Record(ctx context.Context, e event.Event) error {
	occurredAt, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO auth_events (id, event_type, occurred_at, user_id, email, reason)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))`,
		e.ID, string(e.Type), occurredAt, e.ActorID, e.Email, e.Reason)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").
			With("event_id", e.ID).
			With("event_type", string(e.Type)).
			Wrap(err)
	}
	return nil
}
