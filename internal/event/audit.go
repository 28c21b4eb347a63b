package event

import (
	"context"
	"log/slog"
	"time"
)

// Recorder stores events durably.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// RunAuditLog writes every event on bus to logger, and to recorder when it
// is non-nil, until ctx is done. Failure reasons only ever reach the audit
// trail, never a client response.
func RunAuditLog(ctx context.Context, bus Bus, logger *slog.Logger, recorder Recorder) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			logEvent(logger, e)
			if recorder == nil {
				continue
			}

			recordCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := recorder.Record(recordCtx, e); err != nil {
				logger.Error("audit event not persisted", "event_id", e.ID, "error", err)
			}
			cancel()
		}
	}
}

func logEvent(logger *slog.Logger, e Event) {
	attrs := []any{
		"event_id", e.ID,
		"event", string(e.Type),
		"at", e.Timestamp,
	}
	if e.ActorID != "" {
		attrs = append(attrs, "user_id", e.ActorID)
	}
	if e.Email != "" {
		attrs = append(attrs, "email", e.Email)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
		logger.Warn("audit", attrs...)
		return
	}
	logger.Info("audit", attrs...)
}
