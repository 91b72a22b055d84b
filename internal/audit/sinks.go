package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/model"
)

// TrailStore persists audit entries.
type TrailStore interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
}

// NewTrailSink appends one audit row per event.
func NewTrailSink(store TrailStore, logger *zap.Logger) Sink {
	return func(ctx context.Context, ev model.Event) {
		entry := model.AuditEntry{
			ID:         uuid.NewString(),
			ActorID:    ev.ActorID,
			Action:     string(ev.Type),
			EntityType: entityTypeOf(ev),
			EntityID:   entityIDOf(ev),
			Details:    ev.Details,
			CreatedAt:  ev.At,
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		if err := store.AppendAudit(ctx, entry); err != nil {
			logger.Warn("append audit entry", zap.Error(err), zap.String("action", entry.Action))
		}
	}
}

// NewLogSink mirrors every event to the structured log.
func NewLogSink(logger *zap.Logger) Sink {
	return func(_ context.Context, ev model.Event) {
		logger.Info("event",
			zap.String("type", string(ev.Type)),
			zap.String("actor", ev.ActorID),
			zap.String("instance", ev.ProcessInstanceID),
			zap.String("step", ev.StepInstanceID))
	}
}

func entityTypeOf(ev model.Event) string {
	if ev.StepInstanceID != "" {
		return "step_instance"
	}
	if ev.ProcessInstanceID != "" {
		return "process_instance"
	}
	return "catalog"
}

func entityIDOf(ev model.Event) string {
	if ev.StepInstanceID != "" {
		return ev.StepInstanceID
	}
	return ev.ProcessInstanceID
}
