package services

import (
	"context"
	"time"

	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
)

// timelineRecorder writes download lifecycle events. A nil repo disables it.
type timelineRecorder struct {
	repo   ports.TimelineRepository
	logger *logger.Logger
}

func (r *timelineRecorder) record(ctx context.Context, eventType string, status domain.EventStatus, taskID string, msg string, meta map[string]any) {
	if r == nil || r.repo == nil {
		return
	}

	if meta == nil {
		meta = make(map[string]any)
	}
	if reqID := ctx.Value(RequestIDKey); reqID != nil {
		meta["request_id"] = reqID
	}

	event := &domain.TimelineEvent{
		Type:         eventType,
		Status:       status,
		Message:      msg,
		Meta:         domain.JSONB(meta),
		ResourceID:   taskID,
		ResourceType: domain.ResourceTypeTask,
		CreatedAt:    time.Now(),
	}

	// Events are still written while the service shuts down.
	if err := r.repo.Create(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Errorw("timeline_event_failed", "type", eventType, "task_id", taskID, "error", err)
	}
}

type contextKey string

// RequestIDKey is the context key under which handlers pass the request id.
const RequestIDKey contextKey = "request_id"
