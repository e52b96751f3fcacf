package db

import (
	"context"
	"sync"
	"time"

	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

const defaultMemoryTimelineSize = 500

// MemoryTimelineRepository keeps the most recent events in process memory. It
// backs the timeline when no database is configured.
type MemoryTimelineRepository struct {
	mu       sync.RWMutex
	events   []domain.TimelineEvent
	capacity int
	nextID   uint
	logger   *logger.Logger
}

func NewMemoryTimelineRepository(capacity int, log *logger.Logger) ports.TimelineRepository {
	if capacity <= 0 {
		capacity = defaultMemoryTimelineSize
	}
	return &MemoryTimelineRepository{capacity: capacity, logger: log}
}

func (r *MemoryTimelineRepository) Create(ctx context.Context, event *domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	event.ID = r.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.UpdatedAt = event.CreatedAt

	r.events = append(r.events, *event)
	if len(r.events) > r.capacity {
		r.events = r.events[len(r.events)-r.capacity:]
	}

	r.logger.Debugw("timeline_event",
		"type", event.Type,
		"status", event.Status,
		"message", event.Message,
		"resource_id", event.ResourceID,
	)
	return nil
}

func (r *MemoryTimelineRepository) GetByID(ctx context.Context, id uint) (*domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.events {
		if r.events[i].ID == id {
			event := r.events[i]
			return &event, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryTimelineRepository) GetByResource(ctx context.Context, resourceType string, resourceID string) ([]domain.TimelineEvent, error) {
	return r.newestFirst(50, func(e *domain.TimelineEvent) bool {
		return e.ResourceType == resourceType && e.ResourceID == resourceID
	}), nil
}

func (r *MemoryTimelineRepository) GetAll(ctx context.Context, limit int) ([]domain.TimelineEvent, error) {
	return r.newestFirst(limit, nil), nil
}

func (r *MemoryTimelineRepository) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := r.events[:0]
	for _, event := range r.events {
		if !event.CreatedAt.Before(cutoff) {
			kept = append(kept, event)
		}
	}
	removed := int64(len(r.events) - len(kept))
	r.events = kept
	return removed, nil
}

func (r *MemoryTimelineRepository) newestFirst(limit int, match func(*domain.TimelineEvent) bool) []domain.TimelineEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TimelineEvent, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if match == nil || match(&r.events[i]) {
			out = append(out, r.events[i])
		}
	}
	return out
}
