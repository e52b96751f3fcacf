package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

func TestMemoryTimelineNewestFirst(t *testing.T) {
	repo := NewMemoryTimelineRepository(10, logger.NewNop())
	ctx := context.Background()

	for _, typ := range []string{domain.EventTypeDownloadQueued, domain.EventTypeDownloadStarted, domain.EventTypeDownloadCompleted} {
		require.NoError(t, repo.Create(ctx, &domain.TimelineEvent{
			Type:         typ,
			ResourceType: domain.ResourceTypeTask,
			ResourceID:   "task-1",
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.TimelineEvent{
		Type:         domain.EventTypeDownloadQueued,
		ResourceType: domain.ResourceTypeTask,
		ResourceID:   "task-2",
	}))

	events, err := repo.GetByResource(ctx, domain.ResourceTypeTask, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventTypeDownloadCompleted, events[0].Type)
	assert.Equal(t, domain.EventTypeDownloadQueued, events[2].Type)

	all, err := repo.GetAll(ctx, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "task-2", all[0].ResourceID)

	got, err := repo.GetByID(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "task-2", got.ResourceID)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMemoryTimelineCapacity(t *testing.T) {
	repo := NewMemoryTimelineRepository(3, logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &domain.TimelineEvent{Type: domain.EventTypeDownloadQueued}))
	}

	all, err := repo.GetAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint(5), all[0].ID)
	assert.Equal(t, uint(3), all[2].ID)
}

func TestMemoryTimelineCleanupOld(t *testing.T) {
	repo := NewMemoryTimelineRepository(10, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.TimelineEvent{Type: "old", CreatedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, repo.Create(ctx, &domain.TimelineEvent{Type: "new"}))

	removed, err := repo.CleanupOld(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	all, err := repo.GetAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Type)
}
