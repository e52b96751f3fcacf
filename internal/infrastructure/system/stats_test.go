package system

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	stats, err := NewCollector(dir).Disk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, stats.Path)
	assert.Greater(t, stats.Total, uint64(0))
	assert.NotEmpty(t, stats.FreeHuman)
}

func TestDiskUsageMissingDir(t *testing.T) {
	_, err := NewCollector("/definitely/not/here").Disk(context.Background())
	assert.Error(t, err)
}
