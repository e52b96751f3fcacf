package system

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type DiskStats struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
	FreeHuman   string  `json:"free_human"`
}

type HostStats struct {
	Hostname    string  `json:"hostname"`
	Uptime      uint64  `json:"uptime"`
	RAMUsage    float64 `json:"ram_usage"`
	RAMTotal    uint64  `json:"ram_total"`
	CollectedAt int64   `json:"collected_at"`
}

// Collector reads host statistics for the health endpoint.
type Collector struct {
	downloadDir string
}

func NewCollector(downloadDir string) *Collector {
	return &Collector{downloadDir: downloadDir}
}

// Disk reports usage of the filesystem holding the download directory.
func (c *Collector) Disk(ctx context.Context) (*DiskStats, error) {
	usage, err := disk.UsageWithContext(ctx, c.downloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage: %w", err)
	}
	return &DiskStats{
		Path:        c.downloadDir,
		Total:       usage.Total,
		Free:        usage.Free,
		Used:        usage.Used,
		UsedPercent: usage.UsedPercent,
		FreeHuman:   humanize.Bytes(usage.Free),
	}, nil
}

// Host collects best-effort host facts; fields that cannot be read stay zero.
func (c *Collector) Host(ctx context.Context) *HostStats {
	stats := &HostStats{CollectedAt: time.Now().Unix()}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.RAMUsage = memInfo.UsedPercent
		stats.RAMTotal = memInfo.Total
	}
	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = hostInfo.Hostname
		stats.Uptime = hostInfo.Uptime
	}
	return stats
}
