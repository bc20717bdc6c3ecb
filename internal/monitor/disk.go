package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/shirou/gopsutil/v4/disk"
)

const bytesPerGB = 1 << 30

// DiskUsage is a point-in-time reading of one volume.
type DiskUsage struct {
	UsedPercent float64
	Free        uint64
}

// DiskUsageFunc reads usage for the volume holding path.
type DiskUsageFunc func(ctx context.Context, path string) (DiskUsage, error)

// SystemDiskUsage reads usage from the host.
func SystemDiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return DiskUsage{UsedPercent: u.UsedPercent, Free: u.Free}, nil
}

// DiskThresholds are usage percentages for the warning and critical alerts.
type DiskThresholds struct {
	Warning  float64
	Critical float64
}

// DefaultDiskThresholds warns at 80% and escalates at 90%.
func DefaultDiskThresholds() DiskThresholds {
	return DiskThresholds{Warning: 80, Critical: 90}
}

type diskCheck struct {
	path       string
	thresholds DiskThresholds
	usage      DiskUsageFunc
}

// WithDiskCheck checks the volume holding path on schedule. A nil usage
// reads from the host.
func WithDiskCheck(schedule, path string, thresholds DiskThresholds, usage DiskUsageFunc) Option {
	if usage == nil {
		usage = SystemDiskUsage
	}
	return func(m *Monitor) {
		m.disk = diskCheck{path: path, thresholds: thresholds, usage: usage}
		m.jobs = append(m.jobs, job{name: "disk", schedule: schedule, run: func(ctx context.Context) error {
			_, err := m.CheckDisk(ctx)
			return err
		}})
	}
}

// CheckDisk reads disk usage and alerts while it is at or above a threshold.
// The alert repeats on every run until space is freed.
func (m *Monitor) CheckDisk(ctx context.Context) (DiskUsage, error) {
	if m.disk.usage == nil {
		return DiskUsage{}, errors.New("disk check not configured")
	}
	u, err := m.disk.usage(ctx, m.disk.path)
	if err != nil {
		return DiskUsage{}, err
	}
	m.metrics.DiskUsagePercent.Set(u.UsedPercent)

	freeGB := float64(u.Free) / bytesPerGB
	th := m.disk.thresholds
	switch {
	case u.UsedPercent >= th.Critical:
		m.logger.Error("disk space critical", "path", m.disk.path, "used_percent", u.UsedPercent)
		m.send(ctx, notify.Message{
			Title:    "Disk Space Low (Critical)",
			Body:     fmt.Sprintf("Disk space is almost full!\nPath: %s\nUsage: %.1f%%\nFree space: %.2f GB", m.disk.path, u.UsedPercent, freeGB),
			Priority: notify.PriorityUrgent,
			Tags:     []string{"warning", "skull", "floppy_disk"},
		})
	case u.UsedPercent >= th.Warning:
		m.logger.Warn("disk space low", "path", m.disk.path, "used_percent", u.UsedPercent)
		m.send(ctx, notify.Message{
			Title:    "Disk Space Warning",
			Body:     fmt.Sprintf("Disk space is running low.\nPath: %s\nUsage: %.1f%%\nFree space: %.2f GB", m.disk.path, u.UsedPercent, freeGB),
			Priority: notify.PriorityHigh,
			Tags:     []string{"warning", "floppy_disk"},
		})
	default:
		m.logger.Debug("disk space normal", "path", m.disk.path, "used_percent", u.UsedPercent)
	}
	return u, nil
}
