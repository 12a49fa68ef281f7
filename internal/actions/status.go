package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/procfs"
)

func (d *Dispatcher) serverStatus(ctx context.Context, params json.RawMessage) (string, error) {
	fs, err := procfs.NewFS(d.cfg.ProcMount)
	if err != nil {
		return "", fmt.Errorf("open procfs: %w", err)
	}

	load, err := fs.LoadAvg()
	if err != nil {
		return "", fmt.Errorf("read loadavg: %w", err)
	}

	mem, err := fs.Meminfo()
	if err != nil {
		return "", fmt.Errorf("read meminfo: %w", err)
	}

	stat, err := fs.Stat()
	if err != nil {
		return "", fmt.Errorf("read stat: %w", err)
	}
	uptime := time.Since(time.Unix(int64(stat.BootTime), 0))

	var memPart string
	if mem.MemTotal != nil && mem.MemAvailable != nil && *mem.MemTotal > 0 {
		totalGB := float64(*mem.MemTotal) / (1024 * 1024)
		usedGB := float64(*mem.MemTotal-*mem.MemAvailable) / (1024 * 1024)
		usedPct := 100 * usedGB / totalGB
		memPart = fmt.Sprintf("memory %.0f%% used (%.1fGB of %.1fGB)", usedPct, usedGB, totalGB)
	} else {
		memPart = "memory usage unavailable"
	}

	return fmt.Sprintf("Server status: CPU load %.2f/%.2f/%.2f, %s, been up for %s.",
		load.Load1, load.Load5, load.Load15, memPart, formatUptime(uptime)), nil
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
