// Package observability samples process and chat health at a fixed
// interval and writes it to the structured log.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsSource reports the live room and member totals.
type StatsSource func() (rooms, members int)

type Reporter struct {
	log      *slog.Logger
	interval time.Duration
	stats    StatsSource
}

func NewReporter(log *slog.Logger, interval time.Duration, stats StatsSource) *Reporter {
	return &Reporter{log: log, interval: interval, stats: stats}
}

// Run executes the sampling loop until context cancellation.
func (r *Reporter) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.report(p)
		}
	}
}

func (r *Reporter) report(p *process.Process) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	rss, cpu, status, err := selfStats(p)
	if err != nil {
		r.log.Error("Failed to collect self stats", "err", err)
		return
	}

	rooms, members := r.stats()
	r.log.Info("Chat health",
		"rooms", rooms,
		"members", members,
		"goroutines", runtime.NumGoroutine(),
		"alloc_mb", m.Alloc/1024/1024,
		"num_gc", m.NumGC,
		"cpu_percent", cpu,
		"rss_mb", rss/1024/1024,
		"pid_status", status,
	)
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
