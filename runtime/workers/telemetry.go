package workers

import (
	"chat-relay/domain/chat"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsFunc returns a snapshot of the relay state.
type StatsFunc func() chat.RelayStats

// TelemetryWorker periodically logs room occupancy, fanout backlog and
// the relay process footprint.
type TelemetryWorker struct {
	log                  *slog.Logger
	metricInterval       time.Duration
	lowCapacityThreshold int
	stats                StatsFunc
}

func NewTelemetryWorker(log *slog.Logger,
	metricInterval time.Duration,
	lowCapacityThreshold int,
	stats StatsFunc) *TelemetryWorker {
	return &TelemetryWorker{
		log:                  log,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
		stats:                stats,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Debug("Process metrics unavailable", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *TelemetryWorker) report(p *process.Process) {
	stats := w.stats()
	subscribers := 0
	for _, room := range stats.Rooms {
		subscribers += room.Subscribers
		if room.Subscribers > 0 && room.LagHeadroom() <= w.lowCapacityThreshold {
			w.log.Warn("Room close to lagging",
				"room_id", room.ID,
				"backlog", room.Backlog,
				"capacity", room.Capacity)
		}
	}

	attrs := []any{
		"rooms", len(stats.Rooms),
		"subscribers", subscribers,
		"sessions", stats.ActiveSessions,
	}
	if p != nil {
		if cpu, err := p.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu", cpu)
		}
		if mem, err := p.MemoryInfo(); err == nil {
			attrs = append(attrs, "rss", mem.RSS)
		}
	}
	w.log.Info("Relay telemetry", attrs...)
}
