package scheduler

import (
	"context"
	"time"

	"assessportal/platform/config"
	"assessportal/platform/logger"
)

// Sweeper marks in-progress stages overdue once their due date passes.
type Sweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (int, error)
}

// OverdueSweep periodically runs the overdue-stage sweep. It runs inside the
// API process because the canonical timeline state lives there.
type OverdueSweep struct {
	sweeper  Sweeper
	interval time.Duration
	log      *logger.Logger
}

func NewOverdueSweep(cfg config.SchedulerConfig, sweeper Sweeper, log *logger.Logger) *OverdueSweep {
	interval := cfg.GetOverdueSweepInterval()
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &OverdueSweep{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
	}
}

func (s *OverdueSweep) Run(ctx context.Context) {
	if s == nil || s.sweeper == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		flagged, err := s.sweeper.SweepOverdue(ctx, time.Now().UTC())
		if err != nil {
			s.log.Warn("overdue sweep failed", "error", err)
			continue
		}
		if flagged > 0 {
			s.log.Info("overdue sweep flagged stages", "count", flagged)
		}
	}
}
