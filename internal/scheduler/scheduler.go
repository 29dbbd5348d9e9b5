package scheduler

import (
	"context"
	"log/slog"
	"time"

	"lynora/internal/config"
	"lynora/internal/events"
	"lynora/internal/performance"
)

// Scheduler runs the periodic jobs around the market core: relaying committed
// events and logging the market report. The core itself never depends on it.
type Scheduler struct {
	outbox    *events.Outbox
	publisher events.Publisher
	tracker   *performance.Tracker
	batchSize int
	cfg       config.ScheduleConfig
	logger    *slog.Logger
}

// New creates a new Scheduler with all dependencies.
func New(
	outbox *events.Outbox,
	publisher events.Publisher,
	tracker *performance.Tracker,
	batchSize int,
	cfg config.ScheduleConfig,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		outbox:    outbox,
		publisher: publisher,
		tracker:   tracker,
		batchSize: batchSize,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts all periodic loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"relay_interval", s.cfg.RelayInterval.Duration,
		"report_interval", s.cfg.ReportInterval.Duration,
	)

	// First pass immediately.
	s.RelayEvents(ctx)
	s.Report(ctx)

	relayTicker := time.NewTicker(s.cfg.RelayInterval.Duration)
	reportTicker := time.NewTicker(s.cfg.ReportInterval.Duration)
	defer relayTicker.Stop()
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-relayTicker.C:
			s.RelayEvents(ctx)
		case <-reportTicker.C:
			s.Report(ctx)
		}
	}
}

// RelayEvents drains the outbox in batches until it is empty or a publish
// fails.
func (s *Scheduler) RelayEvents(ctx context.Context) {
	total := 0
	for {
		n, err := events.Relay(ctx, s.outbox, s.publisher, s.batchSize)
		total += n
		if err != nil {
			s.logger.Error("event relay failed", "relayed", total, "error", err)
			return
		}
		if n < s.batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Debug("events relayed", "count", total)
	}
}

func (s *Scheduler) Report(ctx context.Context) {
	report, err := s.tracker.Generate(ctx, time.Now())
	if err != nil {
		s.logger.Error("market report failed", "error", err)
		return
	}
	performance.LogReport(s.logger, report)
}
