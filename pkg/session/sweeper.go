package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skillgate/skillgate/pkg/observability"
)

// DefaultSweepSchedule runs the sweep at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// Sweeper periodically deletes expired session rows. Expiry checks elsewhere
// are pure reads; this is the only place expired rows are removed
// automatically.
type Sweeper struct {
	registry Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper with the given cron schedule. metrics may be
// nil.
func NewSweeper(registry Registry, logger *observability.Logger, metrics *observability.Metrics, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("session sweeper started")
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("session sweeper stopped")
}

// Sweep deletes expired sessions once, outside the schedule. Exposed for
// bootstrap-time cleanup.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	return s.registry.DeleteExpired(ctx, time.Now().UTC())
}

func (s *Sweeper) sweep() {
	defer observability.RecoverPanic(s.logger, "session sweep")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.registry.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Error("session sweep failed")
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsSweptTotal.Add(float64(n))
	}
	if n > 0 {
		s.logger.WithField("deleted", n).Info("expired sessions removed")
	}
}
