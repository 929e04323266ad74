// Package retention prunes old terminal jobs on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper deletes completed and failed jobs whose completion time is older
// than MaxAge. Pending and processing jobs are never touched.
type Sweeper struct {
	store  jobs.Store
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	runner *cron.Cron
}

// NewSweeper returns a sweeper over store. A nil logger discards logs.
func NewSweeper(store jobs.Store, maxAge time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, maxAge: maxAge, logger: logger, now: time.Now}
}

// Sweep prunes once and returns the number of jobs removed. A zero MaxAge
// disables pruning.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: prune: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned jobs", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Start schedules Sweep with a standard five-field cron expression or a
// descriptor such as "@every 1h". It does not block.
func (s *Sweeper) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		return fmt.Errorf("retention: already started")
	}

	logger := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Warn("retention sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("retention: schedule %q: %w", schedule, err)
	}
	c.Start()
	s.runner = c
	s.logger.Info("retention scheduled", zap.String("schedule", schedule), zap.Duration("max_age", s.maxAge))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.runner
	s.runner = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
