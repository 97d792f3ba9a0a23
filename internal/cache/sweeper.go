package cache

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSweepSchedule evicts expired entries once a minute.
const DefaultSweepSchedule = "@every 1m"

// Purger is anything with expired entries to drop.
type Purger interface {
	Purge() int
}

// Sweeper runs Purge on a cron schedule between Open and Close.
type Sweeper struct {
	schedule string
	purgers  []Purger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper. An empty schedule uses DefaultSweepSchedule.
func NewSweeper(schedule string, purgers ...Purger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{schedule: schedule, purgers: purgers}
}

// Name identifies the sweeper in lifecycle logs.
func (s *Sweeper) Name() string { return "cache-sweeper" }

// Open validates the schedule and starts the cron runner.
func (s *Sweeper) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.Sweep); err != nil {
		return errors.Wrapf(err, "cache sweep schedule %q", s.schedule)
	}
	c.Start()
	s.cron = c

	log.Debug().Str("schedule", s.schedule).Msg("Cache sweeper started")
	return nil
}

// Sweep purges every registered cache once.
func (s *Sweeper) Sweep() {
	total := 0
	for _, p := range s.purgers {
		total += p.Purge()
	}
	if total > 0 {
		log.Debug().Int("evicted", total).Msg("Cache sweep completed")
	}
}

// Close stops the cron runner and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Close(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "stop cache sweeper")
	}
}
