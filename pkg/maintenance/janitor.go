// Package maintenance runs the background housekeeping loops: evicting
// idle browser instances from the pool and dropping expired rate-limit
// windows. Schedules use cron syntax, including the @every shorthand.
package maintenance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
)

// PoolSweeper evicts idle or dead instances; the pool implements it.
type PoolSweeper interface {
	SweepIdle(now time.Time) int
}

// RateSweeper drops expired rate-limit windows; the admission
// controller implements it.
type RateSweeper interface {
	SweepExpiredRateEntries(now time.Time) int
}

// Config holds the janitor schedules.
type Config struct {
	// PoolSweepSchedule is the idle-instance eviction schedule.
	// Empty selects "@every 60s".
	PoolSweepSchedule string

	// RateLimitSweepSchedule is the rate-window GC schedule.
	// Empty selects "@every 30s".
	RateLimitSweepSchedule string
}

// Janitor owns the cron scheduler driving both sweeps.
type Janitor struct {
	cron   *cron.Cron
	pool   PoolSweeper
	rates  RateSweeper
	logger logging.Logger
}

// New validates the schedules and registers both sweep jobs. The
// scheduler does not run until Start is called.
func New(pool PoolSweeper, rates RateSweeper, cfg Config, logger logging.Logger) (*Janitor, error) {
	if cfg.PoolSweepSchedule == "" {
		cfg.PoolSweepSchedule = "@every 60s"
	}
	if cfg.RateLimitSweepSchedule == "" {
		cfg.RateLimitSweepSchedule = "@every 30s"
	}

	j := &Janitor{
		cron:   cron.New(),
		pool:   pool,
		rates:  rates,
		logger: logging.OrNop(logger),
	}

	if _, err := j.cron.AddFunc(cfg.PoolSweepSchedule, j.sweepPool); err != nil {
		return nil, fmt.Errorf("invalid pool sweep schedule %q: %w", cfg.PoolSweepSchedule, err)
	}
	if _, err := j.cron.AddFunc(cfg.RateLimitSweepSchedule, j.sweepRates); err != nil {
		return nil, fmt.Errorf("invalid rate limit sweep schedule %q: %w", cfg.RateLimitSweepSchedule, err)
	}
	return j, nil
}

// Start launches the scheduler in its own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Infof("Maintenance janitor started")
}

// Stop halts the scheduler and waits for any running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Infof("Maintenance janitor stopped")
}

func (j *Janitor) sweepPool() {
	if j.pool == nil {
		return
	}
	if evicted := j.pool.SweepIdle(time.Now()); evicted > 0 {
		j.logger.Infof("Evicted %d idle browser instances", evicted)
	}
}

func (j *Janitor) sweepRates() {
	if j.rates == nil {
		return
	}
	if removed := j.rates.SweepExpiredRateEntries(time.Now()); removed > 0 {
		j.logger.Debugf("Dropped %d expired rate limit windows", removed)
	}
}
