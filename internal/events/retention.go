package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/botkit/internal/logging"
)

// ErrInvalidRetention is returned for a non-positive maximum age.
var ErrInvalidRetention = errors.New("retention must be positive")

// Pruner deletes events older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Retention prunes the audit log on a cron schedule.
type Retention struct {
	repo   Pruner
	maxAge time.Duration
	now    func() time.Time
	cron   *cron.Cron
	logger zerolog.Logger
}

// RetentionOption configures a Retention.
type RetentionOption func(*Retention)

// WithRetentionClock replaces time.Now, for tests.
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(r *Retention) {
		r.now = now
	}
}

// NewRetention schedules pruning of events older than maxAge. schedule is a
// standard five-field cron spec or a descriptor such as "@daily".
func NewRetention(repo Pruner, maxAge time.Duration, schedule string, opts ...RetentionOption) (*Retention, error) {
	if maxAge <= 0 {
		return nil, ErrInvalidRetention
	}
	r := &Retention{
		repo:   repo,
		maxAge: maxAge,
		now:    time.Now,
		cron:   cron.New(),
		logger: logging.Component("retention"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, err := r.cron.AddFunc(schedule, func() {
		_, _ = r.PruneOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background.
func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Debug().Dur("max_age", r.maxAge).Msg("audit retention started")
}

// Stop halts the schedule and waits for a running prune to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// PruneOnce deletes every event older than the maximum age.
func (r *Retention) PruneOnce(ctx context.Context) (int64, error) {
	before := r.now().Add(-r.maxAge)
	removed, err := r.repo.Prune(ctx, before)
	if err != nil {
		r.logger.Warn().Err(err).Msg("audit prune failed")
		return 0, err
	}
	if removed > 0 {
		r.logger.Info().Int64("removed", removed).Time("before", before).Msg("audit events pruned")
	}
	return removed, nil
}
