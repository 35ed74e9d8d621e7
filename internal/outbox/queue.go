// Package outbox paces outbound Bot API calls through a single worker that
// enforces a sliding one-minute admission window and backs off on failure.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/botkit/internal/logging"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// Queue errors.
var (
	// ErrRateLimited classifies transport failures that call for the long cooldown.
	ErrRateLimited = telegram.ErrTooManyRequests

	ErrQueueStopped   = errors.New("queue stopped")
	ErrExecution      = errors.New("queued action failed")
	ErrInvalidLimit   = errors.New("saturation limit must be positive")
	errActionPanicked = errors.New("action panicked")
)

// Action is a unit of outbound work run by the worker.
type Action func(ctx context.Context, api telegram.API) error

// Config contains queue configuration.
type Config struct {
	// SaturationLimit is the maximum number of dispatches within Window.
	// Default: 30.
	SaturationLimit int

	// StandardWait is the sleep between passes.
	// Default: 500 milliseconds.
	StandardWait time.Duration

	// FailureWait is the sleep after a pass with a generic transport error.
	// Default: 2 seconds.
	FailureWait time.Duration

	// RateLimitWait is the sleep after a pass that hit the platform rate limit.
	// Default: 60 seconds.
	RateLimitWait time.Duration

	// DispatchDelay separates dispatches within one pass.
	// Default: 100 milliseconds.
	DispatchDelay time.Duration

	// Window is the admission window length.
	// Default: 1 minute.
	Window time.Duration
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{
		SaturationLimit: 30,
		StandardWait:    500 * time.Millisecond,
		FailureWait:     2 * time.Second,
		RateLimitWait:   60 * time.Second,
		DispatchDelay:   100 * time.Millisecond,
		Window:          time.Minute,
	}
}

// Loss describes a pass that failed after work had already been dispatched.
type Loss struct {
	// Dispatched is the number of actions sent in the failed pass.
	Dispatched  int
	RateLimited bool
	Err         error
	At          time.Time
}

// Stats contains queue statistics.
type Stats struct {
	Status     Status
	Pending    int
	WindowSize int
	Limit      int
	Passes     int64
	Dispatched int64
	Failed     int64
	Losses     int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithClock replaces the clock used for admission timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithLossHandler registers a callback invoked for every failed pass.
func WithLossHandler(fn func(Loss)) Option {
	return func(q *Queue) {
		q.onLoss = fn
	}
}

type item struct {
	id     string
	action Action

	// abandon is called instead of action when the queue stops first.
	abandon func(error)
}

// Queue is an unbounded FIFO of actions drained by one background worker.
type Queue struct {
	api    telegram.API
	config Config
	logger zerolog.Logger
	now    func() time.Time
	onLoss func(Loss)

	status atomic.Int32
	limit  atomic.Int64

	mu      sync.Mutex
	pending []*item

	// window is only touched by the worker goroutine.
	window []time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates a queue and starts its worker.
func New(api telegram.API, config Config, opts ...Option) *Queue {
	defaults := DefaultConfig()
	if config.SaturationLimit <= 0 {
		config.SaturationLimit = defaults.SaturationLimit
	}
	if config.StandardWait <= 0 {
		config.StandardWait = defaults.StandardWait
	}
	if config.FailureWait <= 0 {
		config.FailureWait = defaults.FailureWait
	}
	if config.RateLimitWait <= 0 {
		config.RateLimitWait = defaults.RateLimitWait
	}
	if config.DispatchDelay < 0 {
		config.DispatchDelay = 0
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}

	q := &Queue{
		api:    api,
		config: config,
		logger: logging.Component("outbox"),
		now:    time.Now,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.limit.Store(int64(config.SaturationLimit))

	q.status.Store(int32(StatusActive))
	q.logger.Info().
		Int("saturation_limit", config.SaturationLimit).
		Dur("standard_wait", config.StandardWait).
		Msg("outbox starting")

	go q.run()
	return q
}

// Status returns the current lifecycle state.
func (q *Queue) Status() Status {
	return Status(q.status.Load())
}

// SetSaturationLimit changes the admission limit. It applies from the next
// admission check.
func (q *Queue) SetSaturationLimit(n int) error {
	if n <= 0 {
		return ErrInvalidLimit
	}
	q.limit.Store(int64(n))
	q.logger.Info().Int("saturation_limit", n).Msg("saturation limit changed")
	return nil
}

// Enqueue appends fire-and-forget actions. It never blocks. Actions enqueued
// after Stop are dropped with a warning.
func (q *Queue) Enqueue(actions ...Action) {
	for _, a := range actions {
		if a == nil {
			continue
		}
		q.push(&item{id: uuid.NewString(), action: a})
	}
}

// push appends it unless the queue is stopping. The status check and the
// append share q.mu with exit, so an accepted item is always either run or
// abandoned.
func (q *Queue) push(it *item) {
	q.mu.Lock()
	if q.Status() != StatusActive {
		q.mu.Unlock()
		q.logger.Warn().Str("action_id", it.id).Msg("queue not active, action dropped")
		if it.abandon != nil {
			it.abandon(ErrQueueStopped)
		}
		return
	}
	q.pending = append(q.pending, it)
	q.mu.Unlock()
	q.logger.Trace().Str("action_id", it.id).Msg("action enqueued")
}

// Stop requests a graceful stop: the current pass finishes, then the worker exits.
func (q *Queue) Stop() {
	if q.status.CompareAndSwap(int32(StatusActive), int32(StatusStopping)) {
		q.logger.Info().Msg("outbox stopping")
	}
	q.stopOnce.Do(func() { close(q.stopCh) })
}

// ForceStop aborts at the next checkpoint, even mid-pass. Actions already
// dispatched keep running.
func (q *Queue) ForceStop() {
	for {
		cur := Status(q.status.Load())
		if cur.Terminal() || cur == StatusForceStopping {
			break
		}
		if q.status.CompareAndSwap(int32(cur), int32(StatusForceStopping)) {
			q.logger.Warn().Msg("outbox force stopping")
			break
		}
	}
	q.stopOnce.Do(func() { close(q.stopCh) })
}

// Done is closed when the worker exits.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the worker exits or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()

	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	s := q.stats
	s.Status = q.Status()
	s.Pending = pending
	s.Limit = int(q.limit.Load())
	return s
}

// run is the worker loop.
func (q *Queue) run() {
	defer close(q.done)

	wait := q.config.StandardWait
	for {
		if q.exit() {
			return
		}
		q.sleep(wait)
		if q.exit() {
			return
		}
		wait = q.pass()
	}
}

// exit moves a stop request to its terminal state and reports whether the
// worker should return.
func (q *Queue) exit() bool {
	if q.Status() == StatusActive {
		return false
	}

	q.mu.Lock()
	if q.Status() == StatusForceStopping {
		q.status.Store(int32(StatusForceStopped))
	} else {
		q.status.Store(int32(StatusStopped))
	}
	rest := q.pending
	q.pending = nil
	q.mu.Unlock()

	q.abandon(rest)
	q.logger.Info().Str("status", q.Status().String()).Msg("outbox stopped")
	return true
}

func (q *Queue) abandon(rest []*item) {
	if len(rest) > 0 {
		q.logger.Warn().Int("count", len(rest)).Msg("discarding undispatched actions")
	}
	for _, it := range rest {
		if it.abandon != nil {
			it.abandon(ErrQueueStopped)
		}
	}
}

// sleep waits for d or until a stop is requested.
func (q *Queue) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.stopCh:
	}
}

// evict drops timestamps older than the window, oldest first.
func (q *Queue) evict(now time.Time) {
	cut := 0
	for cut < len(q.window) && now.Sub(q.window[cut]) >= q.config.Window {
		cut++
	}
	if cut > 0 {
		q.window = append(q.window[:0], q.window[cut:]...)
	}
}

func (q *Queue) dequeue() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	it := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return it
}

// pass admits as much work as the window allows and returns the next wait.
func (q *Queue) pass() time.Duration {
	q.evict(q.now())

	var g errgroup.Group
	dispatched := 0
admit:
	for {
		switch q.Status() {
		case StatusForceStopping:
			q.logger.Warn().Int("dispatched", dispatched).Msg("pass aborted")
			return 0
		case StatusStopping:
			// Finish what is in flight, admit nothing new.
			break admit
		}
		if len(q.window) >= int(q.limit.Load()) {
			break
		}
		if dispatched > 0 && q.config.DispatchDelay > 0 {
			q.sleep(q.config.DispatchDelay)
			if q.Status() != StatusActive {
				continue
			}
		}
		it := q.dequeue()
		if it == nil {
			break
		}
		q.window = append(q.window, q.now())
		dispatched++
		g.Go(func() error { return q.execute(it) })
	}

	q.statsMu.Lock()
	q.stats.Passes++
	q.stats.WindowSize = len(q.window)
	q.statsMu.Unlock()

	if dispatched == 0 {
		return q.config.StandardWait
	}

	waited := make(chan error, 1)
	go func() { waited <- g.Wait() }()

	var err error
	select {
	case err = <-waited:
	case <-q.stopCh:
		if q.Status() == StatusForceStopping {
			q.logger.Warn().Int("in_flight", dispatched).Msg("pass abandoned without awaiting")
			return 0
		}
		err = <-waited
	}
	if err == nil {
		return q.config.StandardWait
	}

	loss := Loss{
		Dispatched:  dispatched,
		RateLimited: errors.Is(err, ErrRateLimited),
		Err:         err,
		At:          q.now(),
	}
	q.statsMu.Lock()
	q.stats.Losses++
	q.statsMu.Unlock()

	wait := q.config.FailureWait
	if loss.RateLimited {
		wait = q.config.RateLimitWait
	}
	q.logger.Error().
		Err(err).
		Int("dispatched", dispatched).
		Bool("rate_limited", loss.RateLimited).
		Dur("backoff", wait).
		Msg("possible data loss: pass failed after dispatch")
	if q.onLoss != nil {
		q.onLoss(loss)
	}
	return wait
}

// execute runs one action. Panics become errors.
func (q *Queue) execute(it *item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errActionPanicked, r)
		}
		q.statsMu.Lock()
		q.stats.Dispatched++
		if err != nil {
			q.stats.Failed++
		}
		q.statsMu.Unlock()
		if err != nil {
			q.logger.Debug().Err(err).Str("action_id", it.id).Msg("action failed")
		}
	}()
	return it.action(context.Background(), q.api)
}
