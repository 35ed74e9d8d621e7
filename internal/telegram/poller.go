package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/botkit/internal/logging"
)

// DefaultAllowedUpdates are the update kinds the poller asks for.
var DefaultAllowedUpdates = []string{"message", "callback_query", "channel_post"}

// Handler receives updates one at a time, in order.
type Handler func(ctx context.Context, update Update)

// PollerConfig tunes long polling.
type PollerConfig struct {
	// Timeout is the server-side long-poll timeout.
	// Default: 30 seconds.
	Timeout time.Duration

	// RetryDelay is how long to wait after a failed poll.
	// Default: 5 seconds.
	RetryDelay time.Duration

	// Limit caps updates per poll. Default: 100.
	Limit int

	AllowedUpdates []string
}

// DefaultPollerConfig returns the default long-poll settings.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Timeout:        30 * time.Second,
		RetryDelay:     5 * time.Second,
		Limit:          100,
		AllowedUpdates: DefaultAllowedUpdates,
	}
}

// Poller pulls updates with getUpdates and hands them to a Handler.
type Poller struct {
	source UpdateSource
	config PollerConfig
	logger zerolog.Logger
	offset int64
}

// NewPoller creates a poller over source.
func NewPoller(source UpdateSource, config PollerConfig) *Poller {
	defaults := DefaultPollerConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.Limit <= 0 {
		config.Limit = defaults.Limit
	}
	if len(config.AllowedUpdates) == 0 {
		config.AllowedUpdates = defaults.AllowedUpdates
	}
	return &Poller{
		source: source,
		config: config,
		logger: logging.Component("poller"),
	}
}

// Offset returns the next update ID the poller will ask for.
func (p *Poller) Offset() int64 {
	return p.offset
}

// Run polls until ctx is cancelled. It returns ctx.Err() on shutdown.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	p.logger.Info().Dur("timeout", p.config.Timeout).Msg("polling started")
	defer p.logger.Info().Msg("polling stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			p.logger.Warn().Err(err).Dur("retry_in", p.config.RetryDelay).Msg("poll failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.RetryDelay):
			}
			continue
		}

		for _, u := range updates {
			handle(ctx, u)
		}
	}
}

// Poll performs one getUpdates round trip and advances the offset past
// every returned update.
func (p *Poller) Poll(ctx context.Context) ([]Update, error) {
	updates, err := p.source.GetUpdates(ctx, GetUpdatesParams{
		Offset:         p.offset,
		Limit:          p.config.Limit,
		Timeout:        int(p.config.Timeout / time.Second),
		AllowedUpdates: p.config.AllowedUpdates,
	})
	if err != nil {
		return nil, err
	}
	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
	}
	return updates, nil
}
