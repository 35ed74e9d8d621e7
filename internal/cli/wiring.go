package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/botkit/internal/bot"
	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/config"
	"github.com/opencode-ai/botkit/internal/demo"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/replies"
)

func queueConfig(cfg *config.Config) outbox.Config {
	qc := outbox.DefaultConfig()
	qc.SaturationLimit = cfg.Bot.SaturationLimit
	qc.StandardWait = cfg.Queue.StandardWait
	qc.FailureWait = cfg.Queue.FailureWait
	qc.RateLimitWait = cfg.Queue.RateLimitWait
	qc.DispatchDelay = cfg.Queue.DispatchDelay
	return qc
}

func botConfig(cfg *config.Config) bot.Config {
	bc := bot.DefaultConfig()
	bc.Handle = strings.TrimPrefix(strings.TrimSpace(cfg.Bot.Handle), "@")
	bc.ProcessNormalMessages = cfg.Bot.ProcessNormalMessages
	bc.PublishCommands = cfg.Bot.AddCommandInfo
	bc.AllowFrom = cfg.Bot.AllowFrom
	bc.Flood.Rate = cfg.Bot.FloodRate
	bc.Flood.Burst = cfg.Bot.FloodBurst
	if cfg.Bot.FloodRate == 0 {
		bc.Flood.Rate = -1
	}
	return bc
}

// newDispatcher loads the reply commands from the configured directory and,
// with withDemo, the demo commands. q may be nil when nothing will be sent.
func newDispatcher(cfg *config.Config, q *outbox.Queue, withDemo bool) (*command.Dispatcher, error) {
	providers := []command.Provider{replies.Provider(cfg.Commands.Dir)}
	if withDemo {
		providers = append(providers, demo.Provider(q))
	}
	return command.NewDispatcher(command.Config{
		Match: command.MatchConfig{
			CommandCaseSensitive:    cfg.Bot.CommandCaseSensitive,
			CaseSensitive:           cfg.Bot.CaseSensitive,
			AcceptMultiWordTriggers: cfg.Bot.AcceptMultiWordTriggers,
		},
		Key: command.Key(cfg.Bot.BotKey),
	}, providers...)
}

func logSinkConfig(cfg *config.Config) (bot.LogSinkConfig, error) {
	sc := bot.DefaultLogSinkConfig(cfg.Logging.SinkChatID)
	sc.Tag = cfg.Logging.SinkTag
	if level := strings.TrimSpace(cfg.Logging.SinkLevel); level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return sc, fmt.Errorf("invalid logging.sink_level %q: %w", cfg.Logging.SinkLevel, err)
		}
		sc.Level = parsed
	}
	return sc, nil
}
