package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/botkit/internal/bot"
	"github.com/opencode-ai/botkit/internal/command"
	"github.com/opencode-ai/botkit/internal/db"
	"github.com/opencode-ai/botkit/internal/events"
	"github.com/opencode-ai/botkit/internal/logging"
	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

var runDemo bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "also load the demo commands (/chat_test, /cbq_test, /testget)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long: `Run the bot with long polling until interrupted.

The first SIGINT or SIGTERM stops polling and lets the outbox finish its
current pass. A second signal aborts the outbox immediately.`,
	Example: `  # Run with the config in ~/.config/botkit
  botkit run

  # Run with the demo commands and debug logs
  botkit run --demo --log-level debug`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd, runDemo)
	},
}

func runBot(cmd *cobra.Command, withDemo bool) error {
	cfg := GetConfig()
	logger := logging.Component("run")

	client, err := telegram.NewClient(cfg.Bot.Token, telegram.WithBaseURL(cfg.Bot.APIURL))
	if err != nil {
		return err
	}

	boot := newStartup(cmd.ErrOrStderr())
	var database *db.DB
	if err := boot.step("Opening database", func() (err error) {
		database, err = openDatabase(cmd)
		return err
	}); err != nil {
		return err
	}
	defer database.Close()

	repo := db.NewEventRepository(database)
	recorder := events.NewRecorder(repo)
	if cfg.Database.Retention > 0 {
		retention, err := events.NewRetention(repo, cfg.Database.Retention, cfg.Database.PruneSchedule)
		if err != nil {
			return err
		}
		retention.Start()
		defer retention.Stop()
	}

	queue := outbox.New(client, queueConfig(cfg), outbox.WithLossHandler(bot.RecordLosses(recorder, "outbox")))

	var dispatcher *command.Dispatcher
	if err := boot.step("Loading commands", func() (err error) {
		dispatcher, err = newDispatcher(cfg, queue, withDemo)
		return err
	}); err != nil {
		queue.ForceStop()
		return fmt.Errorf("failed to load commands: %w", err)
	}
	logger.Info().Int("commands", dispatcher.Registry().Len()).Bool("demo", withDemo).Msg("commands loaded")

	b := bot.New(dispatcher, queue, botConfig(cfg), bot.WithRecorder(recorder))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinkDone := make(chan struct{})
	if cfg.Logging.SinkChatID != 0 {
		sc, err := logSinkConfig(cfg)
		if err != nil {
			queue.ForceStop()
			return err
		}
		sink := bot.NewLogSink(queue, sc)
		detach := logging.Attach(sink)
		go func() {
			defer close(sinkDone)
			defer detach()
			sink.Run(ctx)
		}()
		logger.Info().Int64("chat_id", sc.ChatID).Str("level", sc.Level.String()).Msg("log sink attached")
	} else {
		close(sinkDone)
	}

	poller := telegram.NewPoller(client, telegram.PollerConfig{Timeout: cfg.Bot.PollTimeout})
	runErr := b.Run(ctx, poller)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	stop()
	<-sinkDone

	shutdown(queue)
	logger.Info().Int64("dispatched", queue.Stats().Dispatched).Msg("bot stopped")
	return runErr
}

// shutdown stops q gracefully, escalating to a forced stop on a second signal.
func shutdown(q *outbox.Queue) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	q.Stop()
	select {
	case <-q.Done():
	case <-sigCh:
		q.ForceStop()
		<-q.Done()
	}
}
