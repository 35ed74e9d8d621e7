package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/botkit/internal/logging"
)

// startup reports the steps of bringing the bot up. On a terminal each step
// is echoed as "label... done (12ms)"; otherwise it is only logged.
type startup struct {
	out    io.Writer
	echo   bool
	logger zerolog.Logger
}

func newStartup(out io.Writer) *startup {
	return &startup{
		out:    out,
		echo:   progressEnabled(),
		logger: logging.Component("startup"),
	}
}

// step runs fn as one named startup step.
func (s *startup) step(label string, fn func() error) error {
	if s.echo {
		fmt.Fprintf(s.out, "%s... ", label)
	}
	started := time.Now()
	err := fn()
	elapsed := time.Since(started)

	if err != nil {
		if s.echo {
			fmt.Fprintf(s.out, "failed: %v\n", err)
		}
		s.logger.Error().Err(err).Str("step", label).Dur("elapsed", elapsed).Msg("startup step failed")
		return err
	}
	if s.echo {
		fmt.Fprintf(s.out, "done (%s)\n", formatDuration(elapsed))
	}
	s.logger.Debug().Str("step", label).Dur("elapsed", elapsed).Msg("startup step done")
	return nil
}

func progressEnabled() bool {
	if IsJSONOutput() || noProgress {
		return false
	}
	for _, key := range []string{"BOTKIT_NO_PROGRESS", "NO_PROGRESS"} {
		if _, ok := os.LookupEnv(key); ok {
			return false
		}
	}
	return true
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
