package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/botkit/internal/db"
	"github.com/opencode-ai/botkit/internal/models"
)

var (
	eventsType      string
	eventsUser      int64
	eventsSince     string
	eventsLimit     int
	eventsCursor    string
	eventsOlderThan string
	eventsYes       bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsStatsCmd)
	eventsCmd.AddCommand(eventsPruneCmd)

	eventsListCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type (e.g. command.failed)")
	eventsListCmd.Flags().Int64Var(&eventsUser, "user", 0, "filter by Telegram user ID")
	eventsListCmd.Flags().StringVar(&eventsSince, "since", "", "only events after this time (RFC3339 or duration like 2h)")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events")
	eventsListCmd.Flags().StringVar(&eventsCursor, "cursor", "", "continue after this event ID")

	eventsPruneCmd.Flags().StringVar(&eventsOlderThan, "older-than", "720h", "delete events older than this (RFC3339 or duration)")
	eventsPruneCmd.Flags().BoolVarP(&eventsYes, "yes", "y", false, "do not ask for confirmation")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the audit log",
	Long:  "Inspect the audit log of command calls, failures, denials and outbox losses.",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events, newest last",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := db.EventQuery{Limit: eventsLimit, Cursor: eventsCursor}
		if eventsType != "" {
			t := models.EventType(eventsType)
			query.Type = &t
		}
		if eventsUser != 0 {
			et := models.EntityTypeUser
			id := strconv.FormatInt(eventsUser, 10)
			query.EntityType = &et
			query.EntityID = &id
		}
		if eventsSince != "" {
			since, err := parseTimeFlag(eventsSince, time.Now())
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			query.Since = &since
		}

		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		page, err := db.NewEventRepository(database).Query(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			return WriteOutput(out, page)
		}
		if len(page.Events) == 0 {
			fmt.Fprintln(out, "No events found")
			return nil
		}

		color := isTerminal(out)
		tbl := newTable(
			column{title: "TIME"},
			column{title: "TYPE"},
			column{title: "ENTITY"},
			column{title: "PAYLOAD", width: 70},
		)
		for _, e := range page.Events {
			tbl.add(
				e.Timestamp.Local().Format(time.DateTime),
				formatEventType(e.Type, color),
				string(e.EntityType)+":"+e.EntityID,
				string(e.Payload),
			)
		}
		if err := tbl.render(out); err != nil {
			return err
		}
		if page.NextCursor != "" {
			fmt.Fprintf(out, "\nMore events: --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

var eventsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count audit events by type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		counts, err := db.NewEventRepository(database).CountByType(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to count events: %w", err)
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			return WriteOutput(out, counts)
		}

		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, string(t))
		}
		sort.Strings(types)
		tbl := newTable(column{title: "TYPE"}, column{title: "COUNT"})
		for _, t := range types {
			tbl.add(t, strconv.Itoa(counts[models.EventType(t)]))
		}
		return tbl.render(out)
	},
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := parseTimeFlag(eventsOlderThan, time.Now())
		if err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
		if !eventsYes && !IsJSONOutput() {
			if !confirm(cmd, fmt.Sprintf("Delete events before %s?", before.Local().Format(time.DateTime))) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
				return nil
			}
		}

		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		removed, err := db.NewEventRepository(database).Prune(cmd.Context(), before)
		if err != nil {
			return fmt.Errorf("failed to prune events: %w", err)
		}
		if IsJSONOutput() {
			return WriteOutput(cmd.OutOrStdout(), map[string]any{"removed": removed, "before": before})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d events\n", removed)
		return nil
	},
}

// parseTimeFlag accepts an RFC3339 timestamp or a duration counted back from now.
func parseTimeFlag(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a duration", value)
	}
	if d < 0 {
		return time.Time{}, fmt.Errorf("duration %q must not be negative", value)
	}
	return now.Add(-d), nil
}

// confirm asks a yes/no question on the command's input. Without a
// terminal on stdin the answer is no.
func confirm(cmd *cobra.Command, prompt string) bool {
	if !isTerminal(cmd.InOrStdin()) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Refusing to prompt without a terminal; pass --yes.")
		return false
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", prompt)
	var answer string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
