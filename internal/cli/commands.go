package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/botkit/internal/command"
)

var (
	commandsDemo bool
	commandsMenu bool
)

func init() {
	rootCmd.AddCommand(commandsCmd)
	commandsCmd.AddCommand(commandsHelpCmd)
	commandsCmd.PersistentFlags().BoolVar(&commandsDemo, "demo", false, "include the demo commands")
	commandsCmd.Flags().BoolVar(&commandsMenu, "menu", false, "print the setMyCommands menu instead of the help table")
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the bot would load",
	Long: `Load the reply commands (and optionally the demo commands) the same way
"botkit run" does and print them without contacting Telegram.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dispatcher, err := newDispatcher(GetConfig(), nil, commandsDemo)
		if err != nil {
			return fmt.Errorf("failed to load commands: %w", err)
		}
		registry := dispatcher.Registry()
		out := cmd.OutOrStdout()

		if commandsMenu {
			menu := registry.BotCommands()
			if IsJSONOutput() {
				return WriteOutput(out, menu)
			}
			tbl := newTable(column{title: "COMMAND"}, column{title: "DESCRIPTION", width: 80})
			for _, c := range menu {
				tbl.add("/"+c.Command, c.Description)
			}
			return tbl.render(out)
		}

		help := registry.Help()
		if IsJSONOutput() {
			return WriteOutput(out, help)
		}
		tbl := newTable(
			column{title: "TRIGGER"},
			column{title: "ALIAS"},
			column{title: "USAGE", width: 40},
			column{title: "DESCRIPTION", width: 60},
			column{title: "OPTIONS"},
		)
		for _, h := range help {
			tbl.add(h.Trigger, h.Alias, h.Usage, h.Explanation, formatYesNo(len(h.Options) > 0))
		}
		return tbl.render(out)
	},
}

// helpText renders the in-chat help for trigger, or the global help when
// trigger is empty.
func helpText(registry *command.Registry, trigger string) (string, error) {
	if trigger == "" {
		return command.GlobalHelp(registry), nil
	}
	cmd, ok := registry.Lookup(trigger)
	if !ok {
		return "", fmt.Errorf("unknown command %q", trigger)
	}
	return command.CommandHelp(cmd), nil
}

var commandsHelpCmd = &cobra.Command{
	Use:   "help [trigger]",
	Short: "Print the help text users see in chat",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dispatcher, err := newDispatcher(GetConfig(), nil, commandsDemo)
		if err != nil {
			return fmt.Errorf("failed to load commands: %w", err)
		}
		trigger := ""
		if len(args) == 1 {
			trigger = args[0]
		}
		text, err := helpText(dispatcher.Registry(), trigger)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}
