package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the botkit version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if IsJSONOutput() {
			return WriteOutput(cmd.OutOrStdout(), map[string]string{"version": Version})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "botkit %s\n", Version)
		return nil
	},
}
