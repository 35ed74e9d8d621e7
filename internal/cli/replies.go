package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/botkit/internal/replies"
)

func init() {
	rootCmd.AddCommand(repliesCmd)
	repliesCmd.AddCommand(repliesListCmd)
	repliesCmd.AddCommand(repliesValidateCmd)
}

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Manage YAML reply commands",
	Long: `Reply commands are YAML files with a trigger and one or more message
templates. Files in the commands directory override the built-in replies
with the same trigger.`,
}

var repliesListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List built-in and user reply commands",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := GetConfig().Commands.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		items, err := replies.Load(dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			return WriteOutput(out, items)
		}
		tbl := newTable(
			column{title: "TRIGGER"},
			column{title: "ALIAS"},
			column{title: "PARSE MODE"},
			column{title: "MESSAGES"},
			column{title: "SOURCE", width: 60},
		)
		for _, r := range items {
			tbl.add(r.Trigger, r.Alias, string(r.ParseMode), strconv.Itoa(len(r.Messages)), sourceLabel(r.Source))
		}
		return tbl.render(out)
	},
}

var repliesValidateCmd = &cobra.Command{
	Use:   "validate <file-or-dir>...",
	Short: "Check reply files without loading the bot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		var checked int
		for _, arg := range args {
			paths, err := replyFiles(arg)
			if err != nil {
				return err
			}
			for _, path := range paths {
				checked++
				err := validateReplyFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", path)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d reply files are invalid", failed, checked)
		}
		return nil
	},
}

func validateReplyFile(path string) error {
	r, err := replies.LoadReply(path)
	if err != nil {
		return err
	}
	c, err := replies.NewCommand(r)
	if err != nil {
		return err
	}
	return c.Validate()
}

// replyFiles expands a directory into its YAML files.
func replyFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no reply files in " + path)
	}
	return files, nil
}

func sourceLabel(source string) string {
	if source == "builtin" {
		return source
	}
	return filepath.Base(source)
}
