// Command botkit runs a Telegram command bot.
package main

import "github.com/opencode-ai/botkit/internal/cli"

func main() {
	cli.Execute()
}
