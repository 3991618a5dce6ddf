package cli

import (
	"github.com/himakhaitan/wscache/cli/commands"
	"github.com/spf13/cobra"
)

type CLI struct {
	root *cobra.Command
}

func NewCLI() *CLI {
	cli := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "cache-cli",
		Short: "A WebSocket key-value cache CLI",
		Long:  "cache-cli talks to a wscache server over its WebSocket protocol (set CACHE_URL to choose the endpoint)",
	}

	// Create command registry and register all commands
	registry := commands.NewCommandRegistry()
	registry.RegisterCommands(rootCmd)

	cli.root = rootCmd

	return cli
}

func (c *CLI) Run() error {
	return c.root.Execute()
}
