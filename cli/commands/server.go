package commands

import (
	"github.com/himakhaitan/wscache/cli/output"
	"github.com/himakhaitan/wscache/pkg/config"
	"github.com/himakhaitan/wscache/pkg/logger"
	"github.com/himakhaitan/wscache/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// NewServerCommand creates a new server command
func NewServerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the cache server in the foreground",
		Long:  "Run the cache server in this process. Configure it with CACHE_CONFIG, CACHE_ADDR and CACHE_CAPACITY.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			output.Info("Starting cache server...")
			app := fx.New(ServerOptions())
			if err := app.Err(); err != nil {
				output.Error(err.Error())
				return
			}
			app.Run()
		},
	}
}

// ServerOptions is the fx graph shared by the server command and cached
func ServerOptions() fx.Option {
	return fx.Options(
		logger.Module("cached"),
		config.Module(),
		server.Module(),
	)
}
