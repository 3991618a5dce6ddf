package commands

import (
	"encoding/json"
	"fmt"

	"github.com/himakhaitan/wscache/cli/output"
	"github.com/himakhaitan/wscache/store"
	"github.com/himakhaitan/wscache/types"
	"github.com/spf13/cobra"
)

// NewStatsCommand creates a new stats command
func NewStatsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := roundTrip(types.MethodStats, nil)
			if err != nil {
				output.Error(err.Error())
				return
			}
			if resp.IsError() {
				output.Error(fmt.Sprintf("Server error: %s", resp.Error.Message))
				return
			}

			var stats store.Stats
			if err := json.Unmarshal(resp.Result, &stats); err != nil {
				output.Error(fmt.Sprintf("Invalid response: %v", err))
				return
			}

			if asJSON {
				output.JSON(stats)
				return
			}
			output.Success("Cache Statistics")
			output.Dim(serverURL())
			output.Field("Size", stats.Size)
			output.Field("Inserts", stats.Inserts)
			output.Field("Hits", stats.Hits)
			output.Field("Misses", stats.Misses)
			output.Field("Evictions", stats.Evictions)
			output.Field("Hit ratio", fmt.Sprintf("%.2f", stats.HitRatio()))
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw statistics as JSON")
	return cmd
}
