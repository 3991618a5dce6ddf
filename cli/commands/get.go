package commands

import (
	"encoding/json"
	"fmt"

	"github.com/himakhaitan/wscache/cli/output"
	"github.com/himakhaitan/wscache/types"
	"github.com/spf13/cobra"
)

// NewGetCommand creates a new get command
func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a value by key",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			key := args[0]

			resp, err := roundTrip(types.MethodGet, types.GetParams{Key: key})
			if err != nil {
				output.Error(err.Error())
				return
			}
			if resp.IsError() {
				output.Error(fmt.Sprintf("Server error: %s", resp.Error.Message))
				return
			}
			if resp.IsNull() {
				output.Warn(fmt.Sprintf("Key '%s' not found", key))
				return
			}

			var value string
			if err := json.Unmarshal(resp.Result, &value); err != nil {
				output.Error(fmt.Sprintf("Invalid response: %v", err))
				return
			}
			output.Success(fmt.Sprintf("Key: %s", key))
			output.Info(fmt.Sprintf("Value: %s", value))
		},
	}
}
