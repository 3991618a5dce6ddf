package commands

import (
	"fmt"

	"github.com/himakhaitan/wscache/cli/output"
	"github.com/himakhaitan/wscache/types"
	"github.com/spf13/cobra"
)

// NewAddCommand creates a new add command
func NewAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <key> <value>",
		Short: "Add or overwrite a key-value pair",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			key, value := args[0], args[1]

			resp, err := roundTrip(types.MethodAdd, types.AddParams{Key: key, Value: value})
			if err != nil {
				output.Error(err.Error())
				return
			}
			if resp.IsError() {
				output.Error(fmt.Sprintf("Server error: %s", resp.Error.Message))
				return
			}
			output.Success(fmt.Sprintf("Added %s = %s", key, value))
		},
	}
}
