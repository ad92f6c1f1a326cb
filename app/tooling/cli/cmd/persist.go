package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(chainPath("load", "Replace the chain with the persisted snapshot", "/chain/load"))
	RootCmd.AddCommand(chainPath("save", "Persist the chain", "/chain/save"))
	RootCmd.AddCommand(chainPath("reset", "Reset the chain to genesis", "/chain/reset"))
}

func chainPath(use string, short string, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(cmd, path, nil)
		},
	}
}
