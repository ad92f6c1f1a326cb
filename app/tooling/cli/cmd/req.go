package cmd

import (
	"net/url"

	"github.com/spf13/cobra"
)

var reqCmd = &cobra.Command{
	Use:   "req <all|host:port>",
	Short: "Request the chain from a peer or every peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON(cmd, "/sync/"+url.PathEscape(args[0]), nil)
	},
}

var redialCmd = &cobra.Command{
	Use:   "redial",
	Short: "Reconnect to the known peers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON(cmd, "/peers/redial", nil)
	},
}

func init() {
	RootCmd.AddCommand(reqCmd)
	RootCmd.AddCommand(redialCmd)
}
