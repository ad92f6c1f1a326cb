package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the state of the node",
}

var showChainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Display the blocks of the chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if cmd.Flags().Changed("from") {
			from, _ := cmd.Flags().GetUint64("from")
			q.Set("from", fmt.Sprint(from))
		}
		if cmd.Flags().Changed("to") {
			to, _ := cmd.Flags().GetUint64("to")
			q.Set("to", fmt.Sprint(to))
		}

		path := "/chain"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		return getJSON(cmd, path)
	},
}

var showBlockCmd = &cobra.Command{
	Use:   "block <hash>",
	Short: "Display a block from the chain or a fork",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, "/chain/block/"+url.PathEscape(args[0]))
	},
}

func init() {
	showChainCmd.Flags().Uint64("from", 0, "first block number")
	showChainCmd.Flags().Uint64("to", 0, "last block number")

	showCmd.AddCommand(showChainCmd)
	showCmd.AddCommand(showBlockCmd)
	showCmd.AddCommand(showPath("forks", "Display the forks", "/forks"))
	showCmd.AddCommand(showPath("orphans", "Display the orphans", "/orphans"))
	showCmd.AddCommand(showPath("pool", "Display the mempool", "/tx/list"))
	showCmd.AddCommand(showPath("peers", "Display the known peers", "/peers"))
	showCmd.AddCommand(showPath("status", "Display a summary of the node", "/status"))
	showCmd.AddCommand(showPath("accounts", "Display the named accounts", "/accounts"))

	RootCmd.AddCommand(showCmd)
}

func showPath(use string, short string, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(cmd, path)
		},
	}
}
