package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine [data]",
	Short: "Mine a block",
	Long: `Mines a block carrying the data. Without data the oldest transaction in the
mempool is mined.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return postJSON(cmd, "/mining/mine", nil)
		}

		body := struct {
			Data string `json:"data"`
		}{
			Data: strings.Join(args, " "),
		}

		return postJSON(cmd, "/mining/mine", body)
	},
}

func init() {
	RootCmd.AddCommand(mineCmd)
}
