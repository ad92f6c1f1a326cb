package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run commands interactively",
	Long:  `Reads commands from standard input and runs them until "quit" or end of input.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		out := cmd.OutOrStdout()
		scanner := bufio.NewScanner(cmd.InOrStdin())

		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}

			fields := strings.Fields(scanner.Text())
			switch {
			case len(fields) == 0:
				continue
			case fields[0] == "quit" || fields[0] == "exit":
				return nil
			case fields[0] == "console":
				fmt.Fprintln(out, "already in the console")
				continue
			}

			root.SetArgs(fields)
			if err := root.Execute(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "ERROR:", err)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(consoleCmd)
}
