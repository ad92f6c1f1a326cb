package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// printJSON writes the value as indented json to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// getJSON fetches the path from the node and prints the raw document.
func getJSON(cmd *cobra.Command, path string) error {
	var doc json.RawMessage
	if err := newClient().get(path, &doc); err != nil {
		return err
	}

	return printJSON(cmd, doc)
}

// postJSON posts the body to the path and prints the raw document.
func postJSON(cmd *cobra.Command, path string, body any) error {
	var doc json.RawMessage
	if err := newClient().post(path, body, &doc); err != nil {
		return err
	}

	if len(doc) == 0 {
		return nil
	}

	return printJSON(cmd, doc)
}
