// Package cmd contains the commands of the node command line tool.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const keyExtension = ".ecdsa"

// RootCmd is the entry point of the command line tool.
var RootCmd = &cobra.Command{
	Use:   "powchain",
	Short: "Talk to a powchain node",
	Long:  `powchain submits transactions, mines blocks and inspects the chain of a running node.`,
}

func init() {
	RootCmd.PersistentFlags().StringP("url", "u", "http://localhost:8080", "url of the node's public api")
	RootCmd.PersistentFlags().StringP("account", "a", "private", "name of the account signing transactions")
	RootCmd.PersistentFlags().StringP("account-path", "p", "zblock/accounts/", "path to the directory with private keys")
	if err := viper.BindPFlags(RootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, "failed to bind root flags:", err)
	}

	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true

	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.powchain")

	viper.SetEnvPrefix("powchain")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() {
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

// =============================================================================

func privateKeyPath() string {
	name := viper.GetString("account")
	if !strings.HasSuffix(name, keyExtension) {
		name += keyExtension
	}

	return filepath.Join(viper.GetString("account-path"), name)
}
