package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair for the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := privateKeyPath()

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("key %s already exists, use --force to replace it", path)
		}

		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return errors.Wrap(err, "generating key")
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}

		if err := crypto.SaveECDSA(path, privateKey); err != nil {
			return errors.Wrap(err, "saving key")
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, database.PublicKeyToAccountID(privateKey.PublicKey))
		return err
	},
}

func init() {
	generateCmd.Flags().BoolP("force", "f", false, "replace an existing key")
	RootCmd.AddCommand(generateCmd)
}
