package cmd

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var txnCmd = &cobra.Command{
	Use:   "txn <amount>",
	Short: "Sign and submit a transaction",
	Long: `Signs a transaction with the account's private key and submits it to the node.
The receiver is a name from the account path or an account id. A random
receiver is used when none is provided.`,
	Args: cobra.ExactArgs(1),
	RunE: txnRun,
}

func init() {
	txnCmd.Flags().StringP("to", "t", "", "name or account id of the receiver")
	txnCmd.Flags().Uint64P("nonce", "n", 0, "nonce of the transaction, defaults to the current time")
	RootCmd.AddCommand(txnCmd)
}

func txnRun(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return errors.Wrapf(err, "parsing amount %q", args[0])
	}

	privateKey, err := crypto.LoadECDSA(privateKeyPath())
	if err != nil {
		return errors.Wrap(err, "loading private key")
	}

	to, _ := cmd.Flags().GetString("to")
	toID, err := receiver(to, database.PublicKeyToAccountID(privateKey.PublicKey))
	if err != nil {
		return err
	}

	nonce, _ := cmd.Flags().GetUint64("nonce")
	now := uint64(time.Now().UTC().UnixMilli())
	if nonce == 0 {
		nonce = uint64(time.Now().UnixNano())
	}

	tx, err := database.NewTx(toID, amount, nonce, now)
	if err != nil {
		return err
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		return errors.Wrap(err, "signing transaction")
	}

	return postJSON(cmd, "/tx/submit", signedTx)
}

// receiver resolves the receiver of a transaction. A name is looked up in
// the account path, anything else must be an account id.
func receiver(to string, from database.AccountID) (database.AccountID, error) {
	ns, err := nameservice.New(viper.GetString("account-path"))
	if err != nil {
		return "", errors.Wrap(err, "reading accounts")
	}

	if to == "" {
		return randomAccount(ns, from)
	}

	if id, exists := ns.Resolve(to); exists {
		return id, nil
	}

	id, err := database.ToAccountID(to)
	if err != nil {
		return "", errors.Wrapf(err, "unknown receiver %q", to)
	}

	return id, nil
}

// randomAccount picks a known account other than the sender, or a freshly
// generated one when there is none.
func randomAccount(ns *nameservice.NameService, from database.AccountID) (database.AccountID, error) {
	var ids []database.AccountID
	for id := range ns.Copy() {
		if id != from {
			ids = append(ids, id)
		}
	}

	if len(ids) > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(ids))))
		if err != nil {
			return "", err
		}
		return ids[n.Int64()], nil
	}

	pk, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	return database.PublicKeyToAccountID(pk.PublicKey), nil
}
