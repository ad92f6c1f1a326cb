// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the accounts that sign transactions.
package nameservice

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	root     string
	accounts map[database.AccountID]string
	names    map[string]database.AccountID
}

// New constructs a name service with accounts from the specified folder.
// A missing folder is an empty name service.
func New(root string) (*NameService, error) {
	ns := NameService{
		root:     root,
		accounts: make(map[database.AccountID]string),
		names:    make(map[string]database.AccountID),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			if fileName == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}

		name := strings.TrimSuffix(filepath.Base(fileName), ".ecdsa")
		ns.add(name, privateKey)

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account. Accounts without a
// name are returned as they are.
func (ns *NameService) Lookup(accountID database.AccountID) string {
	name, exists := ns.accounts[accountID]
	if !exists {
		return string(accountID)
	}
	return name
}

// Resolve returns the account for the specified name. A value that is
// already an account id is returned as it is.
func (ns *NameService) Resolve(name string) (database.AccountID, bool) {
	if accountID, exists := ns.names[name]; exists {
		return accountID, true
	}

	accountID := database.AccountID(name)
	return accountID, accountID.IsAccountID()
}

// PrivateKey loads the private key for the named account.
func (ns *NameService) PrivateKey(name string) (*ecdsa.PrivateKey, error) {
	if _, exists := ns.names[name]; !exists {
		return nil, fmt.Errorf("account %q not found", name)
	}

	return crypto.LoadECDSA(filepath.Join(ns.root, name+".ecdsa"))
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[database.AccountID]string {
	return maps.Clone(ns.accounts)
}

// =============================================================================

func (ns *NameService) add(name string, privateKey *ecdsa.PrivateKey) {
	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	ns.accounts[accountID] = name
	ns.names[name] = accountID
}
