// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date       time.Time `json:"date"`
	ChainID    uint16    `json:"chain_id"`   // The chain id represents an unique id for this running instance.
	Difficulty uint16    `json:"difficulty"` // How difficult it needs to be to solve the work problem.
}

// Default returns the genesis used when no genesis file exists. All nodes
// that don't provide a file agree on this genesis.
func Default() Genesis {
	return Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:    1,
		Difficulty: 12,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. If the file doesn't exist the
// default genesis is returned.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
