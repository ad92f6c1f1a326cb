package public

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/nameservice"
)

type tx struct {
	ID          string             `json:"id"`
	FromAccount database.AccountID `json:"from"`
	FromName    string             `json:"from_name"`
	To          database.AccountID `json:"to"`
	ToName      string             `json:"to_name"`
	Amount      uint64             `json:"amount"`
	Nonce       uint64             `json:"nonce"`
	TimeStamp   uint64             `json:"timestamp"`
	Sig         string             `json:"sig"`
}

type block struct {
	Hash       string `json:"hash"`
	Number     uint64 `json:"number"`
	ParentHash string `json:"parent_hash"`
	TimeStamp  uint64 `json:"timestamp"`
	Difficulty uint16 `json:"difficulty"`
	Nonce      uint64 `json:"nonce"`
	Data       string `json:"data,omitempty"`
	Tx         *tx    `json:"tx,omitempty"`
}

type chain struct {
	Height         uint64  `json:"height"`
	TipHash        string  `json:"tip_hash"`
	CumulativeWork string  `json:"cumulative_work"`
	Blocks         []block `json:"blocks"`
}

type outcome struct {
	Hash           string `json:"hash"`
	Number         uint64 `json:"number"`
	Classification string `json:"classification"`
	Promoted       bool   `json:"promoted"`
	Error          string `json:"error,omitempty"`
}

type mineRequest struct {
	Data string `json:"data" validate:"max=1024"`
}

type status struct {
	Status string `json:"status"`
}

// =============================================================================

func toTx(ns *nameservice.NameService, signedTx database.SignedTx) tx {
	from, _ := signedTx.FromAccount()

	return tx{
		ID:          signedTx.ID(),
		FromAccount: from,
		FromName:    ns.Lookup(from),
		To:          signedTx.ToID,
		ToName:      ns.Lookup(signedTx.ToID),
		Amount:      signedTx.Amount,
		Nonce:       signedTx.Nonce,
		TimeStamp:   signedTx.TimeStamp,
		Sig:         signedTx.SignatureString(),
	}
}

func toBlock(ns *nameservice.NameService, blk database.Block) block {
	b := block{
		Hash:       blk.Hash(),
		Number:     blk.Header.Number,
		ParentHash: blk.Header.ParentHash,
		TimeStamp:  blk.Header.TimeStamp,
		Difficulty: blk.Header.Difficulty,
		Nonce:      blk.Header.Nonce,
		Data:       blk.Payload.Data,
	}

	if blk.Payload.Tx != nil {
		t := toTx(ns, *blk.Payload.Tx)
		b.Tx = &t
	}

	return b
}
