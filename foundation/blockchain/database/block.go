package database

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// GenesisData prefixes the payload carried by the genesis block, the chain
// id follows it.
const GenesisData = "genesis"

// =============================================================================

// Payload represents the content of a block. A block carries either one
// transaction or a piece of raw data, never both.
type Payload struct {
	Tx   *SignedTx `json:"tx,omitempty"`
	Data string    `json:"data,omitempty"`
}

// Validate checks the payload carries exactly one kind of content and any
// embedded transaction is valid.
func (p Payload) Validate() error {
	switch {
	case p.Tx != nil && p.Data != "":
		return newBlockError(InvalidPayload, "payload carries both a transaction and data")

	case p.Tx == nil && p.Data == "":
		return newBlockError(InvalidPayload, "payload is empty")

	case p.Tx != nil:
		if err := p.Tx.Validate(); err != nil {
			return newBlockError(InvalidPayload, "%w", err)
		}
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (p Payload) String() string {
	if p.Tx != nil {
		return "tx:" + p.Tx.String()
	}
	return "data:" + p.Data
}

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number     uint64 `json:"number"`      // Height of the block in the chain.
	TimeStamp  uint64 `json:"timestamp"`   // Time the block was mined.
	ParentHash string `json:"parent_hash"` // Hash of the block this block follows.
	Difficulty uint16 `json:"difficulty"`  // Number of leading zero bits needed to solve the hash.
	Nonce      uint64 `json:"nonce"`       // Value identified to solve the hash solution.
}

// Block represents a header, its payload and the hash that seals them. A
// block is never changed once it has been constructed.
type Block struct {
	Header  BlockHeader
	Payload Payload
	hash    string
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Parent     Block
	Difficulty uint16
	Payload    Payload
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Number:     args.Parent.Header.Number + 1,
			TimeStamp:  uint64(time.Now().UTC().Unix()),
			ParentHash: args.Parent.Hash(),
			Difficulty: args.Difficulty,
			Nonce:      0, // Will be identified by the POW algorithm.
		},
		Payload: args.Payload,
	}

	// Perform the proof of work mining operation.
	if err := nb.performPOW(ctx, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started: blk[%d]: payload[%s]", b.Header.Number, b.Payload)
	defer ev("database: PerformPOW: MINING: completed")

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	// Loop until we or another node finds a solution for the next block.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.ComputeHash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		b.hash = hash

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.ParentHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the hash the block was sealed with.
func (b Block) Hash() string {
	return b.hash
}

// ComputeHash recalculates the hash over the header and payload.
func (b Block) ComputeHash() string {
	sealed := struct {
		Header  BlockHeader `json:"header"`
		Payload Payload     `json:"payload"`
	}{
		Header:  b.Header,
		Payload: b.Payload,
	}

	return signature.Hash(sealed)
}

// Work returns the amount of effort the block represents, 2^difficulty.
func (b Block) Work() *uint256.Int {
	d := uint(b.Header.Difficulty)
	if d > 255 {
		d = 255
	}

	return new(uint256.Int).Lsh(uint256.NewInt(1), d)
}

// ValidateSelf performs the checks that don't require the parent block:
// hash integrity, proof of work and the payload.
func (b Block) ValidateSelf() error {
	if err := b.validateSeal(); err != nil {
		return err
	}

	return b.Payload.Validate()
}

// Validate takes a block and validates it to be included into the blockchain
// directly after the specified parent. The first failing rule is returned.
func (b Block) Validate(parent Block, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash matches the block content", b.Header.Number)

	if err := b.validateSeal(); err != nil {
		return err
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty is the same or greater than parent block difficulty", b.Header.Number)

	if b.Header.Difficulty < parent.Header.Difficulty {
		return newBlockError(DifficultyNotMet, "block difficulty is less than parent block difficulty, parent %d, block %d", parent.Header.Difficulty, b.Header.Difficulty)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.ParentHash != parent.Hash() {
		return newBlockError(ParentMismatch, "parent block hash doesn't match our known parent, got %s, exp %s", b.Header.ParentHash, parent.Hash())
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	if nextNumber := parent.Header.Number + 1; b.Header.Number != nextNumber {
		return newBlockError(IndexMismatch, "this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: payload is valid", b.Header.Number)

	return b.Payload.Validate()
}

// validateSeal checks the stored hash against the block content and the
// difficulty the block claims.
func (b Block) validateSeal() error {
	hash := b.ComputeHash()
	if hash != b.hash {
		return newBlockError(HashMismatch, "got %s, exp %s", b.hash, hash)
	}

	if !isHashSolved(b.Header.Difficulty, hash) {
		return newBlockError(DifficultyNotMet, "%s does not have %d leading zero bits", hash, b.Header.Difficulty)
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of leading 0 bits.
func isHashSolved(difficulty uint16, hash string) bool {
	return LeadingZeroBits(hash) >= int(difficulty)
}

// LeadingZeroBits counts the number of leading zero bits in a hex encoded
// hash. A malformed hash has no leading zero bits.
func LeadingZeroBits(hash string) int {
	data, err := hexutil.Decode(hash)
	if err != nil || len(data) != 32 {
		return -1
	}

	var n int
	for _, b := range data {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}

	return n
}

// =============================================================================

// GenesisBlock constructs the fixed first block of the chain. Every node
// configured with the same genesis produces the same block, and nodes
// configured with different chain ids never share a genesis block.
func GenesisBlock(gen genesis.Genesis) Block {
	b := Block{
		Header: BlockHeader{
			Number:     0,
			TimeStamp:  uint64(gen.Date.UTC().Unix()),
			ParentHash: signature.ZeroHash,
			Difficulty: gen.Difficulty,
		},
		Payload: Payload{
			Data: fmt.Sprintf("%s:%d", GenesisData, gen.ChainID),
		},
	}

	// The genesis block is not mined so it only needs a valid seal over
	// its content, the difficulty is checked for blocks that follow it.
	b.hash = b.ComputeHash()

	return b
}

// =============================================================================

// BlockData represents what is serialized to disk and over the network.
type BlockData struct {
	Hash    string      `json:"hash"`
	Header  BlockHeader `json:"header"`
	Payload Payload     `json:"payload"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:    block.Hash(),
		Header:  block.Header,
		Payload: block.Payload,
	}
}

// ToBlock converts a BlockData into a Block. The hash is kept as it was
// received so validation can detect tampering.
func ToBlock(blockData BlockData) (Block, error) {
	if blockData.Hash == "" {
		return Block{}, errors.New("block data is missing the hash")
	}

	nb := Block{
		Header:  blockData.Header,
		Payload: blockData.Payload,
		hash:    blockData.Hash,
	}

	return nb, nil
}
