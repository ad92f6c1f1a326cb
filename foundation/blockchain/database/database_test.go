package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey   = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	toID       = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	difficulty = 1
)

// =============================================================================

func Test_Transactions(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}
	from := database.PublicKeyToAccountID(pk.PublicKey)

	type table struct {
		name string
		tx   database.Tx
		mod  func(tx *database.SignedTx)
		err  error
	}

	tt := []table{
		{
			name: "valid",
			tx:   database.Tx{ToID: toID, Amount: 10, Nonce: 1},
		},
		{
			name: "zero amount",
			tx:   database.Tx{ToID: toID, Amount: 0, Nonce: 1},
			err:  database.ErrMalformedFields,
		},
		{
			name: "same account",
			tx:   database.Tx{ToID: from, Amount: 10, Nonce: 1},
			err:  database.ErrMalformedFields,
		},
		{
			name: "tampered amount",
			tx:   database.Tx{ToID: toID, Amount: 10, Nonce: 1},
			mod:  func(tx *database.SignedTx) { tx.Amount = 1000 },
			err:  database.ErrBadSignature,
		},
		{
			name: "bad sender key",
			tx:   database.Tx{ToID: toID, Amount: 10, Nonce: 1},
			mod:  func(tx *database.SignedTx) { tx.FromKey = "0x1234" },
			err:  database.ErrMalformedFields,
		},
	}

	t.Log("Given the need to validate transactions.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s transaction.", testID, tst.name)
			{
				f := func(t *testing.T) {
					signedTx, err := tst.tx.Sign(pk)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to sign transaction: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to sign transaction.", success, testID)

					if tst.mod != nil {
						tst.mod(&signedTx)
					}

					err = signedTx.Validate()
					if tst.err == nil {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to validate the transaction: %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to validate the transaction.", success, testID)
						return
					}

					if !errors.Is(err, tst.err) {
						t.Logf("\t\tTest %d:\tgot: %v", testID, err)
						t.Logf("\t\tTest %d:\texp: %v", testID, tst.err)
						t.Fatalf("\t%s\tTest %d:\tShould get back the right error.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get back the right error.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_LeadingZeroBits(t *testing.T) {
	type table struct {
		hash string
		bits int
	}

	tt := []table{
		{hash: "0x" + repeat("f", 64), bits: 0},
		{hash: "0x7" + repeat("f", 63), bits: 1},
		{hash: "0x00" + repeat("f", 62), bits: 8},
		{hash: "0x001" + repeat("f", 61), bits: 11},
		{hash: "0x" + repeat("0", 64), bits: 256},
		{hash: "0x1234", bits: -1},
	}

	t.Log("Given the need to count leading zero bits of a hash.")
	{
		for testID, tst := range tt {
			got := database.LeadingZeroBits(tst.hash)
			if got != tst.bits {
				t.Fatalf("\t%s\tTest %d:\tShould get back %d bits, got %d.", failed, testID, tst.bits, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get back %d bits.", success, testID, tst.bits)
		}
	}
}

func Test_GenesisBlock(t *testing.T) {
	t.Log("Given the need to derive the genesis block from its configuration.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two nodes share the genesis configuration.", testID)
		{
			a := database.GenesisBlock(testGenesis())
			b := database.GenesisBlock(testGenesis())
			if a.Hash() != b.Hash() || a.Hash() != a.ComputeHash() {
				t.Fatalf("\t%s\tTest %d:\tShould produce the same sealed block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce the same sealed block.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen two nodes run different chain ids.", testID)
		{
			other := testGenesis()
			other.ChainID = 2

			if database.GenesisBlock(testGenesis()).Hash() == database.GenesisBlock(other).Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould produce different genesis blocks.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce different genesis blocks.", success, testID)
		}
	}
}

func Test_BlockValidation(t *testing.T) {
	gen := database.GenesisBlock(testGenesis())

	t.Log("Given the need to validate a block against its parent.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a mined block.", testID)
		{
			blk := mine(t, gen, "block 1")

			if err := blk.Validate(gen, nil); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to validate the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to validate the block.", success, testID)

			if database.LeadingZeroBits(blk.Hash()) < difficulty {
				t.Fatalf("\t%s\tTest %d:\tShould have a hash meeting the difficulty.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have a hash meeting the difficulty.", success, testID)

			if blk.Hash() != blk.ComputeHash() {
				t.Fatalf("\t%s\tTest %d:\tShould have a hash matching the content.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have a hash matching the content.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block content was tampered with.", testID)
		{
			blk := mine(t, gen, "block 1")

			bd := database.NewBlockData(blk)
			bd.Payload.Data = "block 1 changed"
			tampered, err := database.ToBlock(bd)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to convert the block: %v", failed, testID, err)
			}

			if err := tampered.Validate(gen, nil); !errors.Is(err, database.ErrHashMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould get a HashMismatch error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a HashMismatch error.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block follows a different parent.", testID)
		{
			blk1 := mine(t, gen, "block 1")
			blk2 := mine(t, blk1, "block 2")

			if err := blk2.Validate(gen, nil); !errors.Is(err, database.ErrParentMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould get a ParentMismatch error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a ParentMismatch error.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block number doesn't follow the parent.", testID)
		{
			blk := mine(t, gen, "block 1")

			// A parent carrying the genesis hash but claiming a different height.
			bd := database.NewBlockData(gen)
			bd.Header.Number = 5
			parent, err := database.ToBlock(bd)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to convert the block: %v", failed, testID, err)
			}

			if err := blk.Validate(parent, nil); !errors.Is(err, database.ErrIndexMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould get an IndexMismatch error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get an IndexMismatch error.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block lowers the difficulty.", testID)
		{
			hard := database.GenesisBlock(genesis.Genesis{Date: testGenesis().Date, Difficulty: 4})

			blk, err := database.POW(context.Background(), database.POWArgs{
				Parent:     hard,
				Difficulty: 0,
				Payload:    database.Payload{Data: "easy"},
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %v", failed, testID, err)
			}

			if err := blk.Validate(hard, nil); !errors.Is(err, database.ErrDifficultyNotMet) {
				t.Fatalf("\t%s\tTest %d:\tShould get a DifficultyNotMet error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a DifficultyNotMet error.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block carries an invalid transaction.", testID)
		{
			pk, err := crypto.HexToECDSA(pkHexKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a private key: %v", failed, testID, err)
			}

			tx, err := database.Tx{ToID: toID, Amount: 10, Nonce: 1}.Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign a transaction: %v", failed, testID, err)
			}
			tx.Amount = 20

			blk, err := database.POW(context.Background(), database.POWArgs{
				Parent:     gen,
				Difficulty: difficulty,
				Payload:    database.Payload{Tx: &tx},
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %v", failed, testID, err)
			}

			err = blk.Validate(gen, nil)
			if !errors.Is(err, database.ErrInvalidPayload) {
				t.Fatalf("\t%s\tTest %d:\tShould get an InvalidPayload error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get an InvalidPayload error.", success, testID)

			if !errors.Is(err, database.ErrBadSignature) {
				t.Fatalf("\t%s\tTest %d:\tShould carry the BadSignature cause: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould carry the BadSignature cause.", success, testID)
		}
	}
}

func Test_POWCancel(t *testing.T) {
	gen := database.GenesisBlock(testGenesis())

	t.Log("Given the need to stop mining when asked.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the context is cancelled.", testID)
		{
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			// No hash can have more than 256 leading zero bits.
			_, err := database.POW(ctx, database.POWArgs{
				Parent:     gen,
				Difficulty: 300,
				Payload:    database.Payload{Data: "never"},
			})
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest %d:\tShould get back a cancelled error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get back a cancelled error.", success, testID)
		}
	}
}

func Test_Chain(t *testing.T) {
	gen := database.GenesisBlock(testGenesis())

	t.Log("Given the need to maintain a chain of blocks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen appending blocks to the tip.", testID)
		{
			chain := database.NewChain(database.NewStore(), gen, nil)
			blocks := mineChain(t, gen, 5, "main")

			for _, blk := range blocks {
				if err := chain.TryAppend(blk); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to append block %d: %v", failed, testID, blk.Header.Number, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append the blocks.", success, testID)

			if chain.Height() != 5 || chain.Tip().Hash() != blocks[4].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould have the last block as the tip at height 5, got %d.", failed, testID, chain.Height())
			}
			t.Logf("\t%s\tTest %d:\tShould have the last block as the tip at height 5.", success, testID)

			for i := uint64(1); i <= chain.Height(); i++ {
				blk, _ := chain.BlockAt(i)
				prev, _ := chain.BlockAt(i - 1)
				if blk.Header.ParentHash != prev.Hash() {
					t.Fatalf("\t%s\tTest %d:\tShould have a contiguous chain at height %d.", failed, testID, i)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould have a contiguous chain.", success, testID)

			if err := chain.TryAppend(blocks[2]); !errors.Is(err, database.ErrParentMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould not append a block that doesn't extend the tip: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not append a block that doesn't extend the tip.", success, testID)

			exp := uint64(6 * 2)
			if chain.CumulativeWork().Uint64() != exp {
				t.Fatalf("\t%s\tTest %d:\tShould have cumulative work %d, got %d.", failed, testID, exp, chain.CumulativeWork().Uint64())
			}
			t.Logf("\t%s\tTest %d:\tShould have cumulative work %d.", success, testID, exp)

			if chain.WorkAfter(3).Uint64() != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould have work 4 above height 3, got %d.", failed, testID, chain.WorkAfter(3).Uint64())
			}
			t.Logf("\t%s\tTest %d:\tShould have work 4 above height 3.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen replacing a suffix with a longer branch.", testID)
		{
			chain := database.NewChain(database.NewStore(), gen, nil)
			main := mineChain(t, gen, 5, "main")
			for _, blk := range main {
				if err := chain.TryAppend(blk); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to append block: %v", failed, testID, err)
				}
			}

			forkpoint, _ := chain.BlockAt(3)
			fork := mineChain(t, forkpoint, 4, "fork")

			displaced, err := chain.ReplaceSuffix(3, fork)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to replace the suffix: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to replace the suffix.", success, testID)

			if len(displaced) != 2 || displaced[0].Hash() != main[3].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould get back the 2 displaced blocks, got %d.", failed, testID, len(displaced))
			}
			t.Logf("\t%s\tTest %d:\tShould get back the 2 displaced blocks.", success, testID)

			if chain.Height() != 7 || chain.Tip().Hash() != fork[3].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould have the fork tip at height 7, got %d.", failed, testID, chain.Height())
			}
			t.Logf("\t%s\tTest %d:\tShould have the fork tip at height 7.", success, testID)

			if chain.Contains(main[4].Hash()) {
				t.Fatalf("\t%s\tTest %d:\tShould not contain the displaced blocks.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not contain the displaced blocks.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen replacing a suffix with an invalid branch.", testID)
		{
			chain := database.NewChain(database.NewStore(), gen, nil)
			main := mineChain(t, gen, 3, "main")
			for _, blk := range main {
				if err := chain.TryAppend(blk); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to append block: %v", failed, testID, err)
				}
			}

			fork := mineChain(t, gen, 3, "fork")

			if _, err := chain.ReplaceSuffix(1, fork); !errors.Is(err, database.ErrNonContiguousSuffix) {
				t.Fatalf("\t%s\tTest %d:\tShould get a NonContiguousSuffix error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a NonContiguousSuffix error.", success, testID)

			if _, err := chain.ReplaceSuffix(10, fork); !errors.Is(err, database.ErrForkpointNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould get a ForkpointNotFound error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a ForkpointNotFound error.", success, testID)

			if chain.Height() != 3 || chain.Tip().Hash() != main[2].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould leave the chain untouched.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the chain untouched.", success, testID)
		}
	}
}

func Test_SnapshotRestore(t *testing.T) {
	gen := database.GenesisBlock(testGenesis())

	t.Log("Given the need to persist and restore a chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen restoring a snapshot of a valid chain.", testID)
		{
			chain := database.NewChain(database.NewStore(), gen, nil)
			for _, blk := range mineChain(t, gen, 4, "main") {
				if err := chain.TryAppend(blk); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to append block: %v", failed, testID, err)
				}
			}

			restored, err := database.Restore(gen, database.Snapshot(chain), nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to restore the chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to restore the chain.", success, testID)

			for i := uint64(0); i <= chain.Height(); i++ {
				exp, _ := chain.BlockAt(i)
				got, _ := restored.BlockAt(i)
				if exp.Hash() != got.Hash() {
					t.Fatalf("\t%s\tTest %d:\tShould have the same block at height %d.", failed, testID, i)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould have the same blocks.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen restoring a corrupt snapshot.", testID)
		{
			chain := database.NewChain(database.NewStore(), gen, nil)
			for _, blk := range mineChain(t, gen, 3, "main") {
				if err := chain.TryAppend(blk); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to append block: %v", failed, testID, err)
				}
			}

			snapshot := database.Snapshot(chain)
			snapshot[2].Payload.Data = "rewritten history"

			if _, err := database.Restore(gen, snapshot, nil); !errors.Is(err, database.ErrHashMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the snapshot with a HashMismatch: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the snapshot with a HashMismatch.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the genesis content of a snapshot is rewritten.", testID)
		{
			snapshot := database.Snapshot(database.NewChain(database.NewStore(), gen, nil))
			snapshot[0].Payload.Data = "rewritten genesis"

			if _, err := database.Restore(gen, snapshot, nil); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a genesis that keeps its hash but not its content.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a genesis that keeps its hash but not its content.", success, testID)
		}
	}
}

// =============================================================================

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:    1,
		Difficulty: difficulty,
	}
}

func mine(t *testing.T, parent database.Block, data string) database.Block {
	t.Helper()

	blk, err := database.POW(context.Background(), database.POWArgs{
		Parent:     parent,
		Difficulty: difficulty,
		Payload:    database.Payload{Data: data},
	})
	if err != nil {
		t.Fatalf("Should be able to mine a block: %s", err)
	}

	return blk
}

func mineChain(t *testing.T, parent database.Block, n int, label string) []database.Block {
	t.Helper()

	blocks := make([]database.Block, n)
	for i := range n {
		blocks[i] = mine(t, parent, fmt.Sprintf("%s %d", label, i))
		parent = blocks[i]
	}

	return blocks
}

func repeat(s string, n int) string {
	out := ""
	for range n {
		out += s
	}
	return out
}
