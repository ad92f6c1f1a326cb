package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/database/storage"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	toID     = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

// recorder implements the state.Worker interface and keeps what the state
// asked the worker to do.
type recorder struct {
	mu      sync.Mutex
	starts  int
	cancels int
	actions []consensus.Action
}

func (r *recorder) Shutdown() {}

func (r *recorder) SignalStartMining() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

func (r *recorder) SignalCancelMining() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels++
}

func (r *recorder) SignalActions(actions []consensus.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, actions...)
}

func (r *recorder) snapshot() (int, int, []consensus.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.cancels, append([]consensus.Action(nil), r.actions...)
}

// =============================================================================

func Test_MineAndQuery(t *testing.T) {
	t.Log("Given the need to mine blocks through the state.")
	{
		t.Logf("\tTest 0:\tWhen mining data and mempool transactions.")
		{
			st, rec := newState(t, storage.NewMemory())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			blk, err := st.MineNewBlock(ctx, "hello")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a data block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine a data block.", success)

			status := queryStatus(t, st)
			if status.Height != 1 || status.TipHash != blk.Hash() {
				t.Logf("\t\tTest 0:\tgot: %+v", status)
				t.Fatalf("\t%s\tTest 0:\tShould have the mined block as the tip.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have the mined block as the tip.", success)

			if status.CumulativeWork != "8" {
				t.Logf("\t\tTest 0:\tgot: %s", status.CumulativeWork)
				t.Logf("\t\tTest 0:\texp: %s", "8")
				t.Fatalf("\t%s\tTest 0:\tShould report the cumulative work.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report the cumulative work.", success)

			if _, err := st.MineNewBlock(ctx, ""); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest 0:\tShould not mine with an empty mempool: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not mine with an empty mempool.", success)

			tx := signedTx(t, 1)
			if err := st.UpsertWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit a transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to submit a transaction.", success)

			if err := st.UpsertWalletTransaction(tx); !errors.Is(err, database.ErrDuplicateTransaction) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the same transaction twice: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the same transaction twice.", success)

			blk, err = st.MineNewBlock(ctx, "")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine the transaction: %v", failed, err)
			}
			if blk.Payload.Tx == nil || blk.Payload.Tx.ID() != tx.ID() {
				t.Fatalf("\t%s\tTest 0:\tShould carry the pending transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine the transaction.", success)

			if n, err := st.QueryMempoolLength(); err != nil || n != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould remove the mined transaction from the mempool: %d", failed, n)
			}
			t.Logf("\t%s\tTest 0:\tShould remove the mined transaction from the mempool.", success)

			blocks, err := st.QueryBlocksByNumber(state.QueryLastest, state.QueryLastest)
			if err != nil || len(blocks) != 1 || blocks[0].Hash() != blk.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould be able to query the latest block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to query the latest block.", success)

			blocks, err = st.QueryBlocksByNumber(0, state.QueryLastest)
			if err != nil || len(blocks) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould be able to query the whole chain: %d", failed, len(blocks))
			}
			t.Logf("\t%s\tTest 0:\tShould be able to query the whole chain.", success)

			if _, exists, err := st.QueryBlockByHash(blk.Hash()); err != nil || !exists {
				t.Fatalf("\t%s\tTest 0:\tShould be able to query a block by hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to query a block by hash.", success)

			starts, cancels, actions := rec.snapshot()
			if starts == 0 || cancels == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould signal the worker on tip changes: starts[%d] cancels[%d]", failed, starts, cancels)
			}
			t.Logf("\t%s\tTest 0:\tShould signal the worker on tip changes.", success)

			var broadcasts int
			for _, act := range actions {
				if _, ok := act.(consensus.BroadcastBlock); ok {
					broadcasts++
				}
			}
			if broadcasts != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould broadcast every mined block: %d", failed, broadcasts)
			}
			t.Logf("\t%s\tTest 0:\tShould broadcast every mined block.", success)
		}
	}
}

func Test_ProposedBlocks(t *testing.T) {
	t.Log("Given the need to accept blocks from peers.")
	{
		t.Logf("\tTest 0:\tWhen a peer proposes blocks.")
		{
			miner, _ := newState(t, storage.NewMemory())
			node, rec := newState(t, storage.NewMemory())

			ctx := context.Background()

			b1, err := miner.MineNewBlock(ctx, "one")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine block one: %v", failed, err)
			}
			b2, err := miner.MineNewBlock(ctx, "two")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine block two: %v", failed, err)
			}

			out, err := node.ProcessProposedBlock(b2, "peer1")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to process block two: %v", failed, err)
			}
			if out.Classification != consensus.MissingParent {
				t.Fatalf("\t%s\tTest 0:\tShould hold block two as an orphan: %s", failed, out.Classification)
			}
			t.Logf("\t%s\tTest 0:\tShould hold block two as an orphan.", success)

			_, _, actions := rec.snapshot()
			var requested bool
			for _, act := range actions {
				if req, ok := act.(consensus.RequestChain); ok && req.From == 1 && req.Peer == "peer1" {
					requested = true
				}
			}
			if !requested {
				t.Fatalf("\t%s\tTest 0:\tShould request the chain from the peer.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould request the chain from the peer.", success)

			if orphans, err := node.QueryOrphans(); err != nil || len(orphans) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould list the orphan.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould list the orphan.", success)

			if _, err := node.ProcessRequestedBlock(b1, "peer1"); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to process block one: %v", failed, err)
			}

			status := queryStatus(t, node)
			if status.TipHash != b2.Hash() || status.Orphans != 0 {
				t.Logf("\t\tTest 0:\tgot: %+v", status)
				t.Fatalf("\t%s\tTest 0:\tShould release the orphan once the parent arrives.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould release the orphan once the parent arrives.", success)

			out, err = node.ProcessProposedBlock(b2, "peer2")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to process a known block: %v", failed, err)
			}
			if out.Classification != consensus.Duplicate {
				t.Fatalf("\t%s\tTest 0:\tShould classify a known block as a duplicate: %s", failed, out.Classification)
			}
			t.Logf("\t%s\tTest 0:\tShould classify a known block as a duplicate.", success)
		}

		t.Logf("\tTest 1:\tWhen a peer sends its chain.")
		{
			miner, _ := newState(t, storage.NewMemory())
			node, _ := newState(t, storage.NewMemory())

			var blocks []database.Block
			for _, data := range []string{"a", "b", "c"} {
				blk, err := miner.MineNewBlock(context.Background(), data)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to mine block %s: %v", failed, data, err)
				}
				blocks = append([]database.Block{blk}, blocks...)
			}

			outcomes, err := node.ProcessChainSync(blocks, "peer1")
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to process the chain: %v", failed, err)
			}
			if len(outcomes) != 3 {
				t.Fatalf("\t%s\tTest 1:\tShould get an outcome per block: %d", failed, len(outcomes))
			}
			t.Logf("\t%s\tTest 1:\tShould get an outcome per block.", success)

			if queryStatus(t, node).TipHash != queryStatus(t, miner).TipHash {
				t.Fatalf("\t%s\tTest 1:\tShould end up with the same tip as the peer.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould end up with the same tip as the peer.", success)
		}
	}
}

func Test_Persistence(t *testing.T) {
	t.Log("Given the need to save, load and reset the chain.")
	{
		t.Logf("\tTest 0:\tWhen the chain is saved and restored.")
		{
			strg := storage.NewMemory()
			st, _ := newState(t, strg)

			for _, data := range []string{"a", "b"} {
				if _, err := st.MineNewBlock(context.Background(), data); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to mine block %s: %v", failed, data, err)
				}
			}
			tip := queryStatus(t, st).TipHash

			if err := st.Save(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to save the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to save the chain.", success)

			if err := st.Reset(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reset the chain: %v", failed, err)
			}
			if status := queryStatus(t, st); status.Height != 0 || status.StoredBlocks != 1 {
				t.Logf("\t\tTest 0:\tgot: %+v", status)
				t.Fatalf("\t%s\tTest 0:\tShould be back at the genesis block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be back at the genesis block.", success)

			if err := st.Load(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to load the chain: %v", failed, err)
			}
			if status := queryStatus(t, st); status.Height != 2 || status.TipHash != tip {
				t.Logf("\t\tTest 0:\tgot: %+v", status)
				t.Fatalf("\t%s\tTest 0:\tShould get back the saved chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get back the saved chain.", success)

			restarted, _ := newState(t, strg)
			if queryStatus(t, restarted).TipHash != tip {
				t.Fatalf("\t%s\tTest 0:\tShould restore the chain on start.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould restore the chain on start.", success)
		}

		t.Logf("\tTest 1:\tWhen the snapshot is corrupt.")
		{
			strg := storage.NewMemory()
			st, _ := newState(t, strg)

			if _, err := st.MineNewBlock(context.Background(), "a"); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to mine a block: %v", failed, err)
			}
			if err := st.Save(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to save the chain: %v", failed, err)
			}

			data, _ := strg.Load()
			data[len(data)-1].Payload.Data = "tampered"
			strg.Save(data)

			_, err := state.New(state.Config{
				Host:    "localhost:9080",
				Genesis: testGenesis(),
				Storage: strg,
			})
			if !errors.Is(err, state.ErrSnapshotCorrupt) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse to start on a corrupt snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse to start on a corrupt snapshot.", success)

			if err := st.Load(); !errors.Is(err, state.ErrSnapshotCorrupt) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse to load a corrupt snapshot: %v", failed, err)
			}
			if queryStatus(t, st).Height != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould keep the chain when the load fails.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould keep the chain when the load fails.", success)

			if err := st.ResetStorage(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to reset storage: %v", failed, err)
			}
			if _, err := state.New(state.Config{Host: "localhost:9080", Genesis: testGenesis(), Storage: strg}); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould start after an explicit reset: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould start after an explicit reset.", success)
		}
	}
}

func Test_Shutdown(t *testing.T) {
	t.Log("Given the need to stop answering once the node is down.")
	{
		t.Logf("\tTest 0:\tWhen the state is queried after a shutdown.")
		{
			st, _ := newState(t, storage.NewMemory())

			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to shutdown: %v", failed, err)
			}
			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to shutdown twice: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to shutdown twice.", success)

			queries := map[string]func() error{
				"QueryStatus": func() error { _, err := st.QueryStatus(); return err },
				"QueryBlocksByNumber": func() error {
					_, err := st.QueryBlocksByNumber(0, state.QueryLastest)
					return err
				},
				"QueryBlockByHash": func() error { _, _, err := st.QueryBlockByHash("0x00"); return err },
				"QueryForks":       func() error { _, err := st.QueryForks(); return err },
				"QueryOrphans":     func() error { _, err := st.QueryOrphans(); return err },
				"QueryMempool":     func() error { _, err := st.QueryMempool(); return err },
				"QueryMempoolLength": func() error {
					_, err := st.QueryMempoolLength()
					return err
				},
			}

			for name, query := range queries {
				if err := query(); !errors.Is(err, state.ErrShutdown) {
					t.Fatalf("\t%s\tTest 0:\tShould get ErrShutdown from %s: %v", failed, name, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrShutdown from every query.", success)
		}
	}
}

// =============================================================================

func queryStatus(t *testing.T, st *state.State) state.Status {
	t.Helper()

	status, err := st.QueryStatus()
	if err != nil {
		t.Fatalf("Should be able to query the status: %s", err)
	}

	return status
}

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:    1,
		Difficulty: 2,
	}
}

func newState(t *testing.T, strg database.Serializer) (*state.State, *recorder) {
	t.Helper()

	st, err := state.New(state.Config{
		Host:             "localhost:9080",
		Genesis:          testGenesis(),
		Storage:          strg,
		MaxForks:         16,
		MaxOrphans:       16,
		MaxOrphanRetries: 3,
		EvHandler:        func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	rec := recorder{}
	st.Worker = &rec

	t.Cleanup(func() { st.Shutdown() })

	return st, &rec
}

func signedTx(t *testing.T, nonce uint64) database.SignedTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	tx := database.Tx{ToID: toID, Amount: 10, Nonce: nonce}
	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("Should be able to sign transaction: %s", err)
	}

	return signedTx
}
