package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/powchain/app/services/node/handlers"
	"github.com/ardanlabs/powchain/app/tooling/cli/cmd"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/database/storage"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/nameservice"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	_, err = root.ExecuteC()
	return buf.String(), err
}

func TestRootCmd(t *testing.T) {
	output, err := executeCommand(cmd.RootCmd, "--help")
	assert.NoError(t, err)
	assert.Contains(t, output, "submits transactions, mines blocks and inspects the chain")

	_, err = executeCommand(cmd.RootCmd, "txn")
	assert.Error(t, err)

	_, err = executeCommand(cmd.RootCmd, "show", "block")
	assert.Error(t, err)
}

func TestNodeCommands(t *testing.T) {
	dir := t.TempDir()
	gen := testGenesis()
	snapshot := filepath.Join(dir, "chain.json")

	st, srv := newNode(t, gen, snapshot)
	accounts := filepath.Join(dir, "accounts")

	run := func(args ...string) (string, error) {
		args = append(args, "--url", srv.URL, "--account-path", accounts, "--account", "kennedy")
		return executeCommand(cmd.RootCmd, args...)
	}

	output, err := run("generate")
	require.NoError(t, err)
	assert.Contains(t, output, "kennedy.ecdsa")

	_, err = run("generate")
	assert.Error(t, err, "an existing key should not be replaced")

	output, err = run("txn", "10")
	require.NoError(t, err, output)
	assert.Contains(t, output, "transaction added to mempool")

	output, err = run("show", "pool")
	require.NoError(t, err)

	var pool []struct {
		Amount uint64 `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &pool))
	require.Len(t, pool, 1)
	assert.Equal(t, uint64(10), pool[0].Amount)

	output, err = run("mine")
	require.NoError(t, err, output)
	pending, err := st.QueryMempoolLength()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	output, err = run("mine", "hello", "world")
	require.NoError(t, err, output)
	assert.Contains(t, output, "hello world")

	output, err = run("show", "status")
	require.NoError(t, err)

	var status state.Status
	require.NoError(t, json.Unmarshal([]byte(output), &status))
	assert.Equal(t, uint64(2), status.Height)

	output, err = run("show", "chain", "--from", "2")
	require.NoError(t, err)
	assert.Contains(t, output, status.TipHash)

	output, err = run("show", "block", status.TipHash)
	require.NoError(t, err)
	assert.Contains(t, output, "hello world")

	_, err = run("show", "block", "0x00")
	assert.ErrorContains(t, err, "404")

	_, err = run("mine")
	assert.ErrorContains(t, err, "422")

	_, err = run("req", "localhost")
	assert.ErrorContains(t, err, "400")

	_, err = run("save")
	require.NoError(t, err)

	genesisPath := filepath.Join(dir, "genesis.json")
	data, err := json.Marshal(gen)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(genesisPath, data, 0644))

	output, err = run("verify", snapshot, "--genesis", genesisPath, "--progress=false")
	require.NoError(t, err, output)
	assert.Contains(t, output, "snapshot valid: height[2]")

	_, err = run("reset")
	require.NoError(t, err)
	status, err = st.QueryStatus()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), status.Height)

	_, err = run("load")
	require.NoError(t, err)
	status, err = st.QueryStatus()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), status.Height)

	cmd.RootCmd.SetIn(strings.NewReader("show peers\nconsole\nquit\n"))
	output, err = run("console")
	cmd.RootCmd.SetIn(nil)
	require.NoError(t, err)
	assert.Contains(t, output, "already in the console")
}

func TestVerifyTampered(t *testing.T) {
	dir := t.TempDir()
	gen := testGenesis()
	gb := database.GenesisBlock(gen)

	blk, err := database.POW(context.Background(), database.POWArgs{
		Parent:     gb,
		Difficulty: gen.Difficulty,
		Payload:    database.Payload{Data: "hello"},
	})
	require.NoError(t, err)

	blocks := []database.BlockData{database.NewBlockData(gb), database.NewBlockData(blk)}
	blocks[1].Payload.Data = "tampered"

	snapshot := filepath.Join(dir, "chain.json")
	file, err := storage.NewFile(snapshot)
	require.NoError(t, err)
	require.NoError(t, file.Save(blocks))

	genesisPath := filepath.Join(dir, "genesis.json")
	data, err := json.Marshal(gen)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(genesisPath, data, 0644))

	_, err = executeCommand(cmd.RootCmd, "verify", snapshot, "--genesis", genesisPath, "--progress=false")
	assert.ErrorContains(t, err, "blk[1]")
}

func TestVerifyTamperedGenesis(t *testing.T) {
	dir := t.TempDir()
	gen := testGenesis()

	// The genesis keeps its hash while its content changes.
	blocks := []database.BlockData{database.NewBlockData(database.GenesisBlock(gen))}
	blocks[0].Payload.Data = "rewritten genesis"

	snapshot := filepath.Join(dir, "chain.json")
	file, err := storage.NewFile(snapshot)
	require.NoError(t, err)
	require.NoError(t, file.Save(blocks))

	genesisPath := filepath.Join(dir, "genesis.json")
	data, err := json.Marshal(gen)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(genesisPath, data, 0644))

	_, err = executeCommand(cmd.RootCmd, "verify", snapshot, "--genesis", genesisPath, "--progress=false")
	assert.ErrorContains(t, err, "genesis mismatch")
}

// =============================================================================

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:    1,
		Difficulty: 2,
	}
}

// stateWorker mines through the state directly.
type stateWorker struct {
	st *state.State
}

func (w stateWorker) Mine(ctx context.Context, data string) (database.Block, error) {
	return w.st.MineNewBlock(ctx, data)
}

func (w stateWorker) Redial(ctx context.Context) error { return nil }

func (w stateWorker) SyncPeers(ctx context.Context, host string) error { return nil }

func newNode(t *testing.T, gen genesis.Genesis, snapshot string) (*state.State, *httptest.Server) {
	t.Helper()

	strg, err := storage.NewFile(snapshot)
	require.NoError(t, err)

	st, err := state.New(state.Config{
		Host:             "localhost:9080",
		Genesis:          gen,
		Storage:          strg,
		MaxForks:         16,
		MaxOrphans:       16,
		MaxOrphanRetries: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Shutdown() })

	ns, err := nameservice.New(filepath.Join(filepath.Dir(snapshot), "accounts"))
	require.NoError(t, err)

	app := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:    make(chan os.Signal, 1),
		Log:         zap.NewNop().Sugar(),
		State:       st,
		Worker:      stateWorker{st: st},
		NS:          ns,
		Evts:        events.New("viewer:"),
		CorsOrigins: []string{"*"},
	})

	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	return st, srv
}
