package cmd

import (
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/database/storage"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <snapshot>",
	Short: "Validate a persisted snapshot offline",
	Long: `Replays every block of a snapshot file on top of genesis, the same way a node
does when it loads the snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: verifyRun,
}

func init() {
	verifyCmd.Flags().StringP("genesis", "g", "zblock/genesis.json", "path to the genesis file")
	verifyCmd.Flags().Bool("progress", true, "display a progress bar")
	RootCmd.AddCommand(verifyCmd)
}

func verifyRun(cmd *cobra.Command, args []string) error {
	genesisPath, _ := cmd.Flags().GetString("genesis")
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return errors.Wrap(err, "loading genesis")
	}

	file, err := storage.NewFile(args[0])
	if err != nil {
		return err
	}

	data, err := file.Load()
	if err != nil {
		return errors.Wrap(err, "reading snapshot")
	}

	if len(data) == 0 {
		return fmt.Errorf("snapshot %s is empty", args[0])
	}

	blocks := make([]database.Block, len(data))
	for i, bd := range data {
		block, err := database.ToBlock(bd)
		if err != nil {
			return errors.Wrapf(err, "snapshot entry %d", i)
		}
		blocks[i] = block
	}

	// The stored genesis must carry the expected hash and its content must
	// still produce that hash.
	chain, err := database.LoadChain(database.NewStore(), database.GenesisBlock(gen), blocks[:1], nil)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		bar = progressbar.NewOptions64(
			int64(len(data)-1),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Verifying blocks..."),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	for _, block := range blocks[1:] {
		if err := chain.TryAppend(block); err != nil {
			return errors.Wrapf(err, "blk[%d]", block.Header.Number)
		}

		if bar != nil {
			if err := bar.Add(1); err != nil {
				return err
			}
		}
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "snapshot valid: height[%d] tip[%s] work[%s]\n", chain.Height(), chain.Tip().Hash(), chain.CumulativeWork().Dec())
	return err
}
