package state

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// ProcessProposedBlock takes a block received from a peer and runs it
// through the admission rules.
func (s *State) ProcessProposedBlock(block database.Block, source string) (consensus.Outcome, error) {
	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: from[%s]", block.Header.ParentHash, block.Hash(), source)
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]", block.Hash())

	res, err := s.dispatch(message{event: consensus.NewBlock{Block: block, Source: source}})
	if err != nil {
		return consensus.Outcome{}, err
	}

	out := res.Outcomes[0]
	return out, out.Err
}

// ProcessRequestedBlock takes a block a peer returned for a block request.
func (s *State) ProcessRequestedBlock(block database.Block, source string) (consensus.Outcome, error) {
	res, err := s.dispatch(message{event: consensus.BlockRequestResponse{Block: block, Source: source}})
	if err != nil {
		return consensus.Outcome{}, err
	}

	out := res.Outcomes[0]
	return out, out.Err
}

// ProcessChainSync takes the blocks a peer returned for a chain request.
// The blocks are replayed in ascending order.
func (s *State) ProcessChainSync(blocks []database.Block, source string) ([]consensus.Outcome, error) {
	s.evHandler("state: ProcessChainSync: started: blocks[%d]: from[%s]", len(blocks), source)
	defer s.evHandler("state: ProcessChainSync: completed")

	res, err := s.dispatch(message{event: consensus.ChainSyncResponse{Blocks: blocks, Source: source}})
	if err != nil {
		return nil, err
	}

	return res.Outcomes, nil
}

// RetryOrphans asks the network again for the parents of the orphans and
// evicts the orphans that used up their retries.
func (s *State) RetryOrphans() ([]consensus.Outcome, error) {
	var res consensus.Result
	err := s.exec(func(e *consensus.Engine) {
		res = e.RetryOrphans()
	})
	if err != nil {
		return nil, err
	}

	if s.Worker != nil && len(res.Actions) > 0 {
		s.Worker.SignalActions(res.Actions)
	}

	return res.Outcomes, nil
}

// =============================================================================

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block, class consensus.Classification) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockPayloadJSON, err := json.Marshal(block.Payload)
	if err != nil {
		blockPayloadJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"classification":%q,"header":%s,"payload":%s}`, block.Hash(), class, string(blockHeaderJSON), string(blockPayloadJSON))
}
