// Package abci implements the block lifecycle driver: the three
// consensus-facing operations (init_chain, block_begin, block_end) that set
// up genesis state, install the per-block execution context and settle fees
// on each block boundary. Wire framing is kept out of the core; the Driver
// exposes the calls as plain Go methods and codec.go supplies a minimal
// length-prefixed JSON envelope for scripted replay.
package abci

import "github.com/meridianchain/statecore/types"

// InitChainRequest asks the driver to create the initial state skeleton.
type InitChainRequest struct{}

// InitChainResponse is empty; a failed init surfaces as an error.
type InitChainResponse struct{}

// BlockBeginRequest carries the consensus engine's view of the block being
// opened.
type BlockBeginRequest struct {
	BlockHeight         uint64           `json:"block_height"`
	BlockTimeMs         uint64           `json:"block_time_ms"`
	PreviousBlockTimeMs *uint64          `json:"previous_block_time_ms,omitempty"`
	ProposerID          types.Identifier `json:"proposer_id"`
}

// BlockBeginResponse is empty; the installed block execution context is
// internal to the driver.
type BlockBeginResponse struct{}

// Fees is one block's fee totals as metered by the execution layer.
type Fees struct {
	ProcessingFees uint64 `json:"processing_fees"`
	StorageFees    uint64 `json:"storage_fees"`
	FeeMultiplier  uint64 `json:"fee_multiplier"`
}

// BlockEndRequest closes the current block with its fee totals.
type BlockEndRequest struct {
	Fees Fees `json:"fees"`
}

// BlockEndResponse reports the epoch the block landed in and the outcome of
// this block's payout pass.
type BlockEndResponse struct {
	CurrentEpochIndex    types.Epoch  `json:"current_epoch_index"`
	IsEpochChange        bool         `json:"is_epoch_change"`
	MasternodesPaidCount uint16       `json:"masternodes_paid_count"`
	PaidEpochIndex       *types.Epoch `json:"paid_epoch_index,omitempty"`
}
