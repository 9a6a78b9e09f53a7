// Package epoch maps wall-clock block time to the protocol's epoch index
// and detects epoch transitions.
package epoch

import "github.com/meridianchain/statecore/types"

// EpochsPerYear is the protocol constant: twenty epochs partition one
// calendar year.
const EpochsPerYear = 20

// DefaultDurationMS is EPOCH_DURATION_MS for a 365-day year split into 20
// epochs (18.25 days each), in milliseconds.
const DefaultDurationMS uint64 = 1_576_800_000

// Info is the result of Calculate: the epoch a block time falls into, plus
// whether it represents a transition from the previous block's epoch.
type Info struct {
	CurrentEpochIndex  types.Epoch
	PreviousEpochIndex types.Epoch
	IsEpochChange      bool
}

// Calculate derives the current epoch index for blockTimeMs given
// genesisTimeMs and the fixed epoch duration, and reports whether this
// block opens a new epoch relative to previousBlockTimeMs. A nil
// previousBlockTimeMs (the chain's first block) always reports a change.
func Calculate(genesisTimeMs, blockTimeMs uint64, previousBlockTimeMs *uint64, epochDurationMs uint64) Info {
	current := indexFor(genesisTimeMs, blockTimeMs, epochDurationMs)

	if previousBlockTimeMs == nil {
		return Info{CurrentEpochIndex: current, PreviousEpochIndex: current, IsEpochChange: true}
	}

	previous := indexFor(genesisTimeMs, *previousBlockTimeMs, epochDurationMs)
	return Info{
		CurrentEpochIndex:  current,
		PreviousEpochIndex: previous,
		IsEpochChange:      previous < current,
	}
}

func indexFor(genesisTimeMs, timeMs, epochDurationMs uint64) types.Epoch {
	if timeMs < genesisTimeMs {
		return 0
	}
	return types.Epoch((timeMs - genesisTimeMs) / epochDurationMs)
}
