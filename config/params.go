// Package config holds the protocol constants as a value type rather than
// bare package constants, so tests can exercise alternate calendars or
// windows without mutating global state. Params is still meant to be fixed
// for the lifetime of one Driver; deterministic replay depends on it never
// changing mid-chain.
package config

import "github.com/meridianchain/statecore/epoch"

// Params bundles the process-wide constants that drive epoch arithmetic and
// pay-out back-pressure.
type Params struct {
	// EpochDurationMS is the fixed wall-clock width of one epoch in
	// milliseconds.
	EpochDurationMS uint64
	// EpochsPerYear is the protocol constant tying the epoch calendar to
	// wall-clock years.
	EpochsPerYear int
	// ProposersLimitPerCall bounds how many proposers a single
	// DistributeFromUnpaidPools call pays before deferring the rest to a
	// later call (PROPOSERS_LIMIT_PER_CALL).
	ProposersLimitPerCall int
	// ForwardEpochWindow is the width of the rolling forward window of
	// pre-created epoch pools (FORWARD_EPOCH_WINDOW).
	ForwardEpochWindow int
}

// Default returns the canonical mainnet parameters: an 18.25-day epoch, 20
// epochs per year, a 50-proposer-per-call back-pressure limit, and a
// 1 000-epoch forward window.
func Default() Params {
	return Params{
		EpochDurationMS:       epoch.DefaultDurationMS,
		EpochsPerYear:         epoch.EpochsPerYear,
		ProposersLimitPerCall: 50,
		ForwardEpochWindow:    1000,
	}
}
