// Package feedist settles block fees: it accumulates each block's fees into
// the current epoch pool and the global storage distribution pool, and pays
// the oldest unpaid epoch's proposers and their reward-share beneficiaries.
package feedist

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/pools"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// DistributionInfo reports the outcome of one DistributeFromUnpaidPools
// call: how many proposers were paid, which epoch they were paid from (nil
// when nothing was unpaid), and the fractional credits that could not be
// floored onto any identity this round.
type DistributionInfo struct {
	MasternodesPaidCount uint16
	PaidEpochIndex       *types.Epoch
	FeeLeftovers         decimal.Decimal
}

func emptyDistributionInfo() DistributionInfo {
	return DistributionInfo{FeeLeftovers: decimal.Zero}
}

var tenThousand = decimal.NewFromInt(10_000)

// Distributor pays out unpaid epoch pools. It composes the epoch-pool store
// with the two external collaborators: the reward-share query and the
// identity balance store.
type Distributor struct {
	pool       *pools.EpochPoolStore
	identities IdentityStore
	shares     RewardShareSource
	limit      int
	log        *logrus.Entry
}

// NewDistributor builds a Distributor. proposersLimitPerCall is the
// back-pressure base: a single call pays at most limit proposers when the
// unpaid epoch is the most recent one, scaling up by how far behind payouts
// have fallen.
func NewDistributor(pool *pools.EpochPoolStore, identities IdentityStore, shares RewardShareSource, proposersLimitPerCall int, log *logrus.Entry) *Distributor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Distributor{
		pool:       pool,
		identities: identities,
		shares:     shares,
		limit:      proposersLimitPerCall,
		log:        log,
	}
}

// DistributeFromUnpaidPools settles the oldest unpaid epoch strictly older
// than currentEpoch: each proposer's share of the epoch's total fees is
// split among its reward-share beneficiaries (floored per share, the
// fractional remainder staying with the proposer), the proposer keeps the
// floored rest, and sub-credit fractions accumulate in FeeLeftovers. Paid
// proposers are deleted from the epoch's subtree; when fewer than the limit
// were processed the epoch is marked paid. All mutations are staged into b;
// nothing is applied here.
func (d *Distributor) DistributeFromUnpaidPools(b *store.Batch, tx *store.Tx, currentEpoch types.Epoch) (DistributionInfo, error) {
	if currentEpoch == 0 {
		return emptyDistributionInfo(), nil
	}

	// For the current epoch we pay for previous ones.
	unpaid, found, err := d.oldestUnpaidEpoch(tx, currentEpoch-1)
	if err != nil {
		return emptyDistributionInfo(), err
	}
	if !found {
		return emptyDistributionInfo(), nil
	}

	// Process more proposers at once if many unpaid epochs have piled up.
	limit := d.limit
	if unpaid != currentEpoch {
		limit = int(currentEpoch-unpaid) * d.limit
	}

	processingFees, err := d.pool.GetProcessingFees(tx, unpaid)
	if err != nil {
		return emptyDistributionInfo(), err
	}
	storageFees, err := d.pool.GetStorageFees(tx, unpaid)
	if err != nil {
		return emptyDistributionInfo(), err
	}
	totalFees := processingFees + storageFees
	if totalFees < processingFees {
		return emptyDistributionInfo(), xerrors.ErrOverflow
	}

	blockCount, err := d.pool.GetBlockCount(tx, unpaid)
	if err != nil {
		return emptyDistributionInfo(), err
	}
	if blockCount == 0 {
		return emptyDistributionInfo(), xerrors.ErrCorruptedItem
	}

	proposers, err := d.pool.GetProposers(tx, unpaid, limit)
	if err != nil {
		return emptyDistributionInfo(), err
	}

	totalFeesDec := decimalFromUint64(totalFees)
	blockCountDec := decimalFromUint64(blockCount)

	feeLeftovers := decimal.Zero

	for _, proposer := range proposers {
		proposedBlocks := decimalFromUint64(proposer.Count)
		masternodeReward := totalFeesDec.Mul(proposedBlocks).Div(blockCountDec)

		documents, err := d.shares.SharesFor(tx, proposer.ID)
		if err != nil {
			return emptyDistributionInfo(), fmt.Errorf("feedist: querying reward shares: %w: %w", xerrors.ErrStateRepositoryFetch, err)
		}

		for _, doc := range documents {
			payTo, percentage, err := parseRewardShareDocument(doc)
			if err != nil {
				return emptyDistributionInfo(), err
			}

			share := masternodeReward.Mul(decimalFromUint64(percentage)).Div(tenThousand)
			shareFloored := share.Floor()

			// The dividend for subsequent shares shrinks by each floored
			// share so the sum of floors never exceeds the proposer reward.
			masternodeReward = masternodeReward.Sub(shareFloored)

			if err := CreditIdentity(b, tx, d.identities, payTo, shareFloored); err != nil {
				return emptyDistributionInfo(), err
			}
		}

		rewardFloored := masternodeReward.Floor()
		feeLeftovers = feeLeftovers.Add(masternodeReward.Sub(rewardFloored))

		if err := CreditIdentity(b, tx, d.identities, proposer.ID, rewardFloored); err != nil {
			return emptyDistributionInfo(), err
		}
	}

	// Delete paid proposers before the mark-as-paid check so the subtree is
	// empty by the time its marker is removed within the same batch.
	ids := make([]types.Identifier, len(proposers))
	for i, p := range proposers {
		ids[i] = p.ID
	}
	d.pool.DeleteProposers(b, unpaid, ids)

	if len(proposers) < limit {
		d.pool.MarkAsPaid(b, unpaid)
	}

	d.log.WithFields(logrus.Fields{
		"epoch":     unpaid,
		"proposers": len(proposers),
		"limit":     limit,
	}).Debug("feedist: distributed unpaid pool")

	paid := unpaid
	return DistributionInfo{
		MasternodesPaidCount: uint16(len(proposers)),
		PaidEpochIndex:       &paid,
		FeeLeftovers:         feeLeftovers,
	}, nil
}

// oldestUnpaidEpoch walks back from `from` while proposers subtrees are
// populated. It returns the oldest contiguous unpaid epoch, or found=false
// when `from` itself is already settled.
func (d *Distributor) oldestUnpaidEpoch(tx *store.Tx, from types.Epoch) (types.Epoch, bool, error) {
	e := from
	for {
		empty, err := d.pool.ProposersEmpty(tx, e)
		if err != nil {
			return 0, false, err
		}
		if empty {
			if e == from {
				return 0, false, nil
			}
			return e + 1, true, nil
		}
		if e == 0 {
			return 0, true, nil
		}
		e--
	}
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
