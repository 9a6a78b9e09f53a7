package feedist

import (
	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/pools"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// BlockFees is one block's fee totals, already scaled by the current
// epoch's fee multiplier, split into the processing and storage streams
// that feed the current epoch pool and the global storage distribution
// pool respectively.
type BlockFees struct {
	ProcessingFees uint64
	StorageFees    uint64
}

// AccumulateBlockFees adds a block's fees into the current epoch's
// processing-fee pot and the global storage-fee distribution pool. It is
// the per-block counterpart to DistributeFromUnpaidPools; the driver calls
// both on every BlockEnd.
func AccumulateBlockFees(
	b *store.Batch,
	tx *store.Tx,
	pool *pools.EpochPoolStore,
	storagePool *pools.StorageFeeDistributionPool,
	currentEpoch types.Epoch,
	fees BlockFees,
) error {
	processing, err := pool.GetProcessingFees(tx, currentEpoch)
	if err != nil {
		return err
	}
	newProcessing := processing + fees.ProcessingFees
	if newProcessing < processing {
		return xerrors.ErrOverflow
	}
	pool.UpdateProcessingFees(b, currentEpoch, newProcessing)

	s, err := storagePool.Get(tx)
	if err != nil {
		return err
	}
	newS := s + fees.StorageFees
	if newS < s {
		return xerrors.ErrOverflow
	}
	storagePool.Set(b, newS)
	return nil
}
