package pools

import (
	"math/big"

	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// feeDistributionTable is the 50-year payout schedule, year 0 first, each
// entry scaled by 10^4. The schedule is normalised by its own exact sum
// (feeTableSum) rather than the nominal 10^4, so the year ratios sum to
// exactly one and a distribution tick absorbs the whole pool; see DESIGN.md
// for why the literal ratios cannot be used with their nominal denominator.
var feeDistributionTable = [50]int64{
	500, 480, 460, 440, 420,
	400, 385, 370, 355, 340,
	385, 370, 355, 340, 325,
	310, 295, 285, 275, 265,
	285, 275, 265, 255, 245,
	235, 225, 215, 205, 195,
	215, 205, 195, 185, 175,
	165, 155, 145, 135, 125,
	135, 125, 115, 105, 95,
	85, 75, 65, 55, 50,
}

const (
	// feeTableSum is the exact sum of the feeDistributionTable entries, the
	// normalisation denominator that makes the year ratios sum to one.
	feeTableSum = 12360
	// epochsPerYear spreads each year's share over its twenty epochs.
	epochsPerYear = 20
	// epochShareDenominator turns an S*entry numerator into one epoch's
	// integer share: entry/feeTableSum is the year ratio, split across
	// epochsPerYear epochs.
	epochShareDenominator = feeTableSum * epochsPerYear
)

func init() {
	var sum int64
	for _, entry := range feeDistributionTable {
		sum += entry
	}
	if sum != feeTableSum {
		panic("pools: fee distribution table does not sum to feeTableSum")
	}
}

// StorageFeeDistributionPool owns the single global unsettled
// storage-credit counter S and its payout into the rolling forward window
// of epoch pools.
type StorageFeeDistributionPool struct {
	st *store.Store
}

// NewStorageFeeDistributionPool wraps st.
func NewStorageFeeDistributionPool(st *store.Store) *StorageFeeDistributionPool {
	return &StorageFeeDistributionPool{st: st}
}

// Get returns the current value of S.
func (p *StorageFeeDistributionPool) Get(tx *store.Tx) (uint64, error) {
	v, err := p.st.Get(tx, PoolsRoot, KeyStorageFeePool)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, xerrors.ErrCorruptedItem
	}
	return decodeU64(v), nil
}

// Set stages an unconditional replacement of S.
func (p *StorageFeeDistributionPool) Set(b *store.Batch, v uint64) {
	b.Insert(PoolsRoot, KeyStorageFeePool, encodeU64(v), nil)
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Distribute drains S into the next 1 000 epoch pools starting at
// currentEpoch, following the fixed 50-year ratio table. All arithmetic is
// exact integer math: each epoch of year y receives
// floor(S*entry[y] / (feeTableSum*epochsPerYear)), and the remainder
// written back to S is the exact scaled residue of those subtractions,
// which is zero whenever any share spilled. Sub-share fractions lost to the
// per-epoch floor stay with no one; they are bounded below epochsPerYear
// credits per year. When S is too small for even the largest year ratio to
// yield a share, no operations are emitted and S keeps its value for a
// later tick; callers that end up applying an otherwise-empty batch will
// see ErrBatchIsEmpty from Store.Apply, which is the caller's signal to
// treat this as a no-op.
func (p *StorageFeeDistributionPool) Distribute(b *store.Batch, tx *store.Tx, pool *EpochPoolStore, currentEpoch types.Epoch) error {
	s, err := p.Get(tx)
	if err != nil {
		return err
	}
	if s == 0 {
		return nil
	}

	sBig := new(big.Int).SetUint64(s)
	denom := big.NewInt(epochShareDenominator)

	var shares [50]uint64
	spilled := false
	for year, entry := range feeDistributionTable {
		q := new(big.Int).Mul(sBig, big.NewInt(entry))
		q.Quo(q, denom)
		if !q.IsUint64() {
			return xerrors.ErrOverflow
		}
		shares[year] = q.Uint64()
		if shares[year] > 0 {
			spilled = true
		}
	}
	if !spilled {
		return nil
	}

	// The remainder is tracked scaled by epochShareDenominator so every
	// subtraction below is exact.
	remainderScaled := new(big.Int).Mul(sBig, denom)

	for year := range feeDistributionTable {
		epochShareScaled := new(big.Int).Mul(sBig, big.NewInt(feeDistributionTable[year]))

		start := uint32(currentEpoch) + uint32(epochsPerYear*year)
		for k := 0; k < epochsPerYear; k++ {
			idx := types.Epoch(start + uint32(k))

			cur, err := pool.GetStorageFees(tx, idx)
			if err != nil {
				return err
			}
			newVal := cur + shares[year]
			if newVal < cur {
				return xerrors.ErrOverflow
			}
			pool.UpdateStorageFees(b, idx, newVal)

			remainderScaled.Sub(remainderScaled, epochShareScaled)
		}
	}

	if remainderScaled.Sign() < 0 {
		return xerrors.ErrOverflow
	}
	remainder := remainderScaled.Quo(remainderScaled, denom)
	if !remainder.IsUint64() {
		return xerrors.ErrOverflow
	}
	p.Set(b, remainder.Uint64())
	return nil
}
