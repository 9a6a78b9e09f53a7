// Package pools implements the per-epoch ledger (EpochPoolStore) and the
// global storage-fee distribution pool that spreads unsettled storage
// credits across a rolling 1 000-epoch forward window.
package pools

import (
	"encoding/binary"

	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// ProposerCount is one entry of an epoch's proposers subtree: how many
// blocks of that epoch a given proposer produced.
type ProposerCount struct {
	ID    types.Identifier
	Count uint64
}

// EpochPoolStore reads and writes the per-epoch ledger: start time, start
// block height, fee multiplier, processing and storage fee pots, and the
// proposer block-count subtree.
type EpochPoolStore struct {
	st *store.Store
}

// NewEpochPoolStore wraps st.
func NewEpochPoolStore(st *store.Store) *EpochPoolStore {
	return &EpochPoolStore{st: st}
}

// InitEmpty stages creation of epoch e's subtree with storage_fees = 0.
// Used to pre-populate the forward window; does not set start_*, the fee
// multiplier or the proposers subtree — an epoch becomes current via
// InitCurrent.
func (p *EpochPoolStore) InitEmpty(b *store.Batch, e types.Epoch) {
	b.InsertEmptyTree(PoolsRoot, epochBytes(e), nil)
	b.Insert(EpochPath(e), keyStorageFees, encodeU64(0), nil)
}

// InitCurrent stages the fields that make epoch e the active epoch:
// start_time, start_block_height, fee_multiplier, processing_fees = 0, and
// an empty proposers subtree.
func (p *EpochPoolStore) InitCurrent(b *store.Batch, e types.Epoch, multiplier, startBlockHeight, startTimeMs uint64) {
	path := EpochPath(e)
	b.Insert(path, keyStartTime, encodeU64(startTimeMs), nil)
	b.Insert(path, keyStartBlockHeight, encodeU64(startBlockHeight), nil)
	b.Insert(path, keyFeeMultiplier, encodeU64(multiplier), nil)
	b.Insert(path, keyProcessingFees, encodeU64(0), nil)
	b.InsertEmptyTree(path, keyProposers, nil)
}

func (p *EpochPoolStore) getU64(tx *store.Tx, path store.Path, key []byte) (uint64, error) {
	v, err := p.st.Get(tx, path, key)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, xerrors.ErrCorruptedItem
	}
	return binary.BigEndian.Uint64(v), nil
}

// GetStartTime returns epoch e's start_time_ms.
func (p *EpochPoolStore) GetStartTime(tx *store.Tx, e types.Epoch) (uint64, error) {
	return p.getU64(tx, EpochPath(e), keyStartTime)
}

// GetStartBlockHeight returns epoch e's start_block_height.
func (p *EpochPoolStore) GetStartBlockHeight(tx *store.Tx, e types.Epoch) (uint64, error) {
	return p.getU64(tx, EpochPath(e), keyStartBlockHeight)
}

// GetFeeMultiplier returns epoch e's fee_multiplier.
func (p *EpochPoolStore) GetFeeMultiplier(tx *store.Tx, e types.Epoch) (uint64, error) {
	return p.getU64(tx, EpochPath(e), keyFeeMultiplier)
}

// GetProcessingFees returns epoch e's accumulated processing fees.
func (p *EpochPoolStore) GetProcessingFees(tx *store.Tx, e types.Epoch) (uint64, error) {
	return p.getU64(tx, EpochPath(e), keyProcessingFees)
}

// GetStorageFees returns epoch e's accumulated storage fees.
func (p *EpochPoolStore) GetStorageFees(tx *store.Tx, e types.Epoch) (uint64, error) {
	return p.getU64(tx, EpochPath(e), keyStorageFees)
}

// UpdateProcessingFees replaces epoch e's processing fee pot.
func (p *EpochPoolStore) UpdateProcessingFees(b *store.Batch, e types.Epoch, v uint64) {
	b.Insert(EpochPath(e), keyProcessingFees, encodeU64(v), nil)
}

// UpdateStorageFees replaces epoch e's storage fee pot.
func (p *EpochPoolStore) UpdateStorageFees(b *store.Batch, e types.Epoch, v uint64) {
	b.Insert(EpochPath(e), keyStorageFees, encodeU64(v), nil)
}

// IncrementProposerBlockCount reads proposer's current block count under
// epoch e (treating a missing entry as zero, the one error normalisation
// the fee paths permit) and writes count + 1.
func (p *EpochPoolStore) IncrementProposerBlockCount(b *store.Batch, tx *store.Tx, e types.Epoch, proposer types.Identifier) error {
	path := ProposersPath(e)
	v, err := p.st.Get(tx, path, proposer.Bytes())
	var count uint64
	switch {
	case err == xerrors.ErrPathKeyNotFound:
		count = 0
	case err != nil:
		return err
	default:
		if len(v) != 8 {
			return xerrors.ErrCorruptedItem
		}
		count = binary.BigEndian.Uint64(v)
	}
	b.Insert(path, proposer.Bytes(), encodeU64(count+1), nil)
	return nil
}

// GetProposers returns up to limit proposer/block-count pairs from epoch
// e's proposers subtree, ordered lexicographically by proposer id. A limit
// of 0 returns every entry.
func (p *EpochPoolStore) GetProposers(tx *store.Tx, e types.Epoch, limit int) ([]ProposerCount, error) {
	entries, err := p.st.Iterate(tx, ProposersPath(e), limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProposerCount, len(entries))
	for i, en := range entries {
		id, err := types.IdentifierFromBytes(en.Key)
		if err != nil {
			return nil, xerrors.ErrCorruptedItem
		}
		if len(en.Value) != 8 {
			return nil, xerrors.ErrCorruptedItem
		}
		out[i] = ProposerCount{ID: id, Count: binary.BigEndian.Uint64(en.Value)}
	}
	return out, nil
}

// ProposersEmpty reports whether epoch e's proposers subtree has no
// entries. Used by the fee distributor's oldest-unpaid-epoch walk-back.
func (p *EpochPoolStore) ProposersEmpty(tx *store.Tx, e types.Epoch) (bool, error) {
	entries, err := p.st.Iterate(tx, ProposersPath(e), 1)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// DeleteProposers stages removal of the given proposer entries from epoch
// e's proposers subtree.
func (p *EpochPoolStore) DeleteProposers(b *store.Batch, e types.Epoch, ids []types.Identifier) {
	path := ProposersPath(e)
	for _, id := range ids {
		b.Delete(path, id.Bytes())
	}
}

// MarkAsPaid stages deletion of epoch e's proposers subtree marker,
// processing_fees and storage_fees keys. Callers must have already deleted
// every remaining proposer entry (DeleteProposers) before this is applied,
// so the subtree is empty by the time this mutation lands.
func (p *EpochPoolStore) MarkAsPaid(b *store.Batch, e types.Epoch) {
	path := EpochPath(e)
	b.Delete(path, keyProcessingFees)
	b.Delete(path, keyStorageFees)
	b.Delete(path, keyProposers)
}

// GetBlockCount returns the number of blocks epoch e produced:
// start_block_height(e+1) - start_block_height(e).
func (p *EpochPoolStore) GetBlockCount(tx *store.Tx, e types.Epoch) (uint64, error) {
	cur, err := p.GetStartBlockHeight(tx, e)
	if err != nil {
		return 0, err
	}
	next, err := p.GetStartBlockHeight(tx, e+1)
	if err != nil {
		return 0, err
	}
	if next < cur {
		return 0, xerrors.ErrCorruptedItem
	}
	return next - cur, nil
}
