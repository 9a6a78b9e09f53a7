package abci

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meridianchain/statecore/config"
	"github.com/meridianchain/statecore/epoch"
	"github.com/meridianchain/statecore/feedist"
	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/pools"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// rootPath is the store root; the fixed top-level subtrees hang directly
// under it.
var rootPath = store.Path{}

var (
	rootKeyPools             = []byte("Pools")
	rootKeyIdentities        = []byte("Identities")
	rootKeyContractDocuments = []byte("ContractDocuments")
	rootKeyKeyHashes         = []byte("KeyHashes")
)

// blockExecutionContext is the in-memory state installed at block_begin and
// consumed at block_end. There is at most one active context per driver.
type blockExecutionContext struct {
	blockHeight   uint64
	blockTimeMs   uint64
	proposerID    types.Identifier
	epochInfo     epoch.Info
	correlationID uuid.UUID
}

// Driver is the ABCI-facing state machine. All three lifecycle calls take an
// optional transaction; the caller commits or rolls back at the block
// boundary. The driver owns the block execution context and enforces the
// Uninitialised -> Idle -> InBlock transitions.
type Driver struct {
	mu sync.Mutex

	st          *store.Store
	pool        *pools.EpochPoolStore
	storagePool *pools.StorageFeeDistributionPool
	distributor *feedist.Distributor
	params      config.Params
	log         *logrus.Entry

	blockCtx *blockExecutionContext
}

// NewDriver wires a Driver over st with the given collaborators. identities
// and shares are the external state-repository interfaces the fee
// distributor consults; params is fixed for the driver's lifetime.
func NewDriver(st *store.Store, identities feedist.IdentityStore, shares feedist.RewardShareSource, params config.Params, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	pool := pools.NewEpochPoolStore(st)
	return &Driver{
		st:          st,
		pool:        pool,
		storagePool: pools.NewStorageFeeDistributionPool(st),
		distributor: feedist.NewDistributor(pool, identities, shares, params.ProposersLimitPerCall, log),
		params:      params,
		log:         log,
	}
}

// InitChain creates the initial state skeleton: the fixed root subtrees, the
// storage-fee distribution pool at zero, and the pools subtree pre-populated
// with the full forward window of empty epoch pools. A second call fails
// with ErrAlreadyInitialised, observed as the first root key already
// existing.
func (d *Driver) InitChain(_ InitChainRequest, tx *store.Tx) (InitChainResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := store.NewBatch()

	existsFn := func(p store.Path, key []byte) (bool, error) {
		return d.st.Exists(tx, p, key)
	}
	if err := b.InsertIfNotExists(rootPath, rootKeyPools, nil, nil, existsFn); err != nil {
		if errors.Is(err, xerrors.ErrPathKeyExists) {
			return InitChainResponse{}, xerrors.ErrAlreadyInitialised
		}
		return InitChainResponse{}, err
	}
	b.InsertEmptyTree(rootPath, rootKeyIdentities, nil)
	b.InsertEmptyTree(rootPath, rootKeyContractDocuments, nil)
	b.InsertEmptyTree(rootPath, rootKeyKeyHashes, nil)

	d.storagePool.Set(b, 0)
	for i := 0; i < d.params.ForwardEpochWindow; i++ {
		d.pool.InitEmpty(b, types.Epoch(i))
	}

	if err := d.st.Apply(b, tx); err != nil {
		return InitChainResponse{}, xerrors.Wrap(err, "abci: applying init chain batch")
	}

	d.log.WithField("forward_window", d.params.ForwardEpochWindow).Info("abci: chain initialised")
	return InitChainResponse{}, nil
}

// BlockBegin persists (or reads) genesis time, computes the block's epoch
// info and installs the block execution context. Installing a second
// context before BlockEnd is a programming error.
func (d *Driver) BlockBegin(req BlockBeginRequest, tx *store.Tx) (BlockBeginResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.blockCtx != nil {
		return BlockBeginResponse{}, xerrors.Wrap(xerrors.ErrCorruptedCodeExecution, "abci: block execution context already installed")
	}

	var genesisTime uint64
	if req.BlockHeight == 1 {
		var err error
		genesisTime, err = d.initGenesisTime(req.BlockTimeMs, tx)
		if err != nil {
			return BlockBeginResponse{}, err
		}
	} else {
		var err error
		genesisTime, err = d.genesisTime(tx)
		if err != nil {
			return BlockBeginResponse{}, err
		}
	}

	info := epoch.Calculate(genesisTime, req.BlockTimeMs, req.PreviousBlockTimeMs, d.params.EpochDurationMS)

	d.blockCtx = &blockExecutionContext{
		blockHeight:   req.BlockHeight,
		blockTimeMs:   req.BlockTimeMs,
		proposerID:    req.ProposerID,
		epochInfo:     info,
		correlationID: uuid.New(),
	}

	d.log.WithFields(logrus.Fields{
		"height":       req.BlockHeight,
		"epoch":        info.CurrentEpochIndex,
		"epoch_change": info.IsEpochChange,
		"correlation":  d.blockCtx.correlationID,
	}).Debug("abci: block begin")

	return BlockBeginResponse{}, nil
}

// BlockEnd settles the closing block: on an epoch change it shifts the
// current epoch pool forward and drains the storage distribution pool, then
// it counts the block for its proposer, accumulates the block's fees and
// pays the oldest unpaid epoch. The composed batch is applied under tx and
// the block execution context is consumed.
func (d *Driver) BlockEnd(req BlockEndRequest, tx *store.Tx) (BlockEndResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx := d.blockCtx
	if ctx == nil {
		return BlockEndResponse{}, xerrors.Wrap(xerrors.ErrCorruptedCodeExecution, "abci: block execution context must be set in block begin")
	}

	current := ctx.epochInfo.CurrentEpochIndex

	if ctx.epochInfo.IsEpochChange {
		// The shift batch is applied first so the fee paths below read the
		// freshly initialised pots through the transaction overlay. On the
		// chain's very first block this is what seeds epoch zero's current
		// fields.
		shift := store.NewBatch()
		d.pool.InitEmpty(shift, current+types.Epoch(d.params.ForwardEpochWindow))
		d.pool.InitCurrent(shift, current, req.Fees.FeeMultiplier, ctx.blockHeight, ctx.blockTimeMs)
		if err := d.storagePool.Distribute(shift, tx, d.pool, current); err != nil {
			return BlockEndResponse{}, xerrors.Wrap(err, "abci: distributing storage fee pool")
		}
		if err := d.st.Apply(shift, tx); err != nil {
			return BlockEndResponse{}, xerrors.Wrap(err, "abci: applying epoch shift batch")
		}
	}

	b := store.NewBatch()

	if err := d.pool.IncrementProposerBlockCount(b, tx, current, ctx.proposerID); err != nil {
		return BlockEndResponse{}, err
	}

	if err := feedist.AccumulateBlockFees(b, tx, d.pool, d.storagePool, current, feedist.BlockFees{
		ProcessingFees: req.Fees.ProcessingFees,
		StorageFees:    req.Fees.StorageFees,
	}); err != nil {
		return BlockEndResponse{}, err
	}

	info, err := d.distributor.DistributeFromUnpaidPools(b, tx, current)
	if err != nil {
		return BlockEndResponse{}, err
	}

	if err := d.st.Apply(b, tx); err != nil {
		return BlockEndResponse{}, xerrors.Wrap(err, "abci: applying block end batch")
	}

	d.blockCtx = nil

	resp := BlockEndResponse{
		CurrentEpochIndex:    current,
		IsEpochChange:        ctx.epochInfo.IsEpochChange,
		MasternodesPaidCount: info.MasternodesPaidCount,
		PaidEpochIndex:       info.PaidEpochIndex,
	}

	entry := d.log.WithFields(logrus.Fields{
		"height":      ctx.blockHeight,
		"epoch":       current,
		"paid":        info.MasternodesPaidCount,
		"correlation": ctx.correlationID,
	})
	if info.PaidEpochIndex != nil {
		entry = entry.WithField("paid_epoch", *info.PaidEpochIndex)
	}
	entry.Debug("abci: block end")

	return resp, nil
}

// initGenesisTime persists the chain's genesis time from the first block's
// time. It requires init_chain to have run: the Pools root key must exist.
func (d *Driver) initGenesisTime(blockTimeMs uint64, tx *store.Tx) (uint64, error) {
	ok, err := d.st.Exists(tx, rootPath, rootKeyPools)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, xerrors.Wrap(xerrors.ErrPathNotFound, "abci: chain not initialised")
	}

	b := store.NewBatch()
	b.Insert(pools.PoolsRoot, pools.KeyGenesisTime, encodeU64(blockTimeMs), nil)
	if err := d.st.Apply(b, tx); err != nil {
		return 0, xerrors.Wrap(err, "abci: persisting genesis time")
	}
	return blockTimeMs, nil
}

func (d *Driver) genesisTime(tx *store.Tx) (uint64, error) {
	v, err := d.st.Get(tx, pools.PoolsRoot, pools.KeyGenesisTime)
	if err != nil {
		return 0, xerrors.Wrap(err, "abci: reading genesis time")
	}
	if len(v) != 8 {
		return 0, xerrors.ErrCorruptedItem
	}
	return binary.BigEndian.Uint64(v), nil
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
