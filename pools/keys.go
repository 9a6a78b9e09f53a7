package pools

import (
	"encoding/binary"

	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// PoolsRoot is the /Pools fee-pools subtree path.
var PoolsRoot = store.PathFromStrings("Pools")

var (
	// KeyGenesisTime is /Pools/<KEY_GENESIS_TIME>.
	KeyGenesisTime = []byte("genesis_time")
	// KeyStorageFeePool is /Pools/<KEY_STORAGE_FEE_POOL>.
	KeyStorageFeePool = []byte("storage_fee_pool")

	keyStartTime        = []byte("start_time")
	keyStartBlockHeight = []byte("start_block_height")
	keyFeeMultiplier    = []byte("fee_multiplier")
	keyProcessingFees   = []byte("processing_fees")
	keyStorageFees      = []byte("storage_fees")
	keyProposers        = []byte("proposers")
)

// epochBytes renders an epoch index as the fixed 2-byte big-endian segment
// used in every epoch-scoped path, so lexicographic path order matches
// numeric epoch order.
func epochBytes(e types.Epoch) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(e))
	return b
}

// EpochPath is /Pools/<epoch_u16_BE>, the subtree for one epoch pool.
func EpochPath(e types.Epoch) store.Path {
	return PoolsRoot.Append(epochBytes(e))
}

// ProposersPath is /Pools/<epoch_u16_BE>/<KEY_PROPOSERS>, the proposers
// subtree for one epoch.
func ProposersPath(e types.Epoch) store.Path {
	return EpochPath(e).Append(keyProposers)
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
