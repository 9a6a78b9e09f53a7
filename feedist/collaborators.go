package feedist

import (
	"encoding/binary"

	"github.com/meridianchain/statecore/flags"
	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// RewardShareDocument is a reward-share document as handed back by the
// external masternode-reward-shares query: a loosely typed property bag
// carrying raw document properties (payToId, percentage) rather than a
// typed struct. Validating the fields is this package's job, not the
// collaborator's.
type RewardShareDocument map[string]interface{}

// RewardShareSource is the external reward-share query collaborator:
// given a proposer id, return every reward-share document it owns under
// the masternode-reward-shares contract. Implementations must return a
// stable order across calls; the distributor consumes documents in exactly
// the order returned.
type RewardShareSource interface {
	SharesFor(tx *store.Tx, proposer types.Identifier) ([]RewardShareDocument, error)
}

// MapRewardShareSource is an in-memory RewardShareSource double for tests,
// returning documents in insertion order.
type MapRewardShareSource struct {
	byProposer map[types.Identifier][]RewardShareDocument
}

// NewMapRewardShareSource returns an empty MapRewardShareSource.
func NewMapRewardShareSource() *MapRewardShareSource {
	return &MapRewardShareSource{byProposer: make(map[types.Identifier][]RewardShareDocument)}
}

// Add appends a reward-share document for proposer, owned by payTo for
// percentageBP basis points (out of 10 000).
func (m *MapRewardShareSource) Add(proposer, payTo types.Identifier, percentageBP uint64) {
	m.byProposer[proposer] = append(m.byProposer[proposer], RewardShareDocument{
		"payToId":    payTo.Bytes(),
		"percentage": percentageBP,
	})
}

// SharesFor implements RewardShareSource.
func (m *MapRewardShareSource) SharesFor(_ *store.Tx, proposer types.Identifier) ([]RewardShareDocument, error) {
	return m.byProposer[proposer], nil
}

// parseRewardShareDocument extracts and validates payToId and percentage
// from a reward-share document: ErrMissingProperty for absent fields,
// ErrInvalidPropertyType for the wrong Go type underneath.
func parseRewardShareDocument(doc RewardShareDocument) (types.Identifier, uint64, error) {
	rawPayTo, ok := doc["payToId"]
	if !ok {
		return types.Identifier{}, 0, xerrors.ErrMissingProperty
	}
	var payToBytes []byte
	switch v := rawPayTo.(type) {
	case []byte:
		payToBytes = v
	case types.Identifier:
		payToBytes = v.Bytes()
	default:
		return types.Identifier{}, 0, xerrors.ErrInvalidPropertyType
	}
	payTo, err := types.IdentifierFromBytes(payToBytes)
	if err != nil {
		return types.Identifier{}, 0, xerrors.ErrInvalidPropertyType
	}

	rawPct, ok := doc["percentage"]
	if !ok {
		return types.Identifier{}, 0, xerrors.ErrMissingProperty
	}
	pct, err := toUint64Percentage(rawPct)
	if err != nil {
		return types.Identifier{}, 0, err
	}
	return payTo, pct, nil
}

func toUint64Percentage(raw interface{}) (uint64, error) {
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, xerrors.ErrInvalidPropertyType
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, xerrors.ErrInvalidPropertyType
		}
		return uint64(v), nil
	default:
		return 0, xerrors.ErrInvalidPropertyType
	}
}

// IdentityStore is the identity-balance side of the external state
// repository collaborator; the fee paths only ever increment balances.
// CreditBalance must surface a missing identity as
// xerrors.ErrPathKeyNotFound from its underlying fetch, unmodified, with
// no existence check beyond the read.
type IdentityStore interface {
	CreditBalance(b *store.Batch, tx *store.Tx, id types.Identifier, amount uint64) error
}

// identitiesPath is the /Identities root subtree.
var identitiesPath = store.PathFromStrings("Identities")

// KVIdentityStore is a store-backed IdentityStore. Balances are stored as
// the 8-byte big-endian credit count directly at /Identities/<id>. The fee
// path's only interest in the wider identity record is this balance field,
// so that is all the record shape carries; identity creation and every
// other identity field remain the external collaborator's concern.
type KVIdentityStore struct {
	st *store.Store
}

// NewKVIdentityStore wraps st.
func NewKVIdentityStore(st *store.Store) *KVIdentityStore {
	return &KVIdentityStore{st: st}
}

// CreditBalance implements IdentityStore.
func (k *KVIdentityStore) CreditBalance(b *store.Batch, tx *store.Tx, id types.Identifier, amount uint64) error {
	v, err := k.st.Get(tx, identitiesPath, id.Bytes())
	if err != nil {
		return err
	}
	if len(v) != 8 {
		return xerrors.ErrCorruptedItem
	}
	balance := binary.BigEndian.Uint64(v)
	newBalance := balance + amount
	if newBalance < balance {
		return xerrors.ErrOverflow
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, newBalance)
	b.Insert(identitiesPath, id.Bytes(), out, nil)
	return nil
}

// InitIdentity stages creation of an identity record with the given
// starting balance (zero for newly onboarded identities), flagged as owned
// by the identity itself and paid for in base, so the insert cost stream
// accounts the record's bytes plus its encoded flag. Identity creation
// belongs to the external collaborator; this exists so that tests and the
// CLI can seed fixtures without hand-encoding the record.
func InitIdentity(b *store.Batch, id types.Identifier, startingBalance uint64, base types.Epoch) {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, startingBalance)
	flag := flags.SingleEpochOwned(base, id)
	b.Insert(identitiesPath, id.Bytes(), out, flag.Serialize())
}

// GetBalance reads identity id's current balance.
func GetBalance(st *store.Store, tx *store.Tx, id types.Identifier) (uint64, error) {
	v, err := st.Get(tx, identitiesPath, id.Bytes())
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, xerrors.ErrCorruptedItem
	}
	return binary.BigEndian.Uint64(v), nil
}
