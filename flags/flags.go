// Package flags implements the per-cell storage-flag codec: the metadata
// every stored value carries recording which epoch(s) and, optionally,
// which identity paid for its bytes. The four variants share a single
// struct tagged by Shape.
package flags

import (
	"encoding/binary"
	"sort"

	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/types"
)

// Shape identifies which of the four storage-flag variants a Flag holds,
// and doubles as its serialized type tag.
type Shape uint8

const (
	// ShapeSingleEpoch: cell entirely paid for in one epoch, no owner.
	ShapeSingleEpoch Shape = 0
	// ShapeMultiEpoch: cell grew across epochs, no owner.
	ShapeMultiEpoch Shape = 1
	// ShapeSingleEpochOwned: cell entirely paid for in one epoch by owner.
	ShapeSingleEpochOwned Shape = 2
	// ShapeMultiEpochOwned: cell grew across epochs, paid for by owner.
	ShapeMultiEpochOwned Shape = 3
)

// Flag is the decoded per-cell metadata. EpochMap is non-nil only for the
// Multi* shapes and never contains BaseEpoch itself. Owner is valid only
// when Owned is true.
type Flag struct {
	Shape     Shape
	BaseEpoch types.Epoch
	EpochMap  map[types.Epoch]uint32
	Owner     types.Identifier
	Owned     bool
}

// SingleEpoch builds an unowned flag for a cell wholly paid for in base.
func SingleEpoch(base types.Epoch) Flag {
	return Flag{Shape: ShapeSingleEpoch, BaseEpoch: base}
}

// MultiEpoch builds an unowned flag for a cell that grew after base.
// epochMap must not contain base.
func MultiEpoch(base types.Epoch, epochMap map[types.Epoch]uint32) Flag {
	return Flag{Shape: ShapeMultiEpoch, BaseEpoch: base, EpochMap: cloneMap(epochMap)}
}

// SingleEpochOwned builds an owned flag for a cell wholly paid for by owner
// in base.
func SingleEpochOwned(base types.Epoch, owner types.Identifier) Flag {
	return Flag{Shape: ShapeSingleEpochOwned, BaseEpoch: base, Owner: owner, Owned: true}
}

// MultiEpochOwned builds an owned flag for a cell that grew after base,
// paid for by owner.
func MultiEpochOwned(base types.Epoch, epochMap map[types.Epoch]uint32, owner types.Identifier) Flag {
	return Flag{Shape: ShapeMultiEpochOwned, BaseEpoch: base, EpochMap: cloneMap(epochMap), Owner: owner, Owned: true}
}

func cloneMap(m map[types.Epoch]uint32) map[types.Epoch]uint32 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[types.Epoch]uint32, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f Flag) isMulti() bool {
	return f.Shape == ShapeMultiEpoch || f.Shape == ShapeMultiEpochOwned
}

// EncodedSize returns the exact byte length Serialize will produce for f
// without encoding it: the fee meter uses it to account a flagged write's
// insert cost, and Serialize uses it to size its buffer.
func EncodedSize(f Flag) int {
	n := 3 // type byte plus base epoch
	if f.Owned {
		n += 32
	}
	if f.isMulti() {
		var varintBuf [binary.MaxVarintLen64]byte
		for _, v := range f.EpochMap {
			n += 2 + binary.PutUvarint(varintBuf[:], uint64(v))
		}
	}
	return n
}

// Serialize renders f as: type byte, optional 32-byte owner, 2-byte BE base
// epoch, then zero or more (epoch_u16_be, bytes_varint) pairs sorted by
// epoch so serialization is deterministic across hosts.
func (f Flag) Serialize() []byte {
	buf := make([]byte, 0, EncodedSize(f))
	buf = append(buf, byte(f.Shape))
	if f.Owned {
		buf = append(buf, f.Owner.Bytes()...)
	}
	var epochBuf [2]byte
	binary.BigEndian.PutUint16(epochBuf[:], uint16(f.BaseEpoch))
	buf = append(buf, epochBuf[:]...)
	if f.isMulti() {
		epochs := make([]types.Epoch, 0, len(f.EpochMap))
		for e := range f.EpochMap {
			epochs = append(epochs, e)
		}
		sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
		var varintBuf [binary.MaxVarintLen64]byte
		for _, e := range epochs {
			binary.BigEndian.PutUint16(epochBuf[:], uint16(e))
			buf = append(buf, epochBuf[:]...)
			n := binary.PutUvarint(varintBuf[:], uint64(f.EpochMap[e]))
			buf = append(buf, varintBuf[:n]...)
		}
	}
	return buf
}

// Deserialize parses data into a Flag. Empty input returns (nil, nil),
// meaning the cell carries no flag.
func Deserialize(data []byte) (*Flag, error) {
	if len(data) == 0 {
		return nil, nil
	}
	switch Shape(data[0]) {
	case ShapeSingleEpoch:
		return deserializeSingleEpoch(data, false)
	case ShapeMultiEpoch:
		return deserializeMultiEpoch(data, false)
	case ShapeSingleEpochOwned:
		return deserializeSingleEpoch(data, true)
	case ShapeMultiEpochOwned:
		return deserializeMultiEpoch(data, true)
	default:
		return nil, xerrors.ErrDeserializeUnknownStorageFlagsType
	}
}

func deserializeSingleEpoch(data []byte, owned bool) (*Flag, error) {
	want := 3
	if owned {
		want = 35
	}
	if len(data) != want {
		return nil, xerrors.ErrStorageFlagsWrongSize
	}
	offset := 1
	var owner types.Identifier
	if owned {
		var err error
		owner, err = types.IdentifierFromBytes(data[offset : offset+32])
		if err != nil {
			return nil, xerrors.ErrStorageFlagsWrongSize
		}
		offset += 32
	}
	base := types.Epoch(binary.BigEndian.Uint16(data[offset : offset+2]))
	if owned {
		return &Flag{Shape: ShapeSingleEpochOwned, BaseEpoch: base, Owner: owner, Owned: true}, nil
	}
	return &Flag{Shape: ShapeSingleEpoch, BaseEpoch: base}, nil
}

func deserializeMultiEpoch(data []byte, owned bool) (*Flag, error) {
	minLen := 6
	offset := 1
	var owner types.Identifier
	if owned {
		minLen = 38
		if len(data) < minLen {
			return nil, xerrors.ErrStorageFlagsWrongSize
		}
		var err error
		owner, err = types.IdentifierFromBytes(data[offset : offset+32])
		if err != nil {
			return nil, xerrors.ErrStorageFlagsWrongSize
		}
		offset += 32
	}
	if len(data) < minLen {
		return nil, xerrors.ErrStorageFlagsWrongSize
	}
	if offset+2 > len(data) {
		return nil, xerrors.ErrStorageFlagsWrongSize
	}
	base := types.Epoch(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	epochMap := make(map[types.Epoch]uint32)
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, xerrors.ErrStorageFlagsWrongSize
		}
		e := types.Epoch(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		v, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return nil, xerrors.ErrStorageFlagsWrongSize
		}
		offset += n
		epochMap[e] = uint32(v)
	}

	shape := ShapeMultiEpoch
	if owned {
		shape = ShapeMultiEpochOwned
	}
	return &Flag{Shape: shape, BaseEpoch: base, EpochMap: epochMap, Owner: owner, Owned: owned}, nil
}

// Combine merges b into a, the write path's flag-merge step. When the two
// share a base epoch, owners and epoch maps are merged (summing map
// values); matching a and b for this case is commutative. When a's base is
// older, addedBytes is credited to b's base epoch in the combined map and
// a's base is kept. An a with a newer base than b is always a
// write-path bug: the older base must arrive first.
func Combine(a, b Flag, addedBytes uint32) (Flag, error) {
	switch {
	case a.BaseEpoch == b.BaseEpoch:
		return combineSameBase(a, b)
	case a.BaseEpoch < b.BaseEpoch:
		return combineHigherBase(a, b, addedBytes)
	default:
		return Flag{}, xerrors.ErrMergingFlagsWithDifferentBaseEpoch
	}
}

func combineOwner(a, b Flag) (types.Identifier, bool, error) {
	switch {
	case a.Owned && b.Owned:
		if a.Owner != b.Owner {
			return types.Identifier{}, false, xerrors.ErrMergingFlagsFromDifferentOwners
		}
		return a.Owner, true, nil
	case a.Owned:
		return a.Owner, true, nil
	case b.Owned:
		return b.Owner, true, nil
	default:
		return types.Identifier{}, false, nil
	}
}

func combineSameBase(a, b Flag) (Flag, error) {
	owner, owned, err := combineOwner(a, b)
	if err != nil {
		return Flag{}, err
	}
	merged := mergeMaps(a.EpochMap, b.EpochMap)
	return buildCombined(a.BaseEpoch, merged, owner, owned), nil
}

func combineHigherBase(a, b Flag, addedBytes uint32) (Flag, error) {
	owner, owned, err := combineOwner(a, b)
	if err != nil {
		return Flag{}, err
	}
	merged := mergeMaps(a.EpochMap, b.EpochMap)
	if merged == nil {
		merged = make(map[types.Epoch]uint32)
	}
	merged[b.BaseEpoch] += addedBytes
	return buildCombined(a.BaseEpoch, merged, owner, owned), nil
}

func mergeMaps(a, b map[types.Epoch]uint32) map[types.Epoch]uint32 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := cloneMap(a)
	if out == nil {
		out = make(map[types.Epoch]uint32, len(b))
	}
	for e, v := range b {
		out[e] += v
	}
	return out
}

func buildCombined(base types.Epoch, epochMap map[types.Epoch]uint32, owner types.Identifier, owned bool) Flag {
	if len(epochMap) == 0 {
		if owned {
			return SingleEpochOwned(base, owner)
		}
		return SingleEpoch(base)
	}
	if owned {
		return MultiEpochOwned(base, epochMap, owner)
	}
	return MultiEpoch(base, epochMap)
}

// RemovalKind identifies the shape of a Removal.
type RemovalKind int

const (
	// BasicRemoval means all removed bytes are attributed to a single
	// implicit epoch (the cell was never multi-epoch).
	BasicRemoval RemovalKind = iota
	// SectionedRemoval means removed bytes are attributed per epoch, LIFO.
	SectionedRemoval
)

// Removal is the result of SplitRemovedBytes: either a flat byte count
// (BasicRemoval) or a per-epoch breakdown (SectionedRemoval), used to
// compute refunds to identities on deletion or shrinkage.
type Removal struct {
	Kind      RemovalKind
	Basic     uint32
	Sectioned map[types.Epoch]uint32
}

// SplitRemovedBytes attributes removed bytes of f to the epoch(s) that paid
// for them. SingleEpoch* flags attribute everything to the base epoch as a
// flat count. Multi* flags remove LIFO — newest epoch first — falling
// back to the base epoch for any remainder.
func SplitRemovedBytes(f Flag, removed uint32) Removal {
	if !f.isMulti() {
		return Removal{Kind: BasicRemoval, Basic: removed}
	}

	epochs := make([]types.Epoch, 0, len(f.EpochMap))
	for e := range f.EpochMap {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] > epochs[j] })

	sectioned := make(map[types.Epoch]uint32)
	remaining := removed
	for _, e := range epochs {
		if remaining == 0 {
			break
		}
		available := f.EpochMap[e]
		if available <= remaining {
			sectioned[e] = available
			remaining -= available
		} else {
			sectioned[e] = remaining
			remaining = 0
		}
	}
	if remaining > 0 {
		sectioned[f.BaseEpoch] += remaining
	}
	return Removal{Kind: SectionedRemoval, Sectioned: sectioned}
}
