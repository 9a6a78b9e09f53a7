package store

import "github.com/meridianchain/statecore/internal/xerrors"

// OpKind identifies the shape of a single batched operation.
type OpKind byte

const (
	// OpInsert unconditionally writes (path, key) = value.
	OpInsert OpKind = iota
	// OpDelete removes (path, key).
	OpDelete
	// OpInsertEmptyTree creates an empty subtree marker at (path, key).
	OpInsertEmptyTree
	// OpInsertIfNotExists writes (path, key) = value only if absent,
	// checking the batch's own transient inserts first.
	OpInsertIfNotExists
	// OpDeleteUpTreeWhileEmpty deletes a leaf and walks up deleting any
	// now-empty ancestor subtree markers, capped at HeightCap levels.
	OpDeleteUpTreeWhileEmpty
)

// Op is one entry of a Batch.
type Op struct {
	Kind      OpKind
	Path      Path
	Key       []byte
	Value     []byte
	Flags     []byte // serialized storage flag, optional
	HeightCap int     // only meaningful for OpDeleteUpTreeWhileEmpty
}

// Batch is an ordered collection of store mutations applied atomically by
// Store.Apply. It also accumulates the two cost streams the fee meter
// consumes: bytes written (insert cost) and bytes read (query cost).
type Batch struct {
	ops         []Op
	transientOK map[string]struct{} // paths/keys inserted earlier in this batch
	insertCost  int64
	queryCost   int64
}

// NewBatch returns an empty batch ready for staging operations.
func NewBatch() *Batch {
	return &Batch{transientOK: make(map[string]struct{})}
}

// IsEmpty reports whether the batch carries no operations.
func (b *Batch) IsEmpty() bool {
	return len(b.ops) == 0
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Insert stages an unconditional write.
func (b *Batch) Insert(path Path, key, value, flags []byte) {
	b.ops = append(b.ops, Op{Kind: OpInsert, Path: path, Key: append([]byte(nil), key...), Value: append([]byte(nil), value...), Flags: flags})
	b.transientOK[storageKey(path, key)] = struct{}{}
	b.insertCost += int64(len(value) + len(flags))
}

// Delete stages a removal of (path, key).
func (b *Batch) Delete(path Path, key []byte) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Path: path, Key: append([]byte(nil), key...)})
	delete(b.transientOK, storageKey(path, key))
}

// InsertEmptyTree stages creation of an empty subtree marker.
func (b *Batch) InsertEmptyTree(path Path, key, flags []byte) {
	b.ops = append(b.ops, Op{Kind: OpInsertEmptyTree, Path: path, Key: append([]byte(nil), key...), Flags: flags})
	b.transientOK[storageKey(path, key)] = struct{}{}
}

// InsertIfNotExists stages a conditional write. existsFn is consulted for
// keys not already staged as a transient insert earlier in this same batch,
// letting idempotent checks succeed without a round trip to the store.
func (b *Batch) InsertIfNotExists(path Path, key, value, flags []byte, existsFn func(Path, []byte) (bool, error)) error {
	sk := storageKey(path, key)
	if _, ok := b.transientOK[sk]; ok {
		return xerrors.ErrPathKeyExists
	}
	exists, err := existsFn(path, key)
	if err != nil {
		return err
	}
	if exists {
		return xerrors.ErrPathKeyExists
	}
	b.Insert(path, key, value, flags)
	return nil
}

// DeleteUpTreeWhileEmpty stages deletion of a leaf and, after the batch is
// applied, any now-empty ancestor subtree markers up to heightCap levels.
func (b *Batch) DeleteUpTreeWhileEmpty(path Path, key []byte, heightCap int) {
	b.ops = append(b.ops, Op{Kind: OpDeleteUpTreeWhileEmpty, Path: path, Key: append([]byte(nil), key...), HeightCap: heightCap})
	delete(b.transientOK, storageKey(path, key))
}

// RecordQuery accounts n bytes of read cost against the batch's query cost
// stream. Callers invoke this after a Store.Get/Exists that informed a
// decision folded into this batch.
func (b *Batch) RecordQuery(n int) {
	b.queryCost += int64(n)
}

// InsertCost returns the accumulated write-cost stream.
func (b *Batch) InsertCost() int64 {
	return b.insertCost
}

// QueryCost returns the accumulated read-cost stream.
func (b *Batch) QueryCost() int64 {
	return b.queryCost
}

// Merge appends other's operations onto b in order, as if they had been
// staged directly against b. Cost streams are summed.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	b.ops = append(b.ops, other.ops...)
	for k := range other.transientOK {
		b.transientOK[k] = struct{}{}
	}
	b.insertCost += other.insertCost
	b.queryCost += other.queryCost
}
