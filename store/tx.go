package store

// shadowEntry is one entry of a transaction's read overlay.
type shadowEntry struct {
	deleted bool
	value   []byte
}

// Tx is a read-committed transaction handle: batches applied through it are
// staged in memory and only reach the base store on Commit. Reads through
// the same Tx see its own uncommitted writes. Nothing tracks how many Tx
// values are open at once.
type Tx struct {
	store  *Store
	shadow map[string]*shadowEntry
	order  []string // insertion order of shadow keys, walked by Store.Iterate when merging the overlay
	staged []Op
	done   bool
}

func newTx(s *Store) *Tx {
	return &Tx{store: s, shadow: make(map[string]*shadowEntry)}
}

// stage folds one op into the transaction's overlay. Later writes to the
// same (path, key) overwrite earlier ones, matching batch-apply ordering.
func (tx *Tx) stage(op Op) {
	sk := storageKey(op.Path, op.Key)
	switch op.Kind {
	case OpDelete:
		if _, ok := tx.shadow[sk]; !ok {
			tx.order = append(tx.order, sk)
		}
		tx.shadow[sk] = &shadowEntry{deleted: true}
	case OpInsert, OpInsertIfNotExists:
		if _, ok := tx.shadow[sk]; !ok {
			tx.order = append(tx.order, sk)
		}
		tx.shadow[sk] = &shadowEntry{value: op.Value}
	case OpInsertEmptyTree:
		if _, ok := tx.shadow[sk]; !ok {
			tx.order = append(tx.order, sk)
		}
		tx.shadow[sk] = &shadowEntry{value: []byte{}}
	case OpDeleteUpTreeWhileEmpty:
		if _, ok := tx.shadow[sk]; !ok {
			tx.order = append(tx.order, sk)
		}
		tx.shadow[sk] = &shadowEntry{deleted: true}
	}
	tx.staged = append(tx.staged, op)
}

func (tx *Tx) lookup(sk string) (*shadowEntry, bool) {
	e, ok := tx.shadow[sk]
	return e, ok
}

// Commit applies every staged operation to the base store as one WAL
// record and clears the overlay. Commit is a no-op if nothing was staged.
func (tx *Tx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if len(tx.staged) == 0 {
		return nil
	}
	return tx.store.applyOpsDirect(tx.staged)
}

// Rollback discards every staged operation without touching the base store.
func (tx *Tx) Rollback() {
	tx.done = true
	tx.shadow = nil
	tx.staged = nil
}
