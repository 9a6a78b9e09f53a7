package store

import (
	"testing"

	"github.com/meridianchain/statecore/internal/xerrors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{
		DataDir:          t.TempDir(),
		WALFile:          "test.wal",
		SnapshotFile:     "test.snap",
		SnapshotInterval: 0,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApplyEmptyBatchReturnsErrBatchIsEmpty(t *testing.T) {
	s := openTestStore(t)
	if err := s.Apply(NewBatch(), nil); err != xerrors.ErrBatchIsEmpty {
		t.Fatalf("expected ErrBatchIsEmpty, got %v", err)
	}
}

func TestInsertAndGetWithoutTx(t *testing.T) {
	s := openTestStore(t)
	path := PathFromStrings("Pools")
	b := NewBatch()
	b.Insert(path, []byte("key"), []byte("value"), nil)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	v, err := s.Get(nil, path, []byte("key"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != "value" {
		t.Fatalf("expected value, got %q", v)
	}
}

func TestGetMissingKeyReturnsPathKeyNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(nil, PathFromStrings("Pools"), []byte("missing"))
	if err != xerrors.ErrPathKeyNotFound {
		t.Fatalf("expected ErrPathKeyNotFound, got %v", err)
	}
}

func TestTxReadsOwnUncommittedWrites(t *testing.T) {
	s := openTestStore(t)
	tx := s.Begin()
	path := PathFromStrings("Pools")
	b := NewBatch()
	b.Insert(path, []byte("k"), []byte("v1"), nil)
	if err := s.Apply(b, tx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	v, err := s.Get(tx, path, []byte("k"))
	if err != nil {
		t.Fatalf("Get within tx failed: %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}

	if _, err := s.Get(nil, path, []byte("k")); err != xerrors.ErrPathKeyNotFound {
		t.Fatalf("expected write to be invisible outside tx before commit, got %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	v2, err := s.Get(nil, path, []byte("k"))
	if err != nil || string(v2) != "v1" {
		t.Fatalf("expected v1 after commit, got %q, %v", v2, err)
	}
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	tx := s.Begin()
	path := PathFromStrings("Pools")
	b := NewBatch()
	b.Insert(path, []byte("k"), []byte("v1"), nil)
	if err := s.Apply(b, tx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	tx.Rollback()

	if _, err := s.Get(nil, path, []byte("k")); err != xerrors.ErrPathKeyNotFound {
		t.Fatalf("expected rollback to discard write, got %v", err)
	}
}

func TestIterateOrdersLexicographicallyAndHonoursLimit(t *testing.T) {
	s := openTestStore(t)
	path := PathFromStrings("Pools", "Proposers")
	b := NewBatch()
	b.Insert(path, []byte{0x03}, []byte("c"), nil)
	b.Insert(path, []byte{0x01}, []byte("a"), nil)
	b.Insert(path, []byte{0x02}, []byte("b"), nil)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	entries, err := s.Iterate(nil, path, 0)
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []byte{0x01, 0x02, 0x03}
	for i, e := range entries {
		if len(e.Key) != 1 || e.Key[0] != want[i] {
			t.Fatalf("entry %d: expected key %x, got %x", i, want[i], e.Key)
		}
	}

	limited, err := s.Iterate(nil, path, 2)
	if err != nil {
		t.Fatalf("Iterate with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 entries with limit, got %d", len(limited))
	}
}

func TestDeleteUpTreeWhileEmptyCollapsesAncestors(t *testing.T) {
	s := openTestStore(t)
	root := PathFromStrings("Docs")
	mid := root.Append([]byte("index"))

	b := NewBatch()
	b.InsertEmptyTree(root, []byte("index"), nil)
	b.Insert(mid, []byte("leaf"), []byte("v"), nil)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply setup failed: %v", err)
	}

	del := NewBatch()
	del.DeleteUpTreeWhileEmpty(mid, []byte("leaf"), 5)
	if err := s.Apply(del, nil); err != nil {
		t.Fatalf("Apply delete failed: %v", err)
	}

	if _, err := s.Get(nil, mid, []byte("leaf")); err != xerrors.ErrPathKeyNotFound {
		t.Fatalf("expected leaf gone, got %v", err)
	}
	if _, err := s.Get(nil, root, []byte("index")); err != xerrors.ErrPathKeyNotFound {
		t.Fatalf("expected now-empty ancestor marker removed, got %v", err)
	}
}

func TestWALReplayRecoversState(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(Options{DataDir: dir, WALFile: "wal", SnapshotFile: "snap", SnapshotInterval: 0})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	path := PathFromStrings("Pools")
	b := NewBatch()
	b.Insert(path, []byte("k"), []byte("v"), nil)
	if err := s1.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(Options{DataDir: dir, WALFile: "wal", SnapshotFile: "snap", SnapshotInterval: 0})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	v, err := s2.Get(nil, path, []byte("k"))
	if err != nil || string(v) != "v" {
		t.Fatalf("expected recovered value v, got %q, %v", v, err)
	}
}

func TestSnapshotIntervalArchivesWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{DataDir: dir, WALFile: "wal", SnapshotFile: "snap", SnapshotInterval: 1})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	path := PathFromStrings("Pools")
	b := NewBatch()
	b.Insert(path, []byte("k"), []byte("v"), nil)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	v, err := s.Get(nil, path, []byte("k"))
	if err != nil || string(v) != "v" {
		t.Fatalf("expected v after snapshot, got %q, %v", v, err)
	}
}

func TestInsertIfNotExistsRejectsTransientDuplicate(t *testing.T) {
	s := openTestStore(t)
	_ = s
	path := PathFromStrings("Pools")
	b := NewBatch()
	existsFn := func(Path, []byte) (bool, error) { return false, nil }
	if err := b.InsertIfNotExists(path, []byte("k"), []byte("v"), nil, existsFn); err != nil {
		t.Fatalf("first InsertIfNotExists failed: %v", err)
	}
	if err := b.InsertIfNotExists(path, []byte("k"), []byte("v2"), nil, existsFn); err != xerrors.ErrPathKeyExists {
		t.Fatalf("expected ErrPathKeyExists for transient duplicate, got %v", err)
	}
}
