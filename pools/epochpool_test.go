package pools

import (
	"bytes"
	"errors"
	"testing"

	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

func openPoolTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{
		DataDir:      t.TempDir(),
		WALFile:      "test.wal",
		SnapshotFile: "test.snap",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProposer(i byte) types.Identifier {
	var id types.Identifier
	id[31] = i
	return id
}

func TestInitEmptySetsZeroStorageFees(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	b := store.NewBatch()
	pool.InitEmpty(b, 7)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	v, err := pool.GetStorageFees(nil, 7)
	if err != nil {
		t.Fatalf("GetStorageFees failed: %v", err)
	}
	if v != 0 {
		t.Fatalf("storage fees = %d, expected 0", v)
	}

	// An empty pool has no start fields yet.
	if _, err := pool.GetStartTime(nil, 7); !errors.Is(err, xerrors.ErrPathKeyNotFound) {
		t.Fatalf("expected ErrPathKeyNotFound for start time, got %v", err)
	}
}

func TestInitCurrentSetsAllScalars(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	b := store.NewBatch()
	pool.InitEmpty(b, 3)
	pool.InitCurrent(b, 3, 5, 42, 1_655_396_517_902)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	checks := []struct {
		name string
		get  func() (uint64, error)
		want uint64
	}{
		{"start_time", func() (uint64, error) { return pool.GetStartTime(nil, 3) }, 1_655_396_517_902},
		{"start_block_height", func() (uint64, error) { return pool.GetStartBlockHeight(nil, 3) }, 42},
		{"fee_multiplier", func() (uint64, error) { return pool.GetFeeMultiplier(nil, 3) }, 5},
		{"processing_fees", func() (uint64, error) { return pool.GetProcessingFees(nil, 3) }, 0},
		{"storage_fees", func() (uint64, error) { return pool.GetStorageFees(nil, 3) }, 0},
	}
	for _, c := range checks {
		v, err := c.get()
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if v != c.want {
			t.Fatalf("%s = %d, expected %d", c.name, v, c.want)
		}
	}
}

func TestGetScalarOnMissingPool(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	if _, err := pool.GetProcessingFees(nil, 99); !errors.Is(err, xerrors.ErrPathKeyNotFound) {
		t.Fatalf("expected ErrPathKeyNotFound, got %v", err)
	}
}

func TestGetScalarCorruptedWidth(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	b := store.NewBatch()
	b.Insert(EpochPath(2), keyProcessingFees, []byte{1, 2, 3}, nil)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if _, err := pool.GetProcessingFees(nil, 2); !errors.Is(err, xerrors.ErrCorruptedItem) {
		t.Fatalf("expected ErrCorruptedItem, got %v", err)
	}
}

func TestIncrementProposerBlockCount(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	p := testProposer(1)

	// First increment treats the absent entry as zero.
	b := store.NewBatch()
	if err := pool.IncrementProposerBlockCount(b, nil, 0, p); err != nil {
		t.Fatalf("first increment failed: %v", err)
	}
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	b = store.NewBatch()
	if err := pool.IncrementProposerBlockCount(b, nil, 0, p); err != nil {
		t.Fatalf("second increment failed: %v", err)
	}
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	proposers, err := pool.GetProposers(nil, 0, 0)
	if err != nil {
		t.Fatalf("GetProposers failed: %v", err)
	}
	if len(proposers) != 1 || proposers[0].Count != 2 {
		t.Fatalf("unexpected proposers %+v", proposers)
	}
}

func TestGetProposersOrderAndLimit(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	// Insert in reverse so the iteration order cannot be insertion order.
	b := store.NewBatch()
	for i := byte(5); i >= 1; i-- {
		if err := pool.IncrementProposerBlockCount(b, nil, 0, testProposer(i)); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	proposers, err := pool.GetProposers(nil, 0, 0)
	if err != nil {
		t.Fatalf("GetProposers failed: %v", err)
	}
	if len(proposers) != 5 {
		t.Fatalf("expected 5 proposers, got %d", len(proposers))
	}
	for i := 1; i < len(proposers); i++ {
		if bytes.Compare(proposers[i-1].ID.Bytes(), proposers[i].ID.Bytes()) >= 0 {
			t.Fatalf("proposers not in lexicographic order at %d", i)
		}
	}

	capped, err := pool.GetProposers(nil, 0, 3)
	if err != nil {
		t.Fatalf("GetProposers(limit 3) failed: %v", err)
	}
	if len(capped) != 3 {
		t.Fatalf("expected 3 proposers with limit, got %d", len(capped))
	}
	for i := range capped {
		if capped[i].ID != proposers[i].ID {
			t.Fatalf("capped iteration diverged at %d", i)
		}
	}
}

func TestDeleteProposersAndMarkAsPaid(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	b := store.NewBatch()
	pool.InitEmpty(b, 0)
	pool.InitCurrent(b, 0, 1, 1, 1000)
	pool.UpdateProcessingFees(b, 0, 123)
	pool.UpdateStorageFees(b, 0, 456)
	ids := []types.Identifier{testProposer(1), testProposer(2)}
	for _, id := range ids {
		b.Insert(ProposersPath(0), id.Bytes(), encodeU64(1), nil)
	}
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	empty, err := pool.ProposersEmpty(nil, 0)
	if err != nil {
		t.Fatalf("ProposersEmpty failed: %v", err)
	}
	if empty {
		t.Fatal("expected populated proposers subtree")
	}

	b = store.NewBatch()
	pool.DeleteProposers(b, 0, ids)
	pool.MarkAsPaid(b, 0)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	empty, err = pool.ProposersEmpty(nil, 0)
	if err != nil {
		t.Fatalf("ProposersEmpty failed: %v", err)
	}
	if !empty {
		t.Fatal("expected empty proposers subtree after payout")
	}
	if _, err := pool.GetProcessingFees(nil, 0); !errors.Is(err, xerrors.ErrPathKeyNotFound) {
		t.Fatalf("expected processing fees removed, got %v", err)
	}
	if _, err := pool.GetStorageFees(nil, 0); !errors.Is(err, xerrors.ErrPathKeyNotFound) {
		t.Fatalf("expected storage fees removed, got %v", err)
	}
	// Start fields survive mark-as-paid; they anchor block-count queries.
	if _, err := pool.GetStartBlockHeight(nil, 0); err != nil {
		t.Fatalf("start block height should survive mark-as-paid: %v", err)
	}
}

func TestGetBlockCount(t *testing.T) {
	s := openPoolTestStore(t)
	pool := NewEpochPoolStore(s)

	b := store.NewBatch()
	pool.InitEmpty(b, 0)
	pool.InitCurrent(b, 0, 1, 10, 1000)
	pool.InitEmpty(b, 1)
	pool.InitCurrent(b, 1, 1, 25, 2000)
	if err := s.Apply(b, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	count, err := pool.GetBlockCount(nil, 0)
	if err != nil {
		t.Fatalf("GetBlockCount failed: %v", err)
	}
	if count != 15 {
		t.Fatalf("block count = %d, expected 15", count)
	}
}
