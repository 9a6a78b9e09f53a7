// Package store implements the hierarchical, path-addressed key-value
// substrate the epoch, pool, distribution and flag packages mutate through
// batches: an in-memory map guarded by a RWMutex, backed by an append-only
// write-ahead log and periodic snapshots, with path-scoped keys,
// transactions and cost-tracked batches on top.
package store

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/meridianchain/statecore/internal/xerrors"
)

// Store is the single-writer, in-memory key-value substrate. All mutation
// happens through Batch/Apply so that every write is WAL-logged before it
// is visible to Get.
type Store struct {
	mu sync.RWMutex

	data map[string][]byte

	dataDir          string
	walPath          string
	snapshotPath     string
	walFile          *os.File
	snapshotInterval int
	applyCount       int

	log *logrus.Entry

	metrics *storeMetrics
}

// Options configures Open.
type Options struct {
	DataDir          string
	WALFile          string
	SnapshotFile     string
	SnapshotInterval int // apply() calls between snapshots; 0 disables snapshotting
	Logger           *logrus.Entry
}

// Open loads dataDir/SnapshotFile (if present), replays dataDir/WALFile on
// top of it, and returns a Store ready to accept batches. A fresh data
// directory yields an empty store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating data dir: %w", err)
	}
	s := &Store{
		data:             make(map[string][]byte),
		dataDir:          opts.DataDir,
		walPath:          filepath.Join(opts.DataDir, opts.WALFile),
		snapshotPath:     filepath.Join(opts.DataDir, opts.SnapshotFile),
		snapshotInterval: opts.SnapshotInterval,
		log:              opts.Logger,
		metrics:          newStoreMetrics(),
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("store: loading snapshot: %w", err)
	}
	if err := s.replayWAL(); err != nil {
		return nil, fmt.Errorf("store: replaying WAL: %w", err)
	}
	f, err := os.OpenFile(s.walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: opening WAL: %w", err)
	}
	s.walFile = f
	return s, nil
}

// Close flushes and releases the WAL file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.walFile == nil {
		return nil
	}
	err := s.walFile.Close()
	s.walFile = nil
	return err
}

// Begin starts a new transaction. Neither the store nor the abci.Driver
// tracks open transactions; the driver only refuses a second BlockBegin
// while a block context is installed.
func (s *Store) Begin() *Tx {
	return newTx(s)
}

// Get reads the value at (path, key). If tx is non-nil, the transaction's
// own staged writes shadow the base store.
func (s *Store) Get(tx *Tx, path Path, key []byte) ([]byte, error) {
	sk := storageKey(path, key)
	if tx != nil {
		if e, ok := tx.lookup(sk); ok {
			if e.deleted {
				return nil, xerrors.ErrPathKeyNotFound
			}
			return append([]byte(nil), e.value...), nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[sk]
	if !ok {
		return nil, xerrors.ErrPathKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Exists reports whether (path, key) has a value, consulting tx's overlay
// first when provided.
func (s *Store) Exists(tx *Tx, path Path, key []byte) (bool, error) {
	_, err := s.Get(tx, path, key)
	if err == nil {
		return true, nil
	}
	if err == xerrors.ErrPathKeyNotFound {
		return false, nil
	}
	return false, err
}

// Entry is one (key, value) pair returned by Iterate, with key holding only
// the trailing segment relative to the scanned path.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iterate returns entries stored directly under path, ordered
// lexicographically by trailing key, capped at limit (0 means unlimited).
// It merges tx's staged overlay with the base store when tx is non-nil.
func (s *Store) Iterate(tx *Tx, path Path, limit int) ([]Entry, error) {
	prefix := pathPrefix(path)

	s.mu.RLock()
	merged := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	s.mu.RUnlock()

	if tx != nil {
		for _, sk := range tx.order {
			if !strings.HasPrefix(sk, prefix) {
				continue
			}
			e := tx.shadow[sk]
			if e.deleted {
				delete(merged, sk)
				continue
			}
			merged[sk] = e.value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		trailing, ok := trailingSegment(k, prefix)
		if !ok {
			continue
		}
		out = append(out, Entry{Key: trailing, Value: merged[k]})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// trailingSegment extracts the first segment encoded after prefix, i.e. the
// direct child key under the scanned path.
func trailingSegment(encoded, prefix string) ([]byte, bool) {
	if !strings.HasPrefix(encoded, prefix) {
		return nil, false
	}
	rest := encoded[len(prefix):]
	if len(rest) < 4 {
		return nil, false
	}
	n := int(uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3]))
	if len(rest) != 4+n {
		return nil, false
	}
	return []byte(rest[4 : 4+n]), true
}

// Apply stages b against tx if tx is non-nil (deferring WAL/visibility to
// Tx.Commit), or applies it directly to the base store otherwise. An empty
// batch always returns ErrBatchIsEmpty.
func (s *Store) Apply(b *Batch, tx *Tx) error {
	if b == nil || b.IsEmpty() {
		return xerrors.ErrBatchIsEmpty
	}
	if tx != nil {
		for _, op := range b.ops {
			tx.stage(op)
		}
		return nil
	}
	return s.applyOpsDirect(b.ops)
}

func (s *Store) applyOpsDirect(ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		s.applyOpLocked(op)
	}
	if err := s.appendWALLocked(ops); err != nil {
		return fmt.Errorf("store: appending WAL: %w", err)
	}
	s.applyCount++
	s.metrics.batchesApplied.Inc()
	s.metrics.opsApplied.Add(float64(len(ops)))
	if s.snapshotInterval > 0 && s.applyCount%s.snapshotInterval == 0 {
		if err := s.snapshotLocked(); err != nil {
			s.log.WithError(err).Warn("store: periodic snapshot failed")
		}
	}
	return nil
}

func (s *Store) applyOpLocked(op Op) {
	switch op.Kind {
	case OpInsert, OpInsertIfNotExists:
		s.data[storageKey(op.Path, op.Key)] = append([]byte(nil), op.Value...)
	case OpInsertEmptyTree:
		s.data[storageKey(op.Path, op.Key)] = []byte{}
	case OpDelete:
		delete(s.data, storageKey(op.Path, op.Key))
	case OpDeleteUpTreeWhileEmpty:
		s.deleteUpTreeLocked(op.Path, op.Key, op.HeightCap)
	}
}

func (s *Store) deleteUpTreeLocked(path Path, key []byte, heightCap int) {
	delete(s.data, storageKey(path, key))
	cur := path
	for i := 0; i < heightCap && len(cur) > 0; i++ {
		parent := cur[:len(cur)-1]
		last := cur[len(cur)-1]
		childPrefix := pathPrefix(cur)
		n := s.countWithPrefixLocked(childPrefix)
		if _, marker := s.data[childPrefix]; marker {
			n-- // the subtree's own marker is not a child
		}
		if n > 0 {
			break
		}
		delete(s.data, storageKey(parent, last))
		cur = parent
	}
}

func (s *Store) countWithPrefixLocked(prefix string) int {
	n := 0
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// --- WAL / snapshot persistence ---

type rlpOp struct {
	Kind      uint8
	Path      [][]byte
	Key       []byte
	Value     []byte
	Flags     []byte
	HeightCap uint64
}

type walRecord struct {
	Ops []rlpOp
}

func toRLPOps(ops []Op) []rlpOp {
	out := make([]rlpOp, len(ops))
	for i, op := range ops {
		out[i] = rlpOp{
			Kind:      uint8(op.Kind),
			Path:      [][]byte(op.Path),
			Key:       op.Key,
			Value:     op.Value,
			Flags:     op.Flags,
			HeightCap: uint64(op.HeightCap),
		}
	}
	return out
}

func fromRLPOps(ops []rlpOp) []Op {
	out := make([]Op, len(ops))
	for i, op := range ops {
		out[i] = Op{
			Kind:      OpKind(op.Kind),
			Path:      Path(op.Path),
			Key:       op.Key,
			Value:     op.Value,
			Flags:     op.Flags,
			HeightCap: int(op.HeightCap),
		}
	}
	return out
}

func (s *Store) appendWALLocked(ops []Op) error {
	rec := walRecord{Ops: toRLPOps(ops)}
	return rlp.Encode(s.walFile, &rec)
}

func (s *Store) replayWAL() error {
	f, err := os.Open(s.walPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	stream := rlp.NewStream(f, 0)
	count := 0
	for {
		var rec walRecord
		if err := stream.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decoding WAL record %d: %w", count, err)
		}
		for _, op := range fromRLPOps(rec.Ops) {
			s.applyOpLocked(op)
		}
		count++
	}
	s.log.WithField("records", count).Info("store: replayed WAL")
	return nil
}

type snapshotEntry struct {
	Key   []byte
	Value []byte
}

type snapshotFile struct {
	Entries []snapshotEntry
}

func (s *Store) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var snap snapshotFile
	if err := rlp.Decode(f, &snap); err != nil {
		return err
	}
	for _, e := range snap.Entries {
		s.data[string(e.Key)] = e.Value
	}
	s.log.WithField("entries", len(snap.Entries)).Info("store: loaded snapshot")
	return nil
}

// snapshotLocked writes the current state to disk, then archives and
// truncates the WAL since its contents are now subsumed by the snapshot.
// Callers must hold s.mu.
func (s *Store) snapshotLocked() error {
	snap := snapshotFile{Entries: make([]snapshotEntry, 0, len(s.data))}
	for k, v := range s.data {
		snap.Entries = append(snap.Entries, snapshotEntry{Key: []byte(k), Value: v})
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := rlp.Encode(f, &snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}

	if err := s.archiveWALLocked(); err != nil {
		return err
	}
	s.metrics.snapshotsTaken.Inc()
	s.log.WithField("entries", len(snap.Entries)).Info("store: snapshot written")
	return nil
}

// archiveWALLocked gzips the current WAL into dataDir/archive and starts a
// fresh empty WAL file, since its contents are now covered by the snapshot
// just written. Callers must hold s.mu.
func (s *Store) archiveWALLocked() error {
	if err := s.walFile.Close(); err != nil {
		return err
	}

	archiveDir := filepath.Join(s.dataDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("wal-%d.gz", time.Now().UnixNano()))

	in, err := os.Open(s.walPath)
	if err != nil {
		return err
	}
	out, err := os.Create(archivePath)
	if err != nil {
		in.Close()
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		in.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := in.Close(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.walPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.walFile = f
	return nil
}
