package store

import (
	"encoding/binary"
)

// Path is an ordered sequence of byte-string segments locating a subtree in
// the hierarchical store, e.g. {"Pools", epochBytes, "Proposers"}.
type Path [][]byte

// Append returns a new Path with extra segments appended; the receiver is
// left unmodified.
func (p Path) Append(segments ...[]byte) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	out = append(out, segments...)
	return out
}

// PathFromStrings is a convenience constructor for path segments that are
// plain ASCII labels such as "Pools" or "Identities".
func PathFromStrings(segments ...string) Path {
	out := make(Path, len(segments))
	for i, s := range segments {
		out[i] = []byte(s)
	}
	return out
}

// storageKey is the flat, order-preserving encoding of a (path, key) pair
// used as the underlying map index. Each segment is stored as a 4-byte
// big-endian length prefix followed by its raw bytes, so that:
//   - lexicographic comparison of two storageKeys sharing the same path
//     matches lexicographic comparison of their trailing key, and
//   - a path's encoding is always a prefix of every key stored under it,
//     which is what Iterate and deleteUpTreeLocked rely on.
func storageKey(path Path, key []byte) string {
	return string(encodeSegments(path, key))
}

// pathPrefix is the encoding of path alone, used as a scan prefix.
func pathPrefix(path Path) string {
	return string(encodeSegments(path))
}

func encodeSegments(path Path, extra ...[]byte) []byte {
	total := 0
	for _, seg := range path {
		total += 4 + len(seg)
	}
	for _, seg := range extra {
		total += 4 + len(seg)
	}
	buf := make([]byte, 0, total)
	var lenBuf [4]byte
	write := func(seg []byte) {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(seg)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, seg...)
	}
	for _, seg := range path {
		write(seg)
	}
	for _, seg := range extra {
		write(seg)
	}
	return buf
}
