// Package types holds the small, dependency-free value types shared across
// the epoch, pool, distribution and storage packages.
package types

import (
	"encoding/hex"
	"fmt"
)

// Identifier is a 32-byte identity, proposer or pay-to id.
type Identifier [32]byte

// String renders the identifier as a 0x-prefixed hex string.
func (id Identifier) String() string {
	return id.Hex()
}

// Hex renders the identifier as a 0x-prefixed hex string.
func (id Identifier) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero identifier.
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

// Bytes returns a copy of the identifier's raw bytes.
func (id Identifier) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

// MarshalText renders the identifier as bare hex, so JSON-framed replay
// streams stay readable.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

// UnmarshalText parses bare or 0x-prefixed hex into the identifier.
func (id *Identifier) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("types: decoding identifier hex: %w", err)
	}
	parsed, err := IdentifierFromBytes(b)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IdentifierFromBytes builds an Identifier from a byte slice, which must be
// exactly 32 bytes long.
func IdentifierFromBytes(b []byte) (Identifier, error) {
	var id Identifier
	if len(b) != len(id) {
		return id, fmt.Errorf("types: identifier must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Epoch is a protocol epoch index. The wire format is a fixed 2-byte
// big-endian field, so the index is bounded to u16 the same way the
// original epoch pool is.
type Epoch uint16

// Credits is the integer unit all balances, fees and reward pots are
// denominated in.
type Credits uint64
