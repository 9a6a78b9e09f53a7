package abci

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Message type tags used in replay streams.
const (
	MsgInitChain  = "init_chain"
	MsgBlockBegin = "block_begin"
	MsgBlockEnd   = "block_end"
)

// Envelope is one framed lifecycle message: a type tag plus the JSON-encoded
// request body. The framing is a 4-byte big-endian length followed by the
// JSON bytes — deterministic and trivially re-creatable from any host.
type Envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// WriteEnvelope frames env onto w.
func WriteEnvelope(w io.Writer, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("abci: encoding envelope: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadEnvelope reads one framed envelope from r. io.EOF is returned
// unwrapped at a clean stream end.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Envelope{}, io.EOF
		}
		return Envelope{}, fmt.Errorf("abci: reading envelope length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Envelope{}, fmt.Errorf("abci: reading envelope payload: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("abci: decoding envelope: %w", err)
	}
	return env, nil
}

// EncodeInitChain frames an init_chain request onto w.
func EncodeInitChain(w io.Writer, req InitChainRequest) error {
	return encodeAs(w, MsgInitChain, req)
}

// EncodeBlockBegin frames a block_begin request onto w.
func EncodeBlockBegin(w io.Writer, req BlockBeginRequest) error {
	return encodeAs(w, MsgBlockBegin, req)
}

// EncodeBlockEnd frames a block_end request onto w.
func EncodeBlockEnd(w io.Writer, req BlockEndRequest) error {
	return encodeAs(w, MsgBlockEnd, req)
}

func encodeAs(w io.Writer, msgType string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("abci: encoding %s body: %w", msgType, err)
	}
	return WriteEnvelope(w, Envelope{Type: msgType, Body: raw})
}
