package abci

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/meridianchain/statecore/store"
)

// Replay decodes a framed lifecycle stream from r and drives d with it.
// Each block runs under its own transaction, committed at block_end;
// init_chain runs under a transaction of its own. It returns the block_end
// responses in stream order. A malformed stream or any driver error aborts
// the replay with the in-flight transaction rolled back.
func Replay(r io.Reader, d *Driver, st *store.Store) ([]BlockEndResponse, error) {
	var responses []BlockEndResponse
	var tx *store.Tx

	abort := func(err error) ([]BlockEndResponse, error) {
		if tx != nil {
			tx.Rollback()
		}
		return nil, err
	}

	for {
		env, err := ReadEnvelope(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return abort(err)
		}

		switch env.Type {
		case MsgInitChain:
			initTx := st.Begin()
			if _, err := d.InitChain(InitChainRequest{}, initTx); err != nil {
				initTx.Rollback()
				return abort(err)
			}
			if err := initTx.Commit(); err != nil {
				return abort(err)
			}

		case MsgBlockBegin:
			var req BlockBeginRequest
			if err := json.Unmarshal(env.Body, &req); err != nil {
				return abort(fmt.Errorf("abci: decoding block_begin: %w", err))
			}
			tx = st.Begin()
			if _, err := d.BlockBegin(req, tx); err != nil {
				return abort(err)
			}

		case MsgBlockEnd:
			if tx == nil {
				return abort(fmt.Errorf("abci: block_end without a preceding block_begin"))
			}
			var req BlockEndRequest
			if err := json.Unmarshal(env.Body, &req); err != nil {
				return abort(fmt.Errorf("abci: decoding block_end: %w", err))
			}
			resp, err := d.BlockEnd(req, tx)
			if err != nil {
				return abort(err)
			}
			if err := tx.Commit(); err != nil {
				return abort(err)
			}
			tx = nil
			responses = append(responses, resp)

		default:
			return abort(fmt.Errorf("abci: unknown message type %q", env.Type))
		}
	}

	if tx != nil {
		return abort(fmt.Errorf("abci: stream ended inside an open block"))
	}
	return responses, nil
}
