// Package xerrors collects the sentinel errors raised across the store,
// epoch, pool, distribution and flag packages. Callers compare against these
// with errors.Is; Wrap attaches call-site context without losing that
// comparability.
package xerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrPathNotFound is returned when an expected subtree is missing.
	ErrPathNotFound = errors.New("xerrors: path not found")
	// ErrPathKeyNotFound is returned when an expected leaf key is missing.
	ErrPathKeyNotFound = errors.New("xerrors: path key not found")
	// ErrPathKeyExists is returned by InsertIfNotExists when the key is
	// already present; init_chain reports it as ErrAlreadyInitialised.
	ErrPathKeyExists = errors.New("xerrors: path key already exists")
	// ErrCorruptedItem is returned when stored bytes cannot decode to the
	// declared width or type.
	ErrCorruptedItem = errors.New("xerrors: corrupted item")
	// ErrCorruptedCodeExecution marks a programming error: the block
	// execution context was missing or double-installed.
	ErrCorruptedCodeExecution = errors.New("xerrors: corrupted code execution")
	// ErrBatchIsEmpty is returned by Store.Apply when the batch carries no
	// operations; callers must not treat this as success.
	ErrBatchIsEmpty = errors.New("xerrors: batch is empty")
	// ErrOverflow is returned whenever a u64/decimal conversion would lose
	// or misrepresent magnitude.
	ErrOverflow = errors.New("xerrors: overflow")
	// ErrMergingFlagsFromDifferentOwners is returned by flags.Combine when
	// two owned cells disagree on owner.
	ErrMergingFlagsFromDifferentOwners = errors.New("xerrors: merging storage flags from different owners")
	// ErrMergingFlagsWithDifferentBaseEpoch is returned by flags.Combine
	// when the older base epoch was not passed as the first argument.
	ErrMergingFlagsWithDifferentBaseEpoch = errors.New("xerrors: merging storage flags with different base epoch")
	// ErrStorageFlagsWrongSize is returned by flags.Deserialize on a
	// truncated or over-long byte string.
	ErrStorageFlagsWrongSize = errors.New("xerrors: storage flags wrong size")
	// ErrDeserializeUnknownStorageFlagsType is returned by flags.Deserialize
	// on an unrecognised type tag.
	ErrDeserializeUnknownStorageFlagsType = errors.New("xerrors: unknown storage flags type")
	// ErrStateRepositoryFetch wraps a failure returned by the external
	// reward-share document collaborator (RewardShareSource.SharesFor).
	ErrStateRepositoryFetch = errors.New("xerrors: state repository fetch error")
	// ErrMissingProperty is returned when a reward-share document is
	// missing pay_to_id or percentage.
	ErrMissingProperty = errors.New("xerrors: missing document property")
	// ErrInvalidPropertyType is returned when pay_to_id is not 32 bytes or
	// percentage is not an integer.
	ErrInvalidPropertyType = errors.New("xerrors: invalid document property type")
	// ErrAlreadyInitialised is returned by init_chain on a repeat call.
	ErrAlreadyInitialised = errors.New("xerrors: chain already initialised")
)

// Wrap adds call-site context to err while keeping it comparable via
// errors.Is/errors.As. It returns nil if err is nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
