package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrorCode classifies a header-batch rejection.
type ErrorCode string

const (
	ErrLinkageInvalid   ErrorCode = "HEADER_ERR_LINKAGE_INVALID"
	ErrPOWInvalid       ErrorCode = "HEADER_ERR_POW_INVALID"
	ErrTargetInvalid    ErrorCode = "HEADER_ERR_TARGET_INVALID"
	ErrCheckpointMismatch ErrorCode = "HEADER_ERR_CHECKPOINT_MISMATCH"
	ErrUnknownAnchor    ErrorCode = "HEADER_ERR_UNKNOWN_ANCHOR"
	ErrEmptyBatch       ErrorCode = "HEADER_ERR_EMPTY_BATCH"
	ErrLessWorkFork     ErrorCode = "HEADER_ERR_LESS_WORK_FORK"
	ErrBatchTooLarge    ErrorCode = "HEADER_ERR_BATCH_TOO_LARGE"
)

// ValidationError is the standard rejection shape for a header batch; the
// caller (peer actor / coordinator) inspects Code to decide disconnect-only
// vs. ban.
type ValidationError struct {
	Code ErrorCode
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func validationErr(code ErrorCode, msg string) error {
	return &ValidationError{Code: code, Msg: msg}
}

// IsBanWorthy reports whether err represents a protocol fault that should
// increase a peer's ban score, as opposed to a merely stale or uninteresting
// rejection.
func IsBanWorthy(err error) bool {
	if _, ok := err.(*CheckpointMismatchError); ok {
		return true
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		return false
	}
	switch ve.Code {
	case ErrPOWInvalid, ErrTargetInvalid, ErrCheckpointMismatch, ErrLinkageInvalid:
		return true
	default:
		return false
	}
}

// CheckpointMismatchError reports a chain whose header at a checkpointed
// height does not match the hard-coded checkpoint hash.
type CheckpointMismatchError struct {
	Height    int32
	Want, Got chainhash.Hash
}

func (e *CheckpointMismatchError) Error() string {
	return fmt.Sprintf("HEADER_ERR_CHECKPOINT_MISMATCH: height=%d want=%s got=%s", e.Height, e.Want, e.Got)
}
