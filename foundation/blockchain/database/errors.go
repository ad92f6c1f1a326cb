package database

import (
	"fmt"
)

// BlockErrorKind identifies the block validation rule that failed.
type BlockErrorKind int

// Set of block validation failures.
const (
	HashMismatch BlockErrorKind = iota + 1
	DifficultyNotMet
	ParentMismatch
	IndexMismatch
	InvalidPayload
)

var blockErrorKinds = map[BlockErrorKind]string{
	HashMismatch:     "HashMismatch",
	DifficultyNotMet: "DifficultyNotMet",
	ParentMismatch:   "ParentMismatch",
	IndexMismatch:    "IndexMismatch",
	InvalidPayload:   "InvalidPayload",
}

// String implements the fmt.Stringer interface.
func (k BlockErrorKind) String() string {
	if s, exists := blockErrorKinds[k]; exists {
		return s
	}
	return "Unknown"
}

// BlockError is returned when a block fails validation.
type BlockError struct {
	Kind BlockErrorKind
	Err  error
}

func newBlockError(kind BlockErrorKind, format string, args ...any) *BlockError {
	return &BlockError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (be *BlockError) Error() string {
	if be.Err == nil {
		return fmt.Sprintf("block: %s", be.Kind)
	}
	return fmt.Sprintf("block: %s: %s", be.Kind, be.Err)
}

// Unwrap provides access to the underlying cause.
func (be *BlockError) Unwrap() error {
	return be.Err
}

// Is reports a match on kind so errors.Is works with the sentinel values.
func (be *BlockError) Is(target error) bool {
	t, ok := target.(*BlockError)
	if !ok {
		return false
	}
	return t.Kind == be.Kind
}

// Sentinel values for use with errors.Is.
var (
	ErrHashMismatch     = &BlockError{Kind: HashMismatch}
	ErrDifficultyNotMet = &BlockError{Kind: DifficultyNotMet}
	ErrParentMismatch   = &BlockError{Kind: ParentMismatch}
	ErrIndexMismatch    = &BlockError{Kind: IndexMismatch}
	ErrInvalidPayload   = &BlockError{Kind: InvalidPayload}
)

// =============================================================================

// TxErrorKind identifies the transaction rule that failed.
type TxErrorKind int

// Set of transaction failures.
const (
	BadSignature TxErrorKind = iota + 1
	MalformedFields
	DuplicateTransaction
)

var txErrorKinds = map[TxErrorKind]string{
	BadSignature:         "BadSignature",
	MalformedFields:      "MalformedFields",
	DuplicateTransaction: "DuplicateTransaction",
}

// String implements the fmt.Stringer interface.
func (k TxErrorKind) String() string {
	if s, exists := txErrorKinds[k]; exists {
		return s
	}
	return "Unknown"
}

// TxError is returned when a transaction is rejected.
type TxError struct {
	Kind TxErrorKind
	Err  error
}

// NewTxError constructs a transaction error of the specified kind.
func NewTxError(kind TxErrorKind, format string, args ...any) *TxError {
	return &TxError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (te *TxError) Error() string {
	if te.Err == nil {
		return fmt.Sprintf("tx: %s", te.Kind)
	}
	return fmt.Sprintf("tx: %s: %s", te.Kind, te.Err)
}

// Unwrap provides access to the underlying cause.
func (te *TxError) Unwrap() error {
	return te.Err
}

// Is reports a match on kind so errors.Is works with the sentinel values.
func (te *TxError) Is(target error) bool {
	t, ok := target.(*TxError)
	if !ok {
		return false
	}
	return t.Kind == te.Kind
}

// Sentinel values for use with errors.Is.
var (
	ErrBadSignature         = &TxError{Kind: BadSignature}
	ErrMalformedFields      = &TxError{Kind: MalformedFields}
	ErrDuplicateTransaction = &TxError{Kind: DuplicateTransaction}
)

// =============================================================================

// ForkErrorKind identifies why a fork could not be merged into the chain.
type ForkErrorKind int

// Set of fork merge failures.
const (
	NonContiguousSuffix ForkErrorKind = iota + 1
	ForkpointNotFound
)

// String implements the fmt.Stringer interface.
func (k ForkErrorKind) String() string {
	switch k {
	case NonContiguousSuffix:
		return "NonContiguousSuffix"
	case ForkpointNotFound:
		return "ForkpointNotFound"
	}
	return "Unknown"
}

// ForkError is returned when a suffix replacement is rejected.
type ForkError struct {
	Kind ForkErrorKind
	Err  error
}

// NewForkError constructs a fork error of the specified kind.
func NewForkError(kind ForkErrorKind, format string, args ...any) *ForkError {
	return &ForkError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (fe *ForkError) Error() string {
	if fe.Err == nil {
		return fmt.Sprintf("fork: %s", fe.Kind)
	}
	return fmt.Sprintf("fork: %s: %s", fe.Kind, fe.Err)
}

// Unwrap provides access to the underlying cause.
func (fe *ForkError) Unwrap() error {
	return fe.Err
}

// Is reports a match on kind so errors.Is works with the sentinel values.
func (fe *ForkError) Is(target error) bool {
	t, ok := target.(*ForkError)
	if !ok {
		return false
	}
	return t.Kind == fe.Kind
}

// Sentinel values for use with errors.Is.
var (
	ErrNonContiguousSuffix = &ForkError{Kind: NonContiguousSuffix}
	ErrForkpointNotFound   = &ForkError{Kind: ForkpointNotFound}
)

// =============================================================================

// SyncError is returned when the network failed to deliver missing blocks.
type SyncError struct {
	Hash    string
	Retries int
}

// Error implements the error interface.
func (se *SyncError) Error() string {
	return fmt.Sprintf("sync: UnresolvedOrphanTimeout: parent[%s] retries[%d]", se.Hash, se.Retries)
}

// Is reports a match against any SyncError.
func (se *SyncError) Is(target error) bool {
	_, ok := target.(*SyncError)
	return ok
}

// ErrUnresolvedOrphanTimeout is the sentinel for use with errors.Is.
var ErrUnresolvedOrphanTimeout = &SyncError{}
