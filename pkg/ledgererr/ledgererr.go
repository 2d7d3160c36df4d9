// Package ledgererr defines the error taxonomy shared by the balance-history
// pipeline. Every failure that crosses a package boundary is wrapped in an
// *Error so callers can branch on the code instead of matching message text.
package ledgererr

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code int

const (
	// CodeStorage is a transient event-store read failure, surfaced only
	// after the retry executor has exhausted its attempts.
	CodeStorage Code = iota + 1
	// CodeInvalidInput covers malformed cursors, mutually exclusive block
	// references and out-of-range limits.
	CodeInvalidInput
	// CodeLedgerInconsistency is a detected mismatch between delta-derived
	// and oracle-reported balances. Reported as retriable to clients, but it
	// practically indicates an upstream data defect.
	CodeLedgerInconsistency
	// CodeOracleNotFound means the account/contract state did not exist at
	// the queried height.
	CodeOracleNotFound
	// CodeInternal flags a store/query contract violation. Should be
	// unreachable.
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeStorage:
		return "STORAGE_ERROR"
	case CodeInvalidInput:
		return "INVALID_INPUT"
	case CodeLedgerInconsistency:
		return "LEDGER_INCONSISTENCY"
	case CodeOracleNotFound:
		return "ORACLE_NOT_FOUND"
	case CodeInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether the caller may reasonably retry the request.
// LedgerInconsistency is retriable by contract: the indexer may still be
// catching up on the most recent block.
func (e *Error) Retriable() bool {
	return e.Code == CodeStorage || e.Code == CodeLedgerInconsistency
}

// New builds a tagged error without a cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a tagged error around a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Retriable reports whether err carries a retriable code. Untagged errors
// are not retriable.
func Retriable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retriable()
}

// CodeOf extracts the taxonomy code from err, or CodeInternal when err was
// never tagged.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
