package custody

import (
	"errors"
	"fmt"
)

// Error is a coded custody failure. Codes are stable and safe to expose
// to callers; compare with errors.Is against the sentinels below.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Domain errors. Every one of them aborts the enclosing operation with no
// state change.
var (
	ErrInsufficientValue = &Error{Code: "FundMe__InsufficientValue", Message: "You need to spend more ETH!"}
	ErrNotOwner          = &Error{Code: "FundMe__NotOwner", Message: "caller is not the owner"}
	ErrOracleUnavailable = &Error{Code: "FundMe__OracleUnavailable", Message: "price oracle unavailable"}
	ErrTransferFailed    = &Error{Code: "FundMe__TransferFailed", Message: "transfer to owner failed"}
	ErrIndexOutOfRange   = &Error{Code: "FundMe__IndexOutOfRange", Message: "contributor index out of range"}
)

// Infrastructure errors.
var (
	ErrNotFound           = errors.New("custody: not found")
	ErrAlreadyExists      = errors.New("custody: already exists")
	ErrInvalidInput       = errors.New("custody: invalid input")
	ErrWithdrawalNotFound = errors.New("custody: withdrawal not found")
	ErrStoreNotReady      = errors.New("custody: store not ready")
	ErrStoreClosed        = errors.New("custody: store is closed")
	ErrNotStarted         = errors.New("custody: not started")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("custody: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound)
}

// IsRecoverable reports whether the caller can succeed by changing its
// own input: a larger amount, the owner identity, or a valid index.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientValue) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the same call may succeed later without
// changes. The core never retries on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOracleUnavailable) ||
		errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrStoreNotReady)
}
