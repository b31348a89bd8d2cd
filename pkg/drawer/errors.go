package drawer

import (
	"errors"
	"fmt"
)

// Error families. Every error returned by Service matches exactly one of them via errors.Is.
var (
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrAuditWrite       = errors.New("audit write failed")
)

// Domain-level error values returned by the drawer service.
var (
	ErrActiveSessionExists = fmt.Errorf("%w: an active session already exists for this cashier; end the current shift before starting a new one", ErrConflict)
	ErrSessionClosed       = fmt.Errorf("%w: session is no longer active", ErrConflict)
	ErrVarianceRecorded    = fmt.Errorf("%w: variance already recorded for session", ErrConflict)
	ErrTransactionSettled  = fmt.Errorf("%w: transaction belongs to a closed shift and can no longer be changed", ErrConflict)
	ErrTransactionLocked   = fmt.Errorf("%w: system generated transactions cannot be changed", ErrConflict)

	ErrNoActiveSession     = fmt.Errorf("%w: no active session found; start a session first", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction not found", ErrNotFound)

	ErrInvalidCashierID     = fmt.Errorf("%w: invalid cashier id", ErrValidation)
	ErrInvalidTransactionID = fmt.Errorf("%w: invalid transaction id", ErrValidation)
	ErrInvalidAmount        = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidShiftDate     = fmt.Errorf("%w: invalid shift date", ErrValidation)
	ErrInvalidCategory      = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrInvalidDescription   = fmt.Errorf("%w: invalid description", ErrValidation)

	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// Unavailable marks a persistence failure as a store outage while keeping the driver error in the chain.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// AuditWriteError reports an audit entry that could not be persisted after the primary operation committed.
type AuditWriteError struct {
	Action   string
	RecordID string
	err      error
}

func (auditError AuditWriteError) Error() string {
	return fmt.Sprintf("%v: %s %s: %v", ErrAuditWrite, auditError.Action, auditError.RecordID, auditError.err)
}

// Unwrap exposes both the family sentinel and the sink error.
func (auditError AuditWriteError) Unwrap() []error {
	return []error{ErrAuditWrite, auditError.err}
}

// Kind returns the stable family name of err, or "internal" when none matches.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrAuditWrite):
		return "audit_write"
	default:
		return "internal"
	}
}
