package errors

import (
	"errors"
	"fmt"
)

// ValidationError indicates a test plan construct is invalid (duplicate
// resource id, unknown install type, reference to an unregistered resource).
// It is only ever produced while a test case or plan is being built, never
// during execution.
type ValidationError struct {
	Name string
	Msg  string
}

func NewValidationError(name, format string, args ...any) *ValidationError {
	return &ValidationError{Name: name, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// IsValidationError checks if the error is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// RangeError indicates a lock timeout outside (0, MaxCheckoutTime].
type RangeError struct {
	Timeout int
}

func NewRangeError(timeout int) *RangeError {
	return &RangeError{Timeout: timeout}
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("timeout %d is out of range", e.Timeout)
}

func IsRangeError(err error) bool {
	var e *RangeError
	return errors.As(err, &e)
}

// BusyError indicates a checkout attempt on a system under test whose lock
// is held and has not expired.
type BusyError struct {
	Alias string
}

func NewBusyError(alias string) *BusyError {
	return &BusyError{Alias: alias}
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("system under test %q is in use", e.Alias)
}

func IsBusyError(err error) bool {
	var e *BusyError
	return errors.As(err, &e)
}

// NotCheckedOutError indicates a lock operation on a system under test that
// is not currently checked out.
type NotCheckedOutError struct {
	Alias string
}

func NewNotCheckedOutError(alias string) *NotCheckedOutError {
	return &NotCheckedOutError{Alias: alias}
}

func (e *NotCheckedOutError) Error() string {
	return fmt.Sprintf("system under test %q is not checked out", e.Alias)
}

func IsNotCheckedOutError(err error) bool {
	var e *NotCheckedOutError
	return errors.As(err, &e)
}

// FailureError indicates a recoverable, unit-level test failure: the action
// failed on the system under test but the machine and its environment are
// still usable. Siblings of the failed unit keep running and resources stay
// checked out.
type FailureError struct {
	Msg string
}

func NewFailure(format string, args ...any) *FailureError {
	return &FailureError{Msg: fmt.Sprintf(format, args...)}
}

func (e *FailureError) Error() string {
	return e.Msg
}

func IsFailure(err error) bool {
	var e *FailureError
	return errors.As(err, &e)
}

// FatalError indicates the environment is no longer trustworthy (machine
// unreachable, lock violated, install failed hard). A fatal error releases
// every resource held by the enclosing test case and aborts upward through
// all containers.
type FatalError struct {
	Msg string
}

func NewFatal(format string, args ...any) *FatalError {
	return &FatalError{Msg: fmt.Sprintf(format, args...)}
}

func (e *FatalError) Error() string {
	return e.Msg
}

func IsFatal(err error) bool {
	var e *FatalError
	return errors.As(err, &e)
}

// ResourceNotFoundError indicates a lookup for a stored record or named
// entity that does not exist.
type ResourceNotFoundError struct {
	Kind string
	ID   string
}

func NewResourceNotFoundError(kind, id string) *ResourceNotFoundError {
	return &ResourceNotFoundError{Kind: kind, ID: id}
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func IsResourceNotFoundError(err error) bool {
	var e *ResourceNotFoundError
	return errors.As(err, &e)
}

// NotSupportedError indicates a capability the underlying machine driver
// does not implement, such as destroying a statically provisioned machine.
type NotSupportedError struct {
	Op string
}

func NewNotSupportedError(op string) *NotSupportedError {
	return &NotSupportedError{Op: op}
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("operation %q is not supported", e.Op)
}

func IsNotSupportedError(err error) bool {
	var e *NotSupportedError
	return errors.As(err, &e)
}
