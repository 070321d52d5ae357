// Package errors provides the error taxonomy for bespoke.
//
// Each error type includes a constructor, Error() method, and a type-checking
// helper using errors.As for proper error unwrapping.
//
// # Error Types Overview
//
//	┌──────────────────────┬──────────────┬──────────────────────────────────────┐
//	│ Error Type           │ Raised       │ Effect                               │
//	├──────────────────────┼──────────────┼──────────────────────────────────────┤
//	│ ValidationError      │ build time   │ rejected plan construct              │
//	│ RangeError           │ lock ops     │ converted to test-case Fatal         │
//	│ BusyError            │ checkout     │ converted to test-case Fatal         │
//	│ NotCheckedOutError   │ lock update  │ converted to test-case Fatal         │
//	│ FailureError         │ test step    │ siblings continue, case ends Fail    │
//	│ FatalError           │ any unit     │ resources released, aborts upward    │
//	│ NotSupportedError    │ VM driver    │ capability gap, caller decides       │
//	└──────────────────────┴──────────────┴──────────────────────────────────────┘
//
// The two-tier FailureError/FatalError split is the core control-flow
// decision of the execution engine: a failure is local to one unit and never
// stops its siblings, while a fatal error checks every resource back in and
// re-propagates through TestCase, TestPlan and TestRun.
//
// # Type Checking Pattern
//
// All error types provide Is* helper functions that use errors.As
// for proper error chain unwrapping:
//
//	func IsBusyError(err error) bool {
//	    var e *BusyError
//	    return errors.As(err, &e)
//	}
//
// This allows checking wrapped errors:
//
//	wrapped := fmt.Errorf("checkout failed: %w", errors.NewBusyError("VM-A"))
//	errors.IsBusyError(wrapped) // returns true
package errors
