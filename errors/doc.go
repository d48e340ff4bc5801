// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Kinds fall into three classes that callers branch on:
//
//	IsFatal   sequencing bugs: not_ready, already_set, missing exports/imports
//	IsTrap    guest faults: trap, abort, poisoned; re-instantiate before reuse
//	IsDecode  recoverable: out_of_bounds, invalid_data
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidData).
//		Field("transform").
//		Detail("call returned %d values", n).
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
