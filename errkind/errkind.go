/*
Copyright (c) The ptpcore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errkind is the error taxonomy every fallible core operation
// returns against: a closed set of string-backed kinds (validation,
// correlation, state, external, fault) that callers can switch on or
// match with errors.Is without string comparison, the same way the
// teacher backs its backoff modes with typed string constants
// (ptp/sptp/client/config.go's backoffFixed/backoffLinear/...).
package errkind

import "fmt"

// Kind is a closed set of error categories: Validation and Correlation
// errors never escalate; External errors are only classified, as no
// code in this module counts External failures or turns them into
// Fault; Fault is terminal until re-initialization.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindCorrelation Kind = "correlation"
	KindState       Kind = "state"
	KindExternal    Kind = "external"
	KindFault       Kind = "fault"
)

// Error wraps an underlying cause with its Kind and a symbolic Code
// (e.g. "InvalidVersion", "SequenceMismatch"), so callers can recover
// both "what category" and "which specific condition" without parsing
// message text.
type Error struct {
	Kind  Kind
	Code  string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports equality by Kind+Code so errors.Is(err, errkind.New(...))
// matches regardless of the wrapped cause text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, code string, cause error) *Error {
	return &Error{Kind: kind, Code: code, cause: cause}
}

// Validation error codes, §7: never propagate upward, counted per port.
var (
	ErrInvalidVersion       = New(KindValidation, "InvalidVersion")
	ErrInvalidLength        = New(KindValidation, "InvalidLength")
	ErrInvalidTimestamp     = New(KindValidation, "InvalidTimestamp")
	ErrInvalidReservedField = New(KindValidation, "InvalidReservedField")
	ErrInvalidStepsRemoved  = New(KindValidation, "InvalidStepsRemoved")
	ErrInvalidPortNumber    = New(KindValidation, "InvalidPortNumber")
	ErrInvalidParameter     = New(KindValidation, "InvalidParameter")
)

// Correlation error codes, §7: silent discard, normal in multi-master
// or lossy environments; no code in this module returns or counts them.
var (
	ErrSequenceMismatch = New(KindCorrelation, "SequenceMismatch")
	ErrUnknownSource    = New(KindCorrelation, "UnknownSource")
	ErrDomainMismatch   = New(KindCorrelation, "DomainMismatch")
)

// State error codes, §7.
var (
	ErrState    = New(KindState, "StateError")
	ErrNotReady = New(KindState, "NotReady")
)

// External error codes, §7: returned by host callbacks. Consecutive
// failures are not counted and do not escalate to Fault.
var (
	ErrSendFailed          = New(KindExternal, "SendFailed")
	ErrTimestampUnavailable = New(KindExternal, "TimestampUnavailable")
	ErrClockAdjustFailed   = New(KindExternal, "ClockAdjustFailed")
)

// Fault wraps reason as a terminal KindFault error, carrying the
// human-readable cause through Unwrap/Error for logging.
func Fault(reason error) *Error {
	return Wrap(KindFault, "Fault", reason)
}
