// Package dcerrors provides error handling for DataConnect.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//   - Network portability across the tag bus's local/remote boundary
//
// Usage:
//
//	err := dcerrors.New("tag not registered")
//	if err := backplane.Publish(h, v); err != nil {
//	    return dcerrors.Wrapf(err, "publish handle %d", h)
//	}
//	if dcerrors.Is(err, dcerrors.ErrDisposed) {
//	    // handle disposed capability
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package dcerrors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSafeDetails    = crdb.WithSafeDetails
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapOnce    = crdb.UnwrapOnce
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Advanced features
var (
	Handled                 = crdb.Handled
	HandledWithMessage      = crdb.HandledWithMessage
	WithDomain              = crdb.WithDomain
	GetDomain               = crdb.GetDomain
	WithContextTags         = crdb.WithContextTags
	EncodeError             = crdb.EncodeError
	DecodeError             = crdb.DecodeError
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Assertions and panics
var (
	AssertionFailedf                = crdb.AssertionFailedf
	NewAssertionErrorWithWrappedErrf = crdb.NewAssertionErrorWithWrappedErrf
)

// Sentinel errors shared across the registry, backplane, transport and host
// packages. Compare against these with Is, never with ==, since wrapping
// adds stack frames and context.
var (
	// ErrNotRegistered is returned when a path or handle has no known identity.
	ErrNotRegistered = crdb.New("dataconnect: tag not registered")

	// ErrDisposed is returned when an operation targets a capability, plugin,
	// or subscription that has already been torn down.
	ErrDisposed = crdb.New("dataconnect: disposed")

	// ErrSlotOccupied is returned by rack placement when the target slot
	// already holds a plugin instance.
	ErrSlotOccupied = crdb.New("dataconnect: slot occupied")

	// ErrSlotNotFound is returned when a rack has no slot with the
	// requested id.
	ErrSlotNotFound = crdb.New("dataconnect: slot not found")

	// ErrRackNotFound is returned when a rack name is not known to the host.
	ErrRackNotFound = crdb.New("dataconnect: rack not found")

	// ErrConflict is returned when a registration or placement would
	// contradict an existing, non-identical registration.
	ErrConflict = crdb.New("dataconnect: conflicting registration")

	// ErrTransport is returned when a remote backplane call fails; for the
	// retried calls, only once their retries are exhausted.
	ErrTransport = crdb.New("dataconnect: transport failure")

	// ErrVersionIncompatible is returned when a plugin declares a host
	// version constraint the running host does not satisfy.
	ErrVersionIncompatible = crdb.New("dataconnect: incompatible host version")
)
