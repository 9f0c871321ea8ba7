package mpi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported indicates a call in the explicitly unsupported set. It
	// is never degraded to a partial result; the binding layer turns it into
	// an instance trap.
	ErrUnsupported = errors.New("faasmpi: operation not supported")
	// ErrNoContext indicates a call issued outside the init/finalize
	// lifetime window.
	ErrNoContext = errors.New("faasmpi: no live execution context")
	// ErrIncompleteMessage indicates a transferred byte count that is not an
	// exact multiple of the datatype size. It is the one non-fatal condition:
	// the guest sees a distinguished result code, not a fault.
	ErrIncompleteMessage = errors.New("faasmpi: incomplete message")
	// ErrNoGuestMemory indicates the session has no instance memory bound.
	ErrNoGuestMemory = errors.New("faasmpi: no guest memory attached")
	// ErrAlreadyInitialised indicates a second init on a session whose
	// execution context is still live.
	ErrAlreadyInitialised = errors.New("faasmpi: execution context already initialised")
)

// CommError reports a communicator descriptor other than the single
// recognised full-world communicator.
type CommError struct {
	ID int32
}

func (e *CommError) Error() string {
	return fmt.Sprintf("faasmpi: unrecognised communicator id %d", e.ID)
}

// DimensionError reports a declared maximum dimensionality too small for the
// fixed two-dimensional topology: the caller's result slots cannot safely be
// under-filled.
type DimensionError struct {
	MaxDims int32
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("faasmpi: %d maximum dimensions below the fixed topology dimensionality 2", e.MaxDims)
}

// CallError attaches the failing call's name to an underlying error so a
// user-visible failure identifies the specific call.
type CallError struct {
	Call string
	Err  error
}

func (e *CallError) Error() string {
	return e.Call + ": " + e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}
