package mpi

import "github.com/joshuafried/faasm/internal/abi"

// Wait resolves the request handle out of the guest's request slot and
// blocks until the coordination engine reports completion. There is no
// timeout; the only way to unblock a pending wait is world destruction.
// The handle is consumed: exactly one wait invalidates it.
func (s *Session) Wait(requestSlot, statusPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkMemory(); err != nil {
		return err
	}
	id, err := abi.ReadRequest(s.mem, requestSlot)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Wait", "rank", s.rank, "request", id)
	return w.Await(id)
}

// Waitall has a defined contract (block until every handle in the array
// completes) but is not implemented in this scope. It fails loudly rather
// than being approximated by sequential waits.
func (s *Session) Waitall(count int32, requestArray, statusArray uint32) error {
	return s.unsupported("MPI_Waitall")
}

// Waitany has a defined contract (return the first ready handle with its
// index) but is not implemented in this scope.
func (s *Session) Waitany(count int32, requestArray, indexPtr, statusPtr uint32) error {
	return s.unsupported("MPI_Waitany")
}

// RequestFree is explicitly unsupported; handles are invalidated by the
// one wait that consumes them.
func (s *Session) RequestFree(requestPtr uint32) error {
	return s.unsupported("MPI_Request_free")
}
