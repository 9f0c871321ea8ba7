package mpi

// Calls the translation layer recognizes but does not carry. Each returns a
// CallError wrapping ErrUnsupported so the binding layer can trap the
// instance with the offending call name in hand.

// CommDup duplicates a communicator.
func (s *Session) CommDup(commPtr, newCommPtrPtr uint32) error {
	return s.unsupported("MPI_Comm_dup")
}

// CommSplit partitions a communicator by color and key.
func (s *Session) CommSplit(commPtr uint32, color, key int32, newCommPtrPtr uint32) error {
	return s.unsupported("MPI_Comm_split")
}

// CommC2F converts a communicator handle to its Fortran representation.
func (s *Session) CommC2F(commPtr, resPtr uint32) error {
	return s.unsupported("MPI_Comm_c2f")
}

// CommF2C converts a Fortran communicator handle back.
func (s *Session) CommF2C(fortranComm int32, commPtrPtr uint32) error {
	return s.unsupported("MPI_Comm_f2c")
}

// Rsend is the ready-mode send.
func (s *Session) Rsend(buf uint32, count int32, typePtr uint32, dest, tag int32, commPtr uint32) error {
	return s.unsupported("MPI_Rsend")
}

// Allgatherv gathers variable-length contributions to all ranks.
func (s *Session) Allgatherv(sendBuf uint32, sendCount int32, sendTypePtr, recvBuf, recvCountsPtr, displsPtr, recvTypePtr, commPtr uint32) error {
	return s.unsupported("MPI_Allgatherv")
}

// ReduceScatter reduces then scatters blocks of the result.
func (s *Session) ReduceScatter(sendBuf, recvBuf, recvCountsPtr, typePtr, opPtr, commPtr uint32) error {
	return s.unsupported("MPI_Reduce_scatter")
}

// Alltoallv is the variable-length all-to-all exchange.
func (s *Session) Alltoallv(sendBuf, sendCountsPtr, sdisplsPtr, sendTypePtr, recvBuf, recvCountsPtr, rdisplsPtr, recvTypePtr, commPtr uint32) error {
	return s.unsupported("MPI_Alltoallv")
}

// OpCreate registers a user-defined reduction operator.
func (s *Session) OpCreate(fnPtr uint32, commute int32, opPtrPtr uint32) error {
	return s.unsupported("MPI_Op_create")
}

// OpFree releases a user-defined reduction operator.
func (s *Session) OpFree(opPtrPtr uint32) error {
	return s.unsupported("MPI_Op_free")
}

// WinCreate exposes a memory window for one-sided access.
func (s *Session) WinCreate(base uint32, size, dispUnit int32, infoPtr, commPtr, winPtrPtr uint32) error {
	return s.unsupported("MPI_Win_create")
}

// WinFence synchronizes one-sided access epochs.
func (s *Session) WinFence(assert int32, winPtr uint32) error {
	return s.unsupported("MPI_Win_fence")
}

// WinFree releases a memory window.
func (s *Session) WinFree(winPtrPtr uint32) error {
	return s.unsupported("MPI_Win_free")
}

// WinGetAttr queries a window attribute.
func (s *Session) WinGetAttr(winPtr uint32, key int32, valPtrPtr, flagPtr uint32) error {
	return s.unsupported("MPI_Win_get_attr")
}

// Get is the one-sided remote read.
func (s *Session) Get(origin uint32, originCount int32, originTypePtr uint32, targetRank, targetDisp, targetCount int32, targetTypePtr, winPtr uint32) error {
	return s.unsupported("MPI_Get")
}

// Put is the one-sided remote write.
func (s *Session) Put(origin uint32, originCount int32, originTypePtr uint32, targetRank, targetDisp, targetCount int32, targetTypePtr, winPtr uint32) error {
	return s.unsupported("MPI_Put")
}

// TypeFree releases a derived datatype.
func (s *Session) TypeFree(typePtrPtr uint32) error {
	return s.unsupported("MPI_Type_free")
}
