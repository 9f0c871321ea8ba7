package mpi

import (
	"github.com/joshuafried/faasm/coord"
	"github.com/joshuafried/faasm/internal/abi"
)

// Collective calls are issued by every participating rank; root versus
// non-root role is carried purely in the arguments. In-place detection
// happens before buffer resolution so a single aliasing view reaches the
// engine, never two views that could diverge.

// Bcast broadcasts a buffer from the root. Senders and receivers both call
// it.
func (s *Session) Bcast(buffer uint32, count int32, datatypePtr uint32, root int32, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	dt, err := s.datatype(datatypePtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Bcast", "rank", s.rank, "root", root, "count", count)

	view, err := s.mem.View(buffer, uint32(count)*uint32(dt.Size))
	if err != nil {
		return err
	}
	return w.Broadcast(int(root), s.rank, view, dt, int(count))
}

// Barrier blocks until every rank in the communicator has arrived.
func (s *Session) Barrier(commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	s.log.Debugw("MPI_Barrier", "rank", s.rank)
	return w.Barrier(s.rank)
}

// Scatter distributes per-rank blocks of the root's send buffer. The root
// resolves a buffer covering every rank's block; other ranks only resolve
// their receive block.
func (s *Session) Scatter(sendBuf uint32, sendCount int32, sendTypePtr uint32,
	recvBuf uint32, recvCount int32, recvTypePtr uint32, root int32, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	sendType, err := s.datatype(sendTypePtr)
	if err != nil {
		return err
	}
	recvType, err := s.datatype(recvTypePtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Scatter", "rank", s.rank, "root", root,
		"sendCount", sendCount, "recvCount", recvCount)

	recvView, err := s.mem.View(recvBuf, uint32(recvCount)*uint32(recvType.Size))
	if err != nil {
		return err
	}
	var sendView []byte
	if s.rank == int(root) {
		sendView, err = s.mem.View(sendBuf, uint32(w.Size())*uint32(sendCount)*uint32(sendType.Size))
		if err != nil {
			return err
		}
	}
	return w.Scatter(int(root), s.rank, sendView, sendType, int(sendCount),
		recvView, recvType, int(recvCount))
}

// Gather pulls one block from every rank into the root's receive buffer.
func (s *Session) Gather(sendBuf uint32, sendCount int32, sendTypePtr uint32,
	recvBuf uint32, recvCount int32, recvTypePtr uint32, root int32, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	sendType, err := s.datatype(sendTypePtr)
	if err != nil {
		return err
	}
	recvType, err := s.datatype(recvTypePtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Gather", "rank", s.rank, "root", root,
		"sendCount", sendCount, "recvCount", recvCount)

	recvLen := uint32(recvCount) * uint32(recvType.Size)
	if s.rank == int(root) {
		recvLen *= uint32(w.Size())
	}
	recvView, err := s.mem.View(recvBuf, recvLen)
	if err != nil {
		return err
	}

	sendView := recvView
	if !abi.IsInPlace(sendBuf) {
		sendView, err = s.mem.View(sendBuf, uint32(sendCount)*uint32(sendType.Size))
		if err != nil {
			return err
		}
	} else {
		sendType, sendCount = recvType, recvCount
	}
	return w.Gather(s.rank, int(root), sendView, sendType, int(sendCount),
		recvView, recvType, int(recvCount))
}

// Allgather gathers one block from every rank into every rank's buffer.
func (s *Session) Allgather(sendBuf uint32, sendCount int32, sendTypePtr uint32,
	recvBuf uint32, recvCount int32, recvTypePtr uint32, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	sendType, err := s.datatype(sendTypePtr)
	if err != nil {
		return err
	}
	recvType, err := s.datatype(recvTypePtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Allgather", "rank", s.rank,
		"sendCount", sendCount, "recvCount", recvCount)

	recvView, err := s.mem.View(recvBuf, uint32(w.Size())*uint32(recvCount)*uint32(recvType.Size))
	if err != nil {
		return err
	}

	sendView := recvView
	if !abi.IsInPlace(sendBuf) {
		sendView, err = s.mem.View(sendBuf, uint32(sendCount)*uint32(sendType.Size))
		if err != nil {
			return err
		}
	} else {
		sendType, sendCount = recvType, recvCount
	}
	return w.AllGather(s.rank, sendView, sendType, int(sendCount),
		recvView, recvType, int(recvCount))
}

// Reduce folds every rank's contribution at the root with a predefined
// operator.
func (s *Session) Reduce(sendBuf, recvBuf uint32, count int32, datatypePtr, opPtr uint32,
	root int32, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	dt, err := s.datatype(datatypePtr)
	if err != nil {
		return err
	}
	op, err := abi.ReadOp(s.mem, opPtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Reduce", "rank", s.rank, "root", root, "count", count, "op", op)

	sendView, recvView, err := s.reduceBuffers(sendBuf, recvBuf, count, dt)
	if err != nil {
		return err
	}
	return w.Reduce(s.rank, int(root), sendView, recvView, dt, int(count), op)
}

// Allreduce reduces into every rank's buffer.
func (s *Session) Allreduce(sendBuf, recvBuf uint32, count int32, datatypePtr, opPtr, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	dt, err := s.datatype(datatypePtr)
	if err != nil {
		return err
	}
	op, err := abi.ReadOp(s.mem, opPtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Allreduce", "rank", s.rank, "count", count, "op", op)

	sendView, recvView, err := s.reduceBuffers(sendBuf, recvBuf, count, dt)
	if err != nil {
		return err
	}
	return w.AllReduce(s.rank, sendView, recvView, dt, int(count), op)
}

// Scan computes the inclusive prefix reduction over ranks 0..i.
func (s *Session) Scan(sendBuf, recvBuf uint32, count int32, datatypePtr, opPtr, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	dt, err := s.datatype(datatypePtr)
	if err != nil {
		return err
	}
	op, err := abi.ReadOp(s.mem, opPtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Scan", "rank", s.rank, "count", count, "op", op)

	sendView, recvView, err := s.reduceBuffers(sendBuf, recvBuf, count, dt)
	if err != nil {
		return err
	}
	return w.Scan(s.rank, sendView, recvView, dt, int(count), op)
}

// Alltoall exchanges block j of every rank's send buffer with rank j; both
// buffers cover one block per rank.
func (s *Session) Alltoall(sendBuf uint32, sendCount int32, sendTypePtr uint32,
	recvBuf uint32, recvCount int32, recvTypePtr uint32, commPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	sendType, err := s.datatype(sendTypePtr)
	if err != nil {
		return err
	}
	recvType, err := s.datatype(recvTypePtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Alltoall", "rank", s.rank,
		"sendCount", sendCount, "recvCount", recvCount)

	size := uint32(w.Size())
	sendView, err := s.mem.View(sendBuf, size*uint32(sendCount)*uint32(sendType.Size))
	if err != nil {
		return err
	}
	recvView, err := s.mem.View(recvBuf, size*uint32(recvCount)*uint32(recvType.Size))
	if err != nil {
		return err
	}
	return w.AllToAll(s.rank, sendView, sendType, int(sendCount),
		recvView, recvType, int(recvCount))
}

// reduceBuffers resolves the receive buffer, then either aliases it for an
// in-place send or resolves the send buffer separately. The order matters:
// detecting the sentinel first guarantees one view, never two.
func (s *Session) reduceBuffers(sendBuf, recvBuf uint32, count int32, dt coord.Datatype) (send, recv []byte, err error) {
	recv, err = s.mem.View(recvBuf, uint32(count)*uint32(dt.Size))
	if err != nil {
		return nil, nil, err
	}
	if abi.IsInPlace(sendBuf) {
		return recv, recv, nil
	}
	send, err = s.mem.View(sendBuf, uint32(count)*uint32(dt.Size))
	if err != nil {
		return nil, nil, err
	}
	return send, recv, nil
}
