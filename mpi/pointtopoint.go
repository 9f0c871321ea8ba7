package mpi

import (
	"fmt"

	"github.com/joshuafried/faasm/internal/abi"
)

// Send transmits a single point-to-point message. The buffer is marshalled
// as count elements of the declared datatype.
func (s *Session) Send(buffer uint32, count int32, datatypePtr uint32, dest, tag int32, commPtr uint32) error {
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
	s.log.Debugw("MPI_Send", "rank", s.rank, "dest", dest, "count", count, "tag", tag)

	view, err := s.mem.View(buffer, uint32(count)*uint32(dt.Size))
	if err != nil {
		return err
	}
	return w.Send(s.rank, int(dest), view, dt, int(count))
}

// Isend transmits asynchronously and writes the resulting request handle
// into the guest's one-word request slot.
func (s *Session) Isend(buffer uint32, count int32, datatypePtr uint32, dest, tag int32, commPtr, requestSlot uint32) error {
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
	s.log.Debugw("MPI_Isend", "rank", s.rank, "dest", dest, "count", count, "tag", tag)

	view, err := s.mem.View(buffer, uint32(count)*uint32(dt.Size))
	if err != nil {
		return err
	}
	id, err := w.ISend(s.rank, int(dest), view, dt, int(count))
	if err != nil {
		return err
	}
	return abi.WriteRequest(s.mem, requestSlot, id)
}

// Recv blocks for a single point-to-point message and populates the status
// record with the transferred byte count.
func (s *Session) Recv(buffer uint32, count int32, datatypePtr uint32, source, tag int32, commPtr, statusPtr uint32) error {
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
	s.log.Debugw("MPI_Recv", "rank", s.rank, "source", source, "count", count, "tag", tag)

	view, err := s.mem.View(buffer, uint32(count)*uint32(dt.Size))
	if err != nil {
		return err
	}
	var st Status
	if err := w.Recv(int(source), s.rank, view, dt, int(count), &st); err != nil {
		return err
	}
	return s.writeStatus(statusPtr, st)
}

// Irecv starts an asynchronous receive and writes its request handle into
// the guest's request slot. The guest must not touch the buffer until the
// matching wait completes.
func (s *Session) Irecv(buffer uint32, count int32, datatypePtr uint32, source, tag int32, commPtr, requestSlot uint32) error {
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
	s.log.Debugw("MPI_Irecv", "rank", s.rank, "source", source, "count", count, "tag", tag)

	view, err := s.mem.View(buffer, uint32(count)*uint32(dt.Size))
	if err != nil {
		return err
	}
	id, err := w.IRecv(int(source), s.rank, view, dt, int(count))
	if err != nil {
		return err
	}
	return abi.WriteRequest(s.mem, requestSlot, id)
}

// Sendrecv performs a paired exchange. The outgoing message is posted
// before the incoming one is awaited, so mutual exchanges cannot deadlock.
func (s *Session) Sendrecv(sendBuf uint32, sendCount int32, sendTypePtr uint32, dest, sendTag int32,
	recvBuf uint32, recvCount int32, recvTypePtr uint32, source, recvTag int32,
	commPtr, statusPtr uint32) error {
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
	s.log.Debugw("MPI_Sendrecv", "rank", s.rank, "dest", dest, "source", source,
		"sendCount", sendCount, "recvCount", recvCount)

	sendView, err := s.mem.View(sendBuf, uint32(sendCount)*uint32(sendType.Size))
	if err != nil {
		return err
	}
	recvView, err := s.mem.View(recvBuf, uint32(recvCount)*uint32(recvType.Size))
	if err != nil {
		return err
	}
	var st Status
	if err := w.SendRecv(sendView, int(sendCount), sendType, int(dest),
		recvView, int(recvCount), recvType, int(source), s.rank, &st); err != nil {
		return err
	}
	return s.writeStatus(statusPtr, st)
}

// Probe populates the status record for a pending message without
// consuming it, blocking until a match is observed.
func (s *Session) Probe(source, tag int32, commPtr, statusPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	s.log.Debugw("MPI_Probe", "rank", s.rank, "source", source, "tag", tag)

	var st Status
	if err := w.Probe(int(source), s.rank, &st); err != nil {
		return err
	}
	return s.writeStatus(statusPtr, st)
}

// GetCount converts a status record's transferred byte count into an
// element count. A transfer that does not divide evenly by the datatype
// size is reported as the incomplete-message condition, never rounded.
func (s *Session) GetCount(statusPtr, datatypePtr, countPtr uint32) error {
	if err := s.checkMemory(); err != nil {
		return err
	}
	st, err := abi.ReadStatus(s.mem, statusPtr)
	if err != nil {
		return err
	}
	dt, err := s.datatype(datatypePtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Get_count", "rank", s.rank, "bytes", st.Bytes, "typeSize", dt.Size)

	if dt.Size <= 0 {
		return fmt.Errorf("faasmpi: datatype with non-positive size %d", dt.Size)
	}
	if st.Bytes%dt.Size != 0 {
		return fmt.Errorf("%w: %d bytes with datatype size %d", ErrIncompleteMessage, st.Bytes, dt.Size)
	}
	return s.mem.WriteUint32(countPtr, uint32(st.Bytes/dt.Size))
}

// writeStatus populates the guest status record; a zero pointer means the
// guest asked to ignore it.
func (s *Session) writeStatus(statusPtr uint32, st Status) error {
	if statusPtr == 0 {
		return nil
	}
	return abi.WriteStatus(s.mem, statusPtr, st)
}
