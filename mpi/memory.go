package mpi

import (
	"fmt"

	"github.com/joshuafried/faasm/internal/abi"
)

// AllocMem extends the guest's linear memory by a page-aligned amount large
// enough for the request and writes the resulting guest address through a
// second level of indirection: the argument is a pointer to a pointer.
func (s *Session) AllocMem(size int32, infoPtr, resPtrPtr uint32) error {
	if _, err := s.active(); err != nil {
		return err
	}
	if err := s.checkMemory(); err != nil {
		return err
	}
	info, err := abi.ReadInfo(s.mem, infoPtr)
	if err != nil {
		return err
	}
	if info != abi.InfoNull {
		return fmt.Errorf("%w: non-null info descriptor %d in MPI_Alloc_mem", ErrUnsupported, info)
	}
	s.log.Debugw("MPI_Alloc_mem", "rank", s.rank, "size", size)

	base, err := s.mem.Grow(uint32(size))
	if err != nil {
		return err
	}
	return s.mem.WriteUint32(resPtrPtr, base)
}

// FreeMem is structurally inert: regions handed out by AllocMem stay mapped
// for the life of the instance.
func (s *Session) FreeMem(basePtr uint32) error {
	s.log.Debugw("MPI_Free_mem", "rank", s.rank)
	return nil
}

// TypeSize writes the element size of a datatype descriptor.
func (s *Session) TypeSize(typePtr, resPtr uint32) error {
	dt, err := s.datatype(typePtr)
	if err != nil {
		return err
	}
	s.log.Debugw("MPI_Type_size", "rank", s.rank, "size", dt.Size)
	return s.mem.WriteUint32(resPtr, uint32(dt.Size))
}

// TypeContiguous is structurally inert: only contiguous datatypes exist in
// this layer, so registering one changes nothing.
func (s *Session) TypeContiguous(count int32, oldTypePtr, newTypePtrPtr uint32) error {
	s.log.Debugw("MPI_Type_contiguous", "rank", s.rank, "count", count)
	return nil
}

// TypeCommit is structurally inert for the same reason.
func (s *Session) TypeCommit(typePtrPtr uint32) error {
	s.log.Debugw("MPI_Type_commit", "rank", s.rank)
	return nil
}

// GetProcessorName writes the configured identity string of the invoking
// worker, NUL-terminated. A guest buffer shorter than the identifier is
// undefined behaviour; the guest must size generously.
func (s *Session) GetProcessorName(buf, bufLen uint32) error {
	if _, err := s.active(); err != nil {
		return err
	}
	if err := s.checkMemory(); err != nil {
		return err
	}
	s.log.Debugw("MPI_Get_processor_name", "rank", s.rank, "name", s.cfg.ProcessorName)
	return s.mem.WriteString(buf, s.cfg.ProcessorName)
}

// Wtime returns wall-clock seconds since world creation. The only call
// whose payload travels through the return value rather than an output
// pointer.
func (s *Session) Wtime() (float64, error) {
	w, err := s.active()
	if err != nil {
		return 0, err
	}
	s.log.Debugw("MPI_Wtime", "rank", s.rank)
	return w.WallTime(), nil
}
