package mpi

import "github.com/joshuafried/faasm/internal/abi"

// Topology calls synthesise a fixed two-dimensional grid from world size
// alone; no distinct topology state is ever retained.

// CartCreate allocates a fresh guest-memory block sized for one
// communicator descriptor, copies the origin descriptor's bytes into it and
// writes the new block's address through the output pointer. The requested
// dimensionality and periodicity are accepted but not stored.
func (s *Session) CartCreate(commOld uint32, ndims int32, dimsPtr, periodsPtr uint32,
	reorder int32, newCommPtrPtr uint32) error {
	if _, err := s.active(); err != nil {
		return err
	}
	if err := s.checkMemory(); err != nil {
		return err
	}
	s.log.Debugw("MPI_Cart_create", "rank", s.rank, "ndims", ndims)

	base, err := s.mem.Grow(abi.CommunicatorBytes)
	if err != nil {
		return err
	}
	id, err := s.mem.ReadUint32(commOld)
	if err != nil {
		return err
	}
	if err := s.mem.WriteUint32(base, id); err != nil {
		return err
	}
	return s.mem.WriteUint32(newCommPtrPtr, base)
}

// CartGet fills the caller's dimension, period and coordinate slots from
// the synthetic grid. A declared maximum dimensionality below two is a
// contract violation: the result slots cannot safely be under-filled.
func (s *Session) CartGet(commPtr uint32, maxDims int32, dimsPtr, periodsPtr, coordsPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkMemory(); err != nil {
		return err
	}
	if maxDims < abi.CartMaxDims {
		return &DimensionError{MaxDims: maxDims}
	}
	s.log.Debugw("MPI_Cart_get", "rank", s.rank, "maxDims", maxDims)

	dims, periods, coords, err := w.CartesianCoords(s.rank)
	if err != nil {
		return err
	}
	for i := 0; i < abi.CartMaxDims; i++ {
		off := uint32(i) * 4
		if err := s.mem.WriteUint32(dimsPtr+off, uint32(dims[i])); err != nil {
			return err
		}
		if err := s.mem.WriteUint32(periodsPtr+off, uint32(periods[i])); err != nil {
			return err
		}
		if err := s.mem.WriteUint32(coordsPtr+off, uint32(coords[i])); err != nil {
			return err
		}
	}
	return nil
}

// CartRank determines the rank at a cartesian location.
func (s *Session) CartRank(commPtr, coordsPtr, rankPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkMemory(); err != nil {
		return err
	}
	s.log.Debugw("MPI_Cart_rank", "rank", s.rank)

	coords := make([]int, abi.CartMaxDims)
	for i := range coords {
		v, err := s.mem.ReadUint32(coordsPtr + uint32(i)*4)
		if err != nil {
			return err
		}
		coords[i] = int(int32(v))
	}
	rank, err := w.RankFromCoords(coords)
	if err != nil {
		return err
	}
	return s.mem.WriteUint32(rankPtr, uint32(rank))
}

// CartShift writes the shifted source and destination ranks for a
// displacement along one grid direction.
func (s *Session) CartShift(commPtr uint32, direction, disp int32, sourcePtr, destPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkMemory(); err != nil {
		return err
	}
	s.log.Debugw("MPI_Cart_shift", "rank", s.rank, "direction", direction, "disp", disp)

	source, dest, err := w.ShiftCartesian(s.rank, int(direction), int(disp))
	if err != nil {
		return err
	}
	if err := s.mem.WriteUint32(sourcePtr, uint32(source)); err != nil {
		return err
	}
	return s.mem.WriteUint32(destPtr, uint32(dest))
}
