// Package abi encodes the fixed binary contract shared with the guest-side
// MPI header: descriptor layouts, reserved handle values and the request
// slot format. Layouts are little-endian wasm32; a guest compiled against a
// mismatched header is undefined behaviour, not something checked here.
package abi

import (
	"github.com/joshuafried/faasm/coord"
	"github.com/joshuafried/faasm/internal/guestmem"
)

const (
	// CommWorld is the id of the only recognised communicator, covering the
	// full world.
	CommWorld int32 = 1
	// InfoNull is the id of the only recognised info descriptor.
	InfoNull int32 = 1
	// InPlacePtr is the reserved guest pointer value meaning "alias the
	// receive buffer". It is compared by value and never dereferenced.
	InPlacePtr uint32 = 2
	// CartMaxDims is the fixed dimensionality of the synthetic topology.
	CartMaxDims = 2
)

// Descriptor sizes in guest memory.
const (
	CommunicatorBytes = 4  // {int32 id}
	DatatypeBytes     = 8  // {int32 id; int32 size}
	OpBytes           = 4  // {int32 id}
	InfoBytes         = 4  // {int32 id}
	StatusBytes       = 12 // {int32 source; int32 error; int32 bytes}
	RequestBytes      = 4  // one machine word holding the request handle
)

// IsInPlace reports whether a guest buffer pointer is the in-place sentinel.
func IsInPlace(ptr uint32) bool {
	return ptr == InPlacePtr
}

// ReadCommunicator overlays a communicator descriptor and returns its id.
func ReadCommunicator(m *guestmem.Memory, ptr uint32) (int32, error) {
	id, err := m.ReadUint32(ptr)
	return int32(id), err
}

// ReadDatatype overlays a datatype descriptor. The descriptor is resolved
// fresh on every call; the guest may mutate its own memory between calls.
func ReadDatatype(m *guestmem.Memory, ptr uint32) (coord.Datatype, error) {
	id, err := m.ReadUint32(ptr)
	if err != nil {
		return coord.Datatype{}, err
	}
	size, err := m.ReadUint32(ptr + 4)
	if err != nil {
		return coord.Datatype{}, err
	}
	return coord.Datatype{ID: int32(id), Size: int32(size)}, nil
}

// ReadOp overlays an operator descriptor and returns its id.
func ReadOp(m *guestmem.Memory, ptr uint32) (coord.Op, error) {
	id, err := m.ReadUint32(ptr)
	return coord.Op(id), err
}

// ReadInfo overlays an info descriptor and returns its id.
func ReadInfo(m *guestmem.Memory, ptr uint32) (int32, error) {
	id, err := m.ReadUint32(ptr)
	return int32(id), err
}

// ReadStatus overlays a status record.
func ReadStatus(m *guestmem.Memory, ptr uint32) (coord.Status, error) {
	src, err := m.ReadUint32(ptr)
	if err != nil {
		return coord.Status{}, err
	}
	code, err := m.ReadUint32(ptr + 4)
	if err != nil {
		return coord.Status{}, err
	}
	n, err := m.ReadUint32(ptr + 8)
	if err != nil {
		return coord.Status{}, err
	}
	return coord.Status{Source: int32(src), Error: int32(code), Bytes: int32(n)}, nil
}

// WriteStatus populates a guest status record.
func WriteStatus(m *guestmem.Memory, ptr uint32, st coord.Status) error {
	if err := m.WriteUint32(ptr, uint32(st.Source)); err != nil {
		return err
	}
	if err := m.WriteUint32(ptr+4, uint32(st.Error)); err != nil {
		return err
	}
	return m.WriteUint32(ptr+8, uint32(st.Bytes))
}

// WriteRequest stores a request handle into the guest's one-word request
// slot. The guest's request object is exactly this integer.
func WriteRequest(m *guestmem.Memory, slot uint32, id coord.RequestID) error {
	return m.WriteUint32(slot, uint32(id))
}

// ReadRequest resolves the handle back out of the guest's request slot.
func ReadRequest(m *guestmem.Memory, slot uint32) (coord.RequestID, error) {
	v, err := m.ReadUint32(slot)
	return coord.RequestID(v), err
}
