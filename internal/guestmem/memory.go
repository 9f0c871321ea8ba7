// Package guestmem provides bounds-checked access to a sandboxed instance's
// linear memory. Every guest pointer crossing the host boundary is resolved
// here; no caller above this package touches guest memory directly.
package guestmem

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// PageSize is the wasm linear memory page size in bytes.
const PageSize = 65536

// OutOfRangeError reports a guest pointer/length pair that falls outside the
// instance's currently mapped memory.
type OutOfRangeError struct {
	Ptr    uint32
	Length uint32
	Size   uint32
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("guest range [%#x, %#x) outside mapped memory (%d bytes)",
		e.Ptr, uint64(e.Ptr)+uint64(e.Length), e.Size)
}

// Memory wraps one instance's linear memory. Views handed out by it are
// borrowed, non-copying windows over guest memory: they are only valid for
// the duration of the host call that resolved them, and concurrent guest
// mutation is a guest-level hazard this layer does not serialise against.
type Memory struct {
	mem api.Memory
}

// Wrap adapts the sandbox runtime's memory handle.
func Wrap(mem api.Memory) *Memory {
	return &Memory{mem: mem}
}

// Size reports the current mapped size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// View resolves a guest pointer and length into a mutable byte window over
// guest memory. The window aliases guest memory directly; writes through it
// are visible to the guest.
func (m *Memory) View(ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, &OutOfRangeError{Ptr: ptr, Length: length, Size: m.mem.Size()}
	}
	return buf, nil
}

// ReadUint32 reads one little-endian word at ptr.
func (m *Memory) ReadUint32(ptr uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(ptr)
	if !ok {
		return 0, &OutOfRangeError{Ptr: ptr, Length: 4, Size: m.mem.Size()}
	}
	return v, nil
}

// WriteUint32 writes one little-endian word at ptr.
func (m *Memory) WriteUint32(ptr uint32, v uint32) error {
	if !m.mem.WriteUint32Le(ptr, v) {
		return &OutOfRangeError{Ptr: ptr, Length: 4, Size: m.mem.Size()}
	}
	return nil
}

// WriteString writes s followed by a NUL terminator at ptr.
func (m *Memory) WriteString(ptr uint32, s string) error {
	if !m.mem.WriteString(ptr, s) || !m.mem.WriteByte(ptr+uint32(len(s)), 0) {
		return &OutOfRangeError{Ptr: ptr, Length: uint32(len(s)) + 1, Size: m.mem.Size()}
	}
	return nil
}

// Grow extends the instance's linear memory by a page-aligned amount large
// enough to hold n bytes and returns the guest address of the new region.
// The sandbox's growth primitive is the only mutator of memory size.
func (m *Memory) Grow(n uint32) (uint32, error) {
	pages := (n + PageSize - 1) / PageSize
	prev, ok := m.mem.Grow(pages)
	if !ok {
		return 0, fmt.Errorf("guest memory grow of %d pages refused", pages)
	}
	return prev * PageSize, nil
}
