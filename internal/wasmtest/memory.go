// Package wasmtest provides an in-process linear memory used by tests in
// place of a real sandboxed instance.
package wasmtest

import (
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero/api"
)

const pageSize = 65536

// Memory is a growable api.Memory backed by a plain byte slice. The embedded
// interface satisfies wazero's sealed-interface marker; every method a test
// can reach is shadowed by a concrete implementation below.
type Memory struct {
	api.Memory

	data     []byte
	maxPages uint32
}

var _ api.Memory = (*Memory)(nil)

// NewMemory allocates a memory of the given initial page count. maxPages of
// zero means unbounded growth.
func NewMemory(pages, maxPages uint32) *Memory {
	return &Memory{data: make([]byte, pages*pageSize), maxPages: maxPages}
}

// Bytes exposes the backing store for test assertions.
func (m *Memory) Bytes() []byte { return m.data }

func (m *Memory) Definition() api.MemoryDefinition { return nil }

func (m *Memory) Size() uint32 { return uint32(len(m.data)) }

func (m *Memory) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(len(m.data)) / pageSize
	if m.maxPages > 0 && prev+deltaPages > m.maxPages {
		return 0, false
	}
	m.data = append(m.data, make([]byte, deltaPages*pageSize)...)
	return prev, true
}

func (m *Memory) in(offset, count uint32) bool {
	return uint64(offset)+uint64(count) <= uint64(len(m.data))
}

func (m *Memory) Read(offset, count uint32) ([]byte, bool) {
	if !m.in(offset, count) {
		return nil, false
	}
	return m.data[offset : offset+count : offset+count], true
}

func (m *Memory) ReadByte(offset uint32) (byte, bool) {
	if !m.in(offset, 1) {
		return 0, false
	}
	return m.data[offset], true
}

func (m *Memory) ReadUint16Le(offset uint32) (uint16, bool) {
	if !m.in(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), true
}

func (m *Memory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.in(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), true
}

func (m *Memory) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.in(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), true
}

func (m *Memory) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	return math.Float32frombits(v), ok
}

func (m *Memory) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	return math.Float64frombits(v), ok
}

func (m *Memory) Write(offset uint32, v []byte) bool {
	if !m.in(offset, uint32(len(v))) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

func (m *Memory) WriteByte(offset uint32, v byte) bool {
	if !m.in(offset, 1) {
		return false
	}
	m.data[offset] = v
	return true
}

func (m *Memory) WriteUint16Le(offset uint32, v uint16) bool {
	if !m.in(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.data[offset:], v)
	return true
}

func (m *Memory) WriteUint32Le(offset uint32, v uint32) bool {
	if !m.in(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[offset:], v)
	return true
}

func (m *Memory) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.in(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.data[offset:], v)
	return true
}

func (m *Memory) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

func (m *Memory) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

func (m *Memory) WriteString(offset uint32, v string) bool {
	return m.Write(offset, []byte(v))
}
