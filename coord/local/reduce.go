package local

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/joshuafried/faasm/coord"
)

type integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type number interface {
	integer | ~float32 | ~float64
}

func arith[T number](op coord.Op) (func(a, b T) T, bool) {
	switch op {
	case coord.OpMax:
		return func(a, b T) T {
			if a > b {
				return a
			}
			return b
		}, true
	case coord.OpMin:
		return func(a, b T) T {
			if a < b {
				return a
			}
			return b
		}, true
	case coord.OpSum:
		return func(a, b T) T { return a + b }, true
	case coord.OpProd:
		return func(a, b T) T { return a * b }, true
	default:
		return nil, false
	}
}

func bitwise[T integer](op coord.Op) (func(a, b T) T, bool) {
	if f, ok := arith[T](op); ok {
		return f, true
	}
	switch op {
	case coord.OpLand:
		return func(a, b T) T {
			if a != 0 && b != 0 {
				return 1
			}
			return 0
		}, true
	case coord.OpLor:
		return func(a, b T) T {
			if a != 0 || b != 0 {
				return 1
			}
			return 0
		}, true
	case coord.OpBand:
		return func(a, b T) T { return a & b }, true
	case coord.OpBor:
		return func(a, b T) T { return a | b }, true
	default:
		return nil, false
	}
}

func reduceSlice[T any](dst, src []byte, count, width int,
	load func([]byte) T, store func([]byte, T), f func(a, b T) T) {
	for i := 0; i < count; i++ {
		off := i * width
		store(dst[off:], f(load(dst[off:]), load(src[off:])))
	}
}

// combine folds src into dst element-wise: dst[i] = op(dst[i], src[i]).
// Supported operators cover the predefined commutative set only; anything
// else is an engine failure, matching the unsupported-operator contract.
func combine(dst, src []byte, dt coord.Datatype, count int, op coord.Op) error {
	need := count * int(dt.Size)
	if len(dst) < need || len(src) < need {
		return fmt.Errorf("local: reduction over %d bytes exceeds buffers (%d, %d)",
			need, len(dst), len(src))
	}

	switch dt.ID {
	case coord.TypeInt8:
		f, ok := bitwise[int8](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 1,
			func(b []byte) int8 { return int8(b[0]) },
			func(b []byte, v int8) { b[0] = byte(v) }, f)
	case coord.TypeUint8, coord.TypeByte:
		f, ok := bitwise[uint8](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 1,
			func(b []byte) uint8 { return b[0] },
			func(b []byte, v uint8) { b[0] = v }, f)
	case coord.TypeInt16:
		f, ok := bitwise[int16](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 2,
			func(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) },
			func(b []byte, v int16) { binary.LittleEndian.PutUint16(b, uint16(v)) }, f)
	case coord.TypeUint16:
		f, ok := bitwise[uint16](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 2,
			binary.LittleEndian.Uint16,
			func(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }, f)
	case coord.TypeInt32:
		f, ok := bitwise[int32](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 4,
			func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) },
			func(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) }, f)
	case coord.TypeUint32:
		f, ok := bitwise[uint32](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 4,
			binary.LittleEndian.Uint32,
			func(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }, f)
	case coord.TypeInt64:
		f, ok := bitwise[int64](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 8,
			func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) },
			func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }, f)
	case coord.TypeUint64:
		f, ok := bitwise[uint64](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 8,
			binary.LittleEndian.Uint64,
			func(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }, f)
	case coord.TypeFloat32:
		f, ok := arith[float32](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 4,
			func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) },
			func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }, f)
	case coord.TypeFloat64:
		f, ok := arith[float64](op)
		if !ok {
			return opError(op, dt)
		}
		reduceSlice(dst, src, count, 8,
			func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) },
			func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }, f)
	default:
		return fmt.Errorf("local: reduction over unknown datatype id %d", dt.ID)
	}
	return nil
}

func opError(op coord.Op, dt coord.Datatype) error {
	return fmt.Errorf("local: operator %s not defined for datatype id %d", op, dt.ID)
}
