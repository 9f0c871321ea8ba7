package mpi

import (
	"context"
	"errors"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

type sessionContextKey struct{}

// WithSession returns a context carrying the session every host call made by
// the instance will resolve.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached to ctx, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok
}

func sessionFor(ctx context.Context, mod api.Module) *Session {
	s, ok := SessionFromContext(ctx)
	if !ok {
		panic(ErrNoContext)
	}
	s.ensureMemory(mod)
	return s
}

func u32(stack []uint64, i int) uint32 { return uint32(stack[i]) }
func i32(stack []uint64, i int) int32  { return int32(uint32(stack[i])) }

// exporter binds one host function per MPI call. Every call takes i32
// parameters and returns a single i32 result code; MPI_Wtime is the lone
// exception and is bound by hand.
type exporter struct {
	builder wazero.HostModuleBuilder
}

func (e exporter) fn(name string, nParams int, call func(*Session, []uint64) error) {
	params := make([]api.ValueType, nParams)
	for i := range params {
		params[i] = api.ValueTypeI32
	}
	e.builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			s := sessionFor(ctx, mod)
			stack[0] = uint64(s.resolve(name, call(s, stack)))
		}), params, []api.ValueType{api.ValueTypeI32}).
		Export(name)
}

// resolve maps a call outcome onto the guest-visible result code. Only nil
// and the incomplete-count condition return to the guest; every other
// failure traps the instance, matching the contract that guests never see
// general error codes.
func (s *Session) resolve(call string, err error) int32 {
	switch {
	case err == nil:
		s.metrics.CallCompleted(call, s.attrs())
		return 0
	case errors.Is(err, ErrIncompleteMessage):
		s.metrics.CallFailed(call, err, s.attrs())
		return 1
	case errors.Is(err, ErrUnsupported):
		s.metrics.UnsupportedCall(call, s.attrs())
		s.log.Errorw("unsupported MPI call", "call", call, "rank", s.rank)
		panic(err)
	default:
		s.metrics.CallFailed(call, err, s.attrs())
		s.log.Errorw("MPI call failed", "call", call, "rank", s.rank, "error", err)
		panic(err)
	}
}

// ExportHostFunctions registers the full MPI import surface on builder.
// The instantiated module must be linked under the import namespace the
// guest toolchain emitted, typically "env".
func ExportHostFunctions(builder wazero.HostModuleBuilder) {
	e := exporter{builder: builder}

	// Lifecycle.
	e.fn("MPI_Init", 2, func(s *Session, st []uint64) error {
		return s.Init(u32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Finalize", 0, func(s *Session, st []uint64) error {
		return s.Finalize()
	})
	e.fn("MPI_Abort", 2, func(s *Session, st []uint64) error {
		return s.Abort(u32(st, 0), i32(st, 1))
	})
	e.fn("MPI_Get_version", 2, func(s *Session, st []uint64) error {
		return s.GetVersion(u32(st, 0), u32(st, 1))
	})

	// Communicator queries.
	e.fn("MPI_Comm_size", 2, func(s *Session, st []uint64) error {
		return s.CommSize(u32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Comm_rank", 2, func(s *Session, st []uint64) error {
		return s.CommRank(u32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Comm_free", 1, func(s *Session, st []uint64) error {
		return s.CommFree(u32(st, 0))
	})
	e.fn("MPI_Comm_dup", 2, func(s *Session, st []uint64) error {
		return s.CommDup(u32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Comm_split", 4, func(s *Session, st []uint64) error {
		return s.CommSplit(u32(st, 0), i32(st, 1), i32(st, 2), u32(st, 3))
	})
	e.fn("MPI_Comm_c2f", 2, func(s *Session, st []uint64) error {
		return s.CommC2F(u32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Comm_f2c", 2, func(s *Session, st []uint64) error {
		return s.CommF2C(i32(st, 0), u32(st, 1))
	})

	// Point-to-point.
	e.fn("MPI_Send", 6, func(s *Session, st []uint64) error {
		return s.Send(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4), u32(st, 5))
	})
	e.fn("MPI_Isend", 7, func(s *Session, st []uint64) error {
		return s.Isend(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4), u32(st, 5), u32(st, 6))
	})
	e.fn("MPI_Recv", 7, func(s *Session, st []uint64) error {
		return s.Recv(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4), u32(st, 5), u32(st, 6))
	})
	e.fn("MPI_Irecv", 7, func(s *Session, st []uint64) error {
		return s.Irecv(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4), u32(st, 5), u32(st, 6))
	})
	e.fn("MPI_Sendrecv", 12, func(s *Session, st []uint64) error {
		return s.Sendrecv(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4),
			u32(st, 5), i32(st, 6), u32(st, 7), i32(st, 8), i32(st, 9),
			u32(st, 10), u32(st, 11))
	})
	e.fn("MPI_Probe", 4, func(s *Session, st []uint64) error {
		return s.Probe(i32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3))
	})
	e.fn("MPI_Get_count", 3, func(s *Session, st []uint64) error {
		return s.GetCount(u32(st, 0), u32(st, 1), u32(st, 2))
	})
	e.fn("MPI_Rsend", 6, func(s *Session, st []uint64) error {
		return s.Rsend(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4), u32(st, 5))
	})

	// Request completion.
	e.fn("MPI_Wait", 2, func(s *Session, st []uint64) error {
		return s.Wait(u32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Waitall", 3, func(s *Session, st []uint64) error {
		return s.Waitall(i32(st, 0), u32(st, 1), u32(st, 2))
	})
	e.fn("MPI_Waitany", 4, func(s *Session, st []uint64) error {
		return s.Waitany(i32(st, 0), u32(st, 1), u32(st, 2), u32(st, 3))
	})
	e.fn("MPI_Request_free", 1, func(s *Session, st []uint64) error {
		return s.RequestFree(u32(st, 0))
	})

	// Collectives.
	e.fn("MPI_Bcast", 5, func(s *Session, st []uint64) error {
		return s.Bcast(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), u32(st, 4))
	})
	e.fn("MPI_Barrier", 1, func(s *Session, st []uint64) error {
		return s.Barrier(u32(st, 0))
	})
	e.fn("MPI_Scatter", 8, func(s *Session, st []uint64) error {
		return s.Scatter(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3), i32(st, 4), u32(st, 5), i32(st, 6), u32(st, 7))
	})
	e.fn("MPI_Gather", 8, func(s *Session, st []uint64) error {
		return s.Gather(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3), i32(st, 4), u32(st, 5), i32(st, 6), u32(st, 7))
	})
	e.fn("MPI_Allgather", 7, func(s *Session, st []uint64) error {
		return s.Allgather(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3), i32(st, 4), u32(st, 5), u32(st, 6))
	})
	e.fn("MPI_Allgatherv", 8, func(s *Session, st []uint64) error {
		return s.Allgatherv(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3), u32(st, 4), u32(st, 5), u32(st, 6), u32(st, 7))
	})
	e.fn("MPI_Reduce", 7, func(s *Session, st []uint64) error {
		return s.Reduce(u32(st, 0), u32(st, 1), i32(st, 2), u32(st, 3), u32(st, 4), i32(st, 5), u32(st, 6))
	})
	e.fn("MPI_Allreduce", 6, func(s *Session, st []uint64) error {
		return s.Allreduce(u32(st, 0), u32(st, 1), i32(st, 2), u32(st, 3), u32(st, 4), u32(st, 5))
	})
	e.fn("MPI_Reduce_scatter", 6, func(s *Session, st []uint64) error {
		return s.ReduceScatter(u32(st, 0), u32(st, 1), u32(st, 2), u32(st, 3), u32(st, 4), u32(st, 5))
	})
	e.fn("MPI_Scan", 6, func(s *Session, st []uint64) error {
		return s.Scan(u32(st, 0), u32(st, 1), i32(st, 2), u32(st, 3), u32(st, 4), u32(st, 5))
	})
	e.fn("MPI_Alltoall", 7, func(s *Session, st []uint64) error {
		return s.Alltoall(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3), i32(st, 4), u32(st, 5), u32(st, 6))
	})
	e.fn("MPI_Alltoallv", 9, func(s *Session, st []uint64) error {
		return s.Alltoallv(u32(st, 0), u32(st, 1), u32(st, 2), u32(st, 3), u32(st, 4), u32(st, 5), u32(st, 6), u32(st, 7), u32(st, 8))
	})

	// Cartesian topology.
	e.fn("MPI_Cart_create", 6, func(s *Session, st []uint64) error {
		return s.CartCreate(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3), i32(st, 4), u32(st, 5))
	})
	e.fn("MPI_Cart_get", 5, func(s *Session, st []uint64) error {
		return s.CartGet(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3), u32(st, 4))
	})
	e.fn("MPI_Cart_rank", 3, func(s *Session, st []uint64) error {
		return s.CartRank(u32(st, 0), u32(st, 1), u32(st, 2))
	})
	e.fn("MPI_Cart_shift", 5, func(s *Session, st []uint64) error {
		return s.CartShift(u32(st, 0), i32(st, 1), i32(st, 2), u32(st, 3), u32(st, 4))
	})

	// Memory and datatypes.
	e.fn("MPI_Alloc_mem", 3, func(s *Session, st []uint64) error {
		return s.AllocMem(i32(st, 0), u32(st, 1), u32(st, 2))
	})
	e.fn("MPI_Free_mem", 1, func(s *Session, st []uint64) error {
		return s.FreeMem(u32(st, 0))
	})
	e.fn("MPI_Type_size", 2, func(s *Session, st []uint64) error {
		return s.TypeSize(u32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Type_contiguous", 3, func(s *Session, st []uint64) error {
		return s.TypeContiguous(i32(st, 0), u32(st, 1), u32(st, 2))
	})
	e.fn("MPI_Type_commit", 1, func(s *Session, st []uint64) error {
		return s.TypeCommit(u32(st, 0))
	})
	e.fn("MPI_Type_free", 1, func(s *Session, st []uint64) error {
		return s.TypeFree(u32(st, 0))
	})

	// Reduction operators and one-sided access.
	e.fn("MPI_Op_create", 3, func(s *Session, st []uint64) error {
		return s.OpCreate(u32(st, 0), i32(st, 1), u32(st, 2))
	})
	e.fn("MPI_Op_free", 1, func(s *Session, st []uint64) error {
		return s.OpFree(u32(st, 0))
	})
	e.fn("MPI_Win_create", 6, func(s *Session, st []uint64) error {
		return s.WinCreate(u32(st, 0), i32(st, 1), i32(st, 2), u32(st, 3), u32(st, 4), u32(st, 5))
	})
	e.fn("MPI_Win_fence", 2, func(s *Session, st []uint64) error {
		return s.WinFence(i32(st, 0), u32(st, 1))
	})
	e.fn("MPI_Win_free", 1, func(s *Session, st []uint64) error {
		return s.WinFree(u32(st, 0))
	})
	e.fn("MPI_Win_get_attr", 4, func(s *Session, st []uint64) error {
		return s.WinGetAttr(u32(st, 0), i32(st, 1), u32(st, 2), u32(st, 3))
	})
	e.fn("MPI_Get", 8, func(s *Session, st []uint64) error {
		return s.Get(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4), i32(st, 5), u32(st, 6), u32(st, 7))
	})
	e.fn("MPI_Put", 8, func(s *Session, st []uint64) error {
		return s.Put(u32(st, 0), i32(st, 1), u32(st, 2), i32(st, 3), i32(st, 4), i32(st, 5), u32(st, 6), u32(st, 7))
	})

	// Identity and timing.
	e.fn("MPI_Get_processor_name", 2, func(s *Session, st []uint64) error {
		return s.GetProcessorName(u32(st, 0), u32(st, 1))
	})
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			s := sessionFor(ctx, mod)
			t, err := s.Wtime()
			if err != nil {
				s.resolve("MPI_Wtime", err)
				stack[0] = api.EncodeF64(0)
				return
			}
			s.metrics.CallCompleted("MPI_Wtime", s.attrs())
			stack[0] = api.EncodeF64(t)
		}), nil, []api.ValueType{api.ValueTypeF64}).
		Export("MPI_Wtime")
}
