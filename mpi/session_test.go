package mpi

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/joshuafried/faasm/coord"
	"github.com/joshuafried/faasm/coord/local"
	"github.com/joshuafried/faasm/internal/abi"
	"github.com/joshuafried/faasm/internal/guestmem"
	"github.com/joshuafried/faasm/internal/wasmtest"
)

// Guest memory layout shared by the package tests. Descriptors live in the
// low region; payload buffers start at bufA.
const (
	commPtr   = 0x100
	typePtr   = 0x110
	opPtr     = 0x120
	statusPtr = 0x130
	reqPtr    = 0x140
	resPtr    = 0x150
	bufA      = 0x200
	bufB      = 0x400
)

// rig is one instance under test: a session plus its fake linear memory and
// a direct handle on that memory for assertions.
type rig struct {
	s   *Session
	raw *wasmtest.Memory
	gm  *guestmem.Memory
}

func (r *rig) writeComm(t *testing.T, ptr uint32, id int32) {
	t.Helper()
	if err := r.gm.WriteUint32(ptr, uint32(id)); err != nil {
		t.Fatal(err)
	}
}

func (r *rig) writeDatatype(t *testing.T, ptr uint32, dt coord.Datatype) {
	t.Helper()
	if err := r.gm.WriteUint32(ptr, uint32(dt.ID)); err != nil {
		t.Fatal(err)
	}
	if err := r.gm.WriteUint32(ptr+4, uint32(dt.Size)); err != nil {
		t.Fatal(err)
	}
}

func (r *rig) writeOp(t *testing.T, ptr uint32, op coord.Op) {
	t.Helper()
	if err := r.gm.WriteUint32(ptr, uint32(op)); err != nil {
		t.Fatal(err)
	}
}

func (r *rig) writeWords(t *testing.T, ptr uint32, vs ...int32) {
	t.Helper()
	for i, v := range vs {
		if err := r.gm.WriteUint32(ptr+uint32(4*i), uint32(v)); err != nil {
			t.Fatal(err)
		}
	}
}

func (r *rig) readWords(t *testing.T, ptr uint32, n int) []int32 {
	t.Helper()
	vs := make([]int32, n)
	for i := range vs {
		v, err := r.gm.ReadUint32(ptr + uint32(4*i))
		if err != nil {
			t.Fatal(err)
		}
		vs[i] = int32(v)
	}
	return vs
}

// newWorld initialises n sessions against one local engine. Every rig comes
// back with the standard descriptors already present in its guest memory.
func newWorld(t *testing.T, n int, cfg Config) []*rig {
	t.Helper()

	e := local.NewEngine()
	t.Cleanup(func() { _ = e.Close() })

	rigs := make([]*rig, n)
	placements := make([]*coord.Placement, n)
	for i := range rigs {
		raw := wasmtest.NewMemory(4, 0)
		placements[i] = &coord.Placement{Rank: int32(i), WorldSize: int32(n)}
		r := &rig{
			s:   NewSession(e, placements[i], cfg),
			raw: raw,
			gm:  guestmem.Wrap(raw),
		}
		r.s.AttachMemory(raw)
		r.writeComm(t, commPtr, abi.CommWorld)
		r.writeDatatype(t, typePtr, coord.Int32)
		r.writeOp(t, opPtr, coord.OpSum)
		rigs[i] = r
	}

	if err := rigs[0].s.Init(0, 0); err != nil {
		t.Fatalf("creator init: %v", err)
	}
	worldID := placements[0].WorldID
	for i := 1; i < n; i++ {
		placements[i].WorldID = worldID
		if err := rigs[i].s.Init(0, 0); err != nil {
			t.Fatalf("rank %d init: %v", i, err)
		}
	}
	return rigs
}

// each runs fn concurrently for every rig and fails on any error.
func each(t *testing.T, rigs []*rig, fn func(r *rig) error) {
	t.Helper()
	var g errgroup.Group
	for _, r := range rigs {
		r := r
		g.Go(func() error { return fn(r) })
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestInitRejectsSecondCall(t *testing.T) {
	rigs := newWorld(t, 1, Config{})
	if err := rigs[0].s.Init(0, 0); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("second init: got %v, want ErrAlreadyInitialised", err)
	}
}

func TestInitObservesCreatedWorld(t *testing.T) {
	e := local.NewEngine()
	t.Cleanup(func() { _ = e.Close() })

	var observed int32
	p := &coord.Placement{WorldSize: 2}
	s := NewSession(e, p, Config{OnWorldCreated: func(id int32) { observed = id }})
	s.AttachMemory(wasmtest.NewMemory(1, 0))
	if err := s.Init(0, 0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if observed == 0 || observed != p.WorldID {
		t.Fatalf("observed world id %d, placement has %d", observed, p.WorldID)
	}
}

func TestCommSizeAndRankRepeatable(t *testing.T) {
	const n = 3
	rigs := newWorld(t, n, Config{})
	for rank, r := range rigs {
		for i := 0; i < 3; i++ {
			if err := r.s.CommSize(commPtr, resPtr); err != nil {
				t.Fatalf("CommSize: %v", err)
			}
			if got := r.readWords(t, resPtr, 1)[0]; got != n {
				t.Fatalf("size = %d, want %d", got, n)
			}
			if err := r.s.CommRank(commPtr, resPtr); err != nil {
				t.Fatalf("CommRank: %v", err)
			}
			if got := r.readWords(t, resPtr, 1)[0]; got != int32(rank) {
				t.Fatalf("rank = %d, want %d", got, rank)
			}
		}
	}
}

func TestUnrecognisedCommunicatorFaults(t *testing.T) {
	rigs := newWorld(t, 1, Config{})
	r := rigs[0]
	r.writeComm(t, commPtr+8, 42)

	err := r.s.CommSize(commPtr+8, resPtr)
	var ce *CommError
	if !errors.As(err, &ce) || ce.ID != 42 {
		t.Fatalf("err = %v, want CommError{42}", err)
	}
}

func TestCallsOutsideContextFault(t *testing.T) {
	e := local.NewEngine()
	t.Cleanup(func() { _ = e.Close() })

	s := NewSession(e, &coord.Placement{WorldSize: 1}, Config{})
	s.AttachMemory(wasmtest.NewMemory(1, 0))
	if err := s.CommRank(commPtr, resPtr); !errors.Is(err, ErrNoContext) {
		t.Fatalf("err = %v, want ErrNoContext", err)
	}
	if _, err := s.Wtime(); !errors.Is(err, ErrNoContext) {
		t.Fatalf("Wtime err = %v, want ErrNoContext", err)
	}
}

func TestFinalizeClearsContext(t *testing.T) {
	rigs := newWorld(t, 1, Config{})
	r := rigs[0]
	if err := r.s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := r.s.CommRank(commPtr, resPtr); !errors.Is(err, ErrNoContext) {
		t.Fatalf("post-finalize err = %v, want ErrNoContext", err)
	}
	if err := r.s.Finalize(); !errors.Is(err, ErrNoContext) {
		t.Fatalf("double finalize err = %v, want ErrNoContext", err)
	}
}

func TestAbortTearsDownWorld(t *testing.T) {
	rigs := newWorld(t, 1, Config{})
	if err := rigs[0].s.Abort(commPtr, 7); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if err := rigs[0].s.Barrier(commPtr); !errors.Is(err, ErrNoContext) {
		t.Fatalf("post-abort err = %v, want ErrNoContext", err)
	}
}

func TestCommFreeInert(t *testing.T) {
	rigs := newWorld(t, 1, Config{})
	r := rigs[0]
	if err := r.s.CommFree(commPtr); err != nil {
		t.Fatalf("CommFree: %v", err)
	}
	// The communicator still resolves afterwards.
	if err := r.s.CommSize(commPtr, resPtr); err != nil {
		t.Fatalf("CommSize after free: %v", err)
	}
}

func TestUnsupportedCalls(t *testing.T) {
	rigs := newWorld(t, 1, Config{})
	s := rigs[0].s

	calls := map[string]func() error{
		"MPI_Get_version":    func() error { return s.GetVersion(0, 0) },
		"MPI_Comm_dup":       func() error { return s.CommDup(commPtr, 0) },
		"MPI_Comm_split":     func() error { return s.CommSplit(commPtr, 0, 0, 0) },
		"MPI_Comm_c2f":       func() error { return s.CommC2F(commPtr, 0) },
		"MPI_Comm_f2c":       func() error { return s.CommF2C(0, 0) },
		"MPI_Rsend":          func() error { return s.Rsend(bufA, 1, typePtr, 0, 0, commPtr) },
		"MPI_Allgatherv":     func() error { return s.Allgatherv(bufA, 1, typePtr, bufB, 0, 0, typePtr, commPtr) },
		"MPI_Reduce_scatter": func() error { return s.ReduceScatter(bufA, bufB, 0, typePtr, opPtr, commPtr) },
		"MPI_Alltoallv":      func() error { return s.Alltoallv(bufA, 0, 0, typePtr, bufB, 0, 0, typePtr, commPtr) },
		"MPI_Op_create":      func() error { return s.OpCreate(0, 0, 0) },
		"MPI_Op_free":        func() error { return s.OpFree(0) },
		"MPI_Win_create":     func() error { return s.WinCreate(bufA, 4, 1, 0, commPtr, 0) },
		"MPI_Win_fence":      func() error { return s.WinFence(0, 0) },
		"MPI_Win_free":       func() error { return s.WinFree(0) },
		"MPI_Win_get_attr":   func() error { return s.WinGetAttr(0, 0, 0, 0) },
		"MPI_Get":            func() error { return s.Get(bufA, 1, typePtr, 0, 0, 1, typePtr, 0) },
		"MPI_Put":            func() error { return s.Put(bufA, 1, typePtr, 0, 0, 1, typePtr, 0) },
		"MPI_Type_free":      func() error { return s.TypeFree(0) },
		"MPI_Waitall":        func() error { return s.Waitall(0, 0, 0) },
		"MPI_Waitany":        func() error { return s.Waitany(0, 0, 0, 0) },
		"MPI_Request_free":   func() error { return s.RequestFree(0) },
	}
	for name, call := range calls {
		err := call()
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s returned %v, want ErrUnsupported", name, err)
			continue
		}
		var ce *CallError
		if !errors.As(err, &ce) || ce.Call != name {
			t.Errorf("%s error does not carry the call name: %v", name, err)
		}
	}
}

func TestCallLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	rigs := newWorld(t, 1, Config{Logger: zap.New(core).Sugar()})

	if err := rigs[0].s.CommRank(commPtr, resPtr); err != nil {
		t.Fatalf("CommRank: %v", err)
	}
	if logs.FilterMessage("MPI_Comm_rank").Len() == 0 {
		t.Fatal("expected a debug record for the rank query")
	}
}
