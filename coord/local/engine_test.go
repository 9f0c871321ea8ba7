package local

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/joshuafried/faasm/coord"
)

// run spawns n ranks against one freshly created world and waits for all of
// them. Rank zero is the creator; the rest join through the registry the way
// spawned instances do.
func run(t *testing.T, n int, fn func(rank int, w coord.World) error) {
	t.Helper()

	e := NewEngine()
	t.Cleanup(func() { _ = e.Close() })

	p := coord.Placement{WorldSize: int32(n)}
	root, err := e.CreateWorld(&p)
	if err != nil {
		t.Fatalf("CreateWorld: %v", err)
	}
	if p.WorldID == 0 || p.Rank != 0 {
		t.Fatalf("placement after create = %+v", p)
	}

	var g errgroup.Group
	g.Go(func() error { return fn(0, root) })
	for rank := 1; rank < n; rank++ {
		rank := rank
		joined, err := e.JoinWorld(&coord.Placement{WorldID: p.WorldID, Rank: int32(rank)})
		if err != nil {
			t.Fatalf("JoinWorld rank %d: %v", rank, err)
		}
		g.Go(func() error { return fn(rank, joined) })
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func int32Bytes(vs ...int32) []byte {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return buf
}

func int32sOf(buf []byte) []int32 {
	vs := make([]int32, len(buf)/4)
	for i := range vs {
		vs[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vs
}

func eqInt32s(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSendRecvExactBytes(t *testing.T) {
	payload := []byte{0xca, 0xfe, 0xba, 0xbe}
	run(t, 2, func(rank int, w coord.World) error {
		switch rank {
		case 0:
			return w.Send(0, 1, payload, coord.Byte, len(payload))
		default:
			got := make([]byte, len(payload))
			var st coord.Status
			if err := w.Recv(0, 1, got, coord.Byte, len(got), &st); err != nil {
				return err
			}
			if string(got) != string(payload) {
				t.Errorf("received %x, want %x", got, payload)
			}
			if st.Source != 0 || st.Error != 0 || st.Bytes != int32(len(payload)) {
				t.Errorf("status = %+v", st)
			}
			return nil
		}
	})
}

func TestSendRecvOrderPreserved(t *testing.T) {
	run(t, 2, func(rank int, w coord.World) error {
		if rank == 0 {
			for i := int32(0); i < 16; i++ {
				if err := w.Send(0, 1, int32Bytes(i), coord.Int32, 1); err != nil {
					return err
				}
			}
			return nil
		}
		for i := int32(0); i < 16; i++ {
			buf := make([]byte, 4)
			if err := w.Recv(0, 1, buf, coord.Int32, 1, nil); err != nil {
				return err
			}
			if got := int32sOf(buf)[0]; got != i {
				t.Errorf("message %d arrived as %d", i, got)
			}
		}
		return nil
	})
}

func TestProbeReportsWithoutConsuming(t *testing.T) {
	run(t, 2, func(rank int, w coord.World) error {
		if rank == 0 {
			return w.Send(0, 1, int32Bytes(1, 2, 3), coord.Int32, 3)
		}
		var st coord.Status
		if err := w.Probe(0, 1, &st); err != nil {
			return err
		}
		if st.Source != 0 || st.Bytes != 12 {
			t.Errorf("probe status = %+v", st)
		}
		// The message must still be queued after the probe.
		buf := make([]byte, 12)
		return w.Recv(0, 1, buf, coord.Int32, 3, nil)
	})
}

func TestAsyncRoundTrip(t *testing.T) {
	run(t, 2, func(rank int, w coord.World) error {
		if rank == 0 {
			id, err := w.ISend(0, 1, int32Bytes(42), coord.Int32, 1)
			if err != nil {
				return err
			}
			return w.Await(id)
		}
		buf := make([]byte, 4)
		id, err := w.IRecv(0, 1, buf, coord.Int32, 1)
		if err != nil {
			return err
		}
		if err := w.Await(id); err != nil {
			return err
		}
		if got := int32sOf(buf)[0]; got != 42 {
			t.Errorf("received %d, want 42", got)
		}
		return nil
	})
}

func TestAwaitUnknownRequest(t *testing.T) {
	run(t, 1, func(rank int, w coord.World) error {
		if err := w.Await(coord.RequestID(12345)); err == nil {
			t.Error("expected error for unknown request handle")
		}
		return nil
	})
}

func TestSendRecvExchange(t *testing.T) {
	run(t, 2, func(rank int, w coord.World) error {
		peer := 1 - rank
		send := int32Bytes(int32(rank + 100))
		recv := make([]byte, 4)
		var st coord.Status
		if err := w.SendRecv(send, 1, coord.Int32, peer,
			recv, 1, coord.Int32, peer, rank, &st); err != nil {
			return err
		}
		if got := int32sOf(recv)[0]; got != int32(peer+100) {
			t.Errorf("rank %d received %d, want %d", rank, got, peer+100)
		}
		return nil
	})
}

func TestBarrier(t *testing.T) {
	run(t, 4, func(rank int, w coord.World) error {
		for i := 0; i < 3; i++ {
			if err := w.Barrier(rank); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestBroadcast(t *testing.T) {
	run(t, 3, func(rank int, w coord.World) error {
		buf := make([]byte, 8)
		if rank == 1 {
			copy(buf, int32Bytes(7, 9))
		}
		if err := w.Broadcast(1, rank, buf, coord.Int32, 2); err != nil {
			return err
		}
		if !eqInt32s(int32sOf(buf), []int32{7, 9}) {
			t.Errorf("rank %d holds %v after broadcast", rank, int32sOf(buf))
		}
		return nil
	})
}

func TestScatterGather(t *testing.T) {
	const n = 3
	run(t, n, func(rank int, w coord.World) error {
		var send []byte
		if rank == 0 {
			send = int32Bytes(10, 11, 20, 21, 30, 31)
		}
		part := make([]byte, 8)
		if err := w.Scatter(0, rank, send, coord.Int32, 2, part, coord.Int32, 2); err != nil {
			return err
		}
		want := []int32{int32(10*(rank+1) + 0), int32(10*(rank+1) + 1)}
		if !eqInt32s(int32sOf(part), want) {
			t.Errorf("rank %d scattered %v, want %v", rank, int32sOf(part), want)
		}

		var recv []byte
		if rank == 0 {
			recv = make([]byte, 8*n)
		}
		if err := w.Gather(rank, 0, part, coord.Int32, 2, recv, coord.Int32, 2); err != nil {
			return err
		}
		if rank == 0 {
			if !eqInt32s(int32sOf(recv), []int32{10, 11, 20, 21, 30, 31}) {
				t.Errorf("gathered %v", int32sOf(recv))
			}
		}
		return nil
	})
}

func TestAllGather(t *testing.T) {
	const n = 4
	run(t, n, func(rank int, w coord.World) error {
		send := int32Bytes(int32(rank * rank))
		recv := make([]byte, 4*n)
		if err := w.AllGather(rank, send, coord.Int32, 1, recv, coord.Int32, 1); err != nil {
			return err
		}
		if !eqInt32s(int32sOf(recv), []int32{0, 1, 4, 9}) {
			t.Errorf("rank %d allgathered %v", rank, int32sOf(recv))
		}
		return nil
	})
}

func TestReduceOps(t *testing.T) {
	const n = 3
	cases := []struct {
		op   coord.Op
		want []int32
	}{
		{coord.OpSum, []int32{6, 33}},    // 1+2+3, 10+11+12
		{coord.OpMax, []int32{3, 12}},
		{coord.OpMin, []int32{1, 10}},
		{coord.OpProd, []int32{6, 1320}}, // 1*2*3, 10*11*12
	}
	for _, c := range cases {
		c := c
		t.Run(c.op.String(), func(t *testing.T) {
			run(t, n, func(rank int, w coord.World) error {
				send := int32Bytes(int32(rank+1), int32(rank+10))
				var recv []byte
				if rank == 0 {
					recv = make([]byte, 8)
				}
				if err := w.Reduce(rank, 0, send, recv, coord.Int32, 2, c.op); err != nil {
					return err
				}
				if rank == 0 && !eqInt32s(int32sOf(recv), c.want) {
					t.Errorf("%v reduced to %v, want %v", c.op, int32sOf(recv), c.want)
				}
				return nil
			})
		})
	}
}

func TestReduceBitwiseAndLogical(t *testing.T) {
	run(t, 2, func(rank int, w coord.World) error {
		// rank 0 contributes {0b1100, 0}, rank 1 {0b1010, 5}.
		var send []byte
		if rank == 0 {
			send = int32Bytes(0b1100, 0)
		} else {
			send = int32Bytes(0b1010, 5)
		}
		recv := make([]byte, 8)
		if err := w.AllReduce(rank, send, recv, coord.Int32, 2, coord.OpBand); err != nil {
			return err
		}
		if !eqInt32s(int32sOf(recv), []int32{0b1000, 0}) {
			t.Errorf("band = %v", int32sOf(recv))
		}
		if err := w.AllReduce(rank, send, recv, coord.Int32, 2, coord.OpLand); err != nil {
			return err
		}
		// Logical results normalise to zero or one.
		if !eqInt32s(int32sOf(recv), []int32{1, 0}) {
			t.Errorf("land = %v", int32sOf(recv))
		}
		return nil
	})
}

func TestReduceFloat64Sum(t *testing.T) {
	const n = 3
	run(t, n, func(rank int, w coord.World) error {
		send := make([]byte, 8)
		binary.LittleEndian.PutUint64(send, math.Float64bits(float64(rank)+0.5))
		recv := make([]byte, 8)
		if err := w.AllReduce(rank, send, recv, coord.Float64, 1, coord.OpSum); err != nil {
			return err
		}
		got := math.Float64frombits(binary.LittleEndian.Uint64(recv))
		if got != 4.5 {
			t.Errorf("sum = %v, want 4.5", got)
		}
		return nil
	})
}

func TestReduceUnknownOp(t *testing.T) {
	run(t, 2, func(rank int, w coord.World) error {
		send := int32Bytes(1)
		recv := make([]byte, 4)
		err := w.Reduce(rank, 0, send, recv, coord.Int32, 1, coord.Op(99))
		if rank == 0 && err == nil {
			t.Error("expected error for unknown reduction operator")
		}
		return nil
	})
}

func TestAllReduce(t *testing.T) {
	const n = 4
	run(t, n, func(rank int, w coord.World) error {
		send := int32Bytes(int32(rank))
		recv := make([]byte, 4)
		if err := w.AllReduce(rank, send, recv, coord.Int32, 1, coord.OpSum); err != nil {
			return err
		}
		if got := int32sOf(recv)[0]; got != 6 {
			t.Errorf("rank %d allreduce = %d, want 6", rank, got)
		}
		return nil
	})
}

func TestScanIsInclusivePrefix(t *testing.T) {
	const n = 4
	run(t, n, func(rank int, w coord.World) error {
		send := int32Bytes(int32(rank + 1))
		recv := make([]byte, 4)
		if err := w.Scan(rank, send, recv, coord.Int32, 1, coord.OpSum); err != nil {
			return err
		}
		want := int32((rank + 1) * (rank + 2) / 2)
		if got := int32sOf(recv)[0]; got != want {
			t.Errorf("rank %d scan = %d, want %d", rank, got, want)
		}
		return nil
	})
}

func TestAllToAll(t *testing.T) {
	const n = 3
	run(t, n, func(rank int, w coord.World) error {
		// Rank r sends value 10*r+d to destination d.
		vals := make([]int32, n)
		for d := range vals {
			vals[d] = int32(10*rank + d)
		}
		send := int32Bytes(vals...)
		recv := make([]byte, 4*n)
		if err := w.AllToAll(rank, send, coord.Int32, 1, recv, coord.Int32, 1); err != nil {
			return err
		}
		want := make([]int32, n)
		for s := range want {
			want[s] = int32(10*s + rank)
		}
		if !eqInt32s(int32sOf(recv), want) {
			t.Errorf("rank %d alltoall = %v, want %v", rank, int32sOf(recv), want)
		}
		return nil
	})
}

func TestRecvSizeMismatch(t *testing.T) {
	run(t, 2, func(rank int, w coord.World) error {
		if rank == 0 {
			return w.Send(0, 1, int32Bytes(1, 2), coord.Int32, 2)
		}
		buf := make([]byte, 4)
		if err := w.Recv(0, 1, buf, coord.Int32, 1, nil); err == nil {
			t.Error("expected error for undersized receive")
		}
		return nil
	})
}

func TestDestroyUnblocksPending(t *testing.T) {
	e := NewEngine()
	t.Cleanup(func() { _ = e.Close() })

	p := coord.Placement{WorldSize: 2}
	w, err := e.CreateWorld(&p)
	if err != nil {
		t.Fatalf("CreateWorld: %v", err)
	}

	blocked := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		blocked <- w.Recv(1, 0, buf, coord.Int32, 1, nil)
	}()

	if err := w.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := <-blocked; !errors.Is(err, ErrWorldDestroyed) {
		t.Fatalf("pending receive returned %v, want ErrWorldDestroyed", err)
	}

	// The registry must no longer resolve the world.
	if _, err := e.JoinWorld(&coord.Placement{WorldID: p.WorldID, Rank: 1}); err == nil {
		t.Fatal("expected join of a destroyed world to fail")
	}
}

func TestJoinValidation(t *testing.T) {
	e := NewEngine()
	t.Cleanup(func() { _ = e.Close() })

	if _, err := e.JoinWorld(&coord.Placement{WorldID: 999}); err == nil {
		t.Fatal("expected error for unknown world id")
	}

	p := coord.Placement{WorldSize: 2}
	if _, err := e.CreateWorld(&p); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JoinWorld(&coord.Placement{WorldID: p.WorldID, Rank: 5}); err == nil {
		t.Fatal("expected error for rank outside the world")
	}
}

func TestWallTimeAdvances(t *testing.T) {
	e := NewEngine()
	t.Cleanup(func() { _ = e.Close() })

	p := coord.Placement{WorldSize: 1}
	w, err := e.CreateWorld(&p)
	if err != nil {
		t.Fatal(err)
	}
	if w.WallTime() < 0 {
		t.Fatal("negative wall time")
	}
}
