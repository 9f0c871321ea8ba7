// Package coord defines the contract between the MPI host-call layer and a
// coordination engine. The engine owns message transport, collective
// computation and rank placement; the host-call layer only marshals guest
// arguments and delegates here. All world operations are implicitly scoped
// to the world the calling instance joined at initialisation.
package coord

// Placement is the per-instance record consulted during initialisation. The
// creator of a world carries Rank <= 0; the engine assigns rank zero and
// records the new world identifier back onto the record so the spawner can
// hand it to the remaining ranks.
type Placement struct {
	WorldID   int32
	Rank      int32
	WorldSize int32
}

// Datatype describes an element type as declared by the guest: an identifier
// from the shared id table and the element size in bytes. The host layer
// re-reads it from guest memory on every call, so values are never cached.
type Datatype struct {
	ID   int32
	Size int32
}

// Datatype identifiers shared with the guest-side header.
const (
	TypeInt8    int32 = 1
	TypeInt16   int32 = 2
	TypeInt32   int32 = 3
	TypeInt64   int32 = 4
	TypeUint8   int32 = 5
	TypeUint16  int32 = 6
	TypeUint32  int32 = 7
	TypeUint64  int32 = 8
	TypeFloat32 int32 = 9
	TypeFloat64 int32 = 10
	TypeByte    int32 = 11
)

// Convenience datatype values for engine implementations and tests.
var (
	Int32   = Datatype{ID: TypeInt32, Size: 4}
	Int64   = Datatype{ID: TypeInt64, Size: 8}
	Float32 = Datatype{ID: TypeFloat32, Size: 4}
	Float64 = Datatype{ID: TypeFloat64, Size: 8}
	Byte    = Datatype{ID: TypeByte, Size: 1}
)

// Op identifies a predefined reduction operator. User-defined operators are
// outside the supported surface.
type Op int32

// Reduction operator identifiers shared with the guest-side header.
const (
	OpMax  Op = 1
	OpMin  Op = 2
	OpSum  Op = 3
	OpProd Op = 4
	OpLand Op = 5
	OpLor  Op = 6
	OpBand Op = 7
	OpBor  Op = 8
)

func (o Op) String() string {
	switch o {
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	case OpSum:
		return "sum"
	case OpProd:
		return "prod"
	case OpLand:
		return "land"
	case OpLor:
		return "lor"
	case OpBand:
		return "band"
	case OpBor:
		return "bor"
	default:
		return "op"
	}
}

// Status reports the outcome of a receive or probe: the sending rank, an
// error code and the number of bytes actually transferred. The byte count
// feeds the element-count query, which divides it by the datatype size.
type Status struct {
	Source int32
	Error  int32
	Bytes  int32
}

// RequestID identifies an outstanding asynchronous operation. It is a
// fixed-width handle that is part of the binary contract with the guest: the
// guest's request object is exactly this value written into a one-word slot.
// An id is unique while outstanding within one world and is consumed by
// exactly one wait.
type RequestID int32

// Engine creates and resolves worlds. Implementations must treat world
// destruction as a hard cancellation that fails any operation still pending
// for that world.
type Engine interface {
	// CreateWorld provisions a new world sized from the placement record,
	// assigns the caller rank zero, and records the world id on the record.
	CreateWorld(p *Placement) (World, error)
	// JoinWorld attaches the caller to the world named by the placement
	// record at the rank the spawner assigned.
	JoinWorld(p *Placement) (World, error)
	// Close tears down every remaining world.
	Close() error
}

// World is one communication session between a fixed set of ranks. Blocking
// methods occupy the calling goroutine until the engine reports completion;
// there are no per-call timeouts, and the only way to unblock a pending
// operation is Destroy.
type World interface {
	ID() int32
	Size() int

	// Point-to-point. Buffers are borrowed for the duration of the call.
	Send(src, dst int, buf []byte, dt Datatype, count int) error
	ISend(src, dst int, buf []byte, dt Datatype, count int) (RequestID, error)
	Recv(src, dst int, buf []byte, dt Datatype, count int, status *Status) error
	IRecv(src, dst int, buf []byte, dt Datatype, count int) (RequestID, error)
	SendRecv(sendBuf []byte, sendCount int, sendType Datatype, dst int,
		recvBuf []byte, recvCount int, recvType Datatype, src, rank int,
		status *Status) error
	Probe(src, dst int, status *Status) error
	Await(id RequestID) error

	// Collectives. Every rank in the world must issue the matching call.
	Barrier(rank int) error
	Broadcast(root, rank int, buf []byte, dt Datatype, count int) error
	Scatter(root, rank int, send []byte, sendType Datatype, sendCount int,
		recv []byte, recvType Datatype, recvCount int) error
	Gather(rank, root int, send []byte, sendType Datatype, sendCount int,
		recv []byte, recvType Datatype, recvCount int) error
	AllGather(rank int, send []byte, sendType Datatype, sendCount int,
		recv []byte, recvType Datatype, recvCount int) error
	Reduce(rank, root int, send, recv []byte, dt Datatype, count int, op Op) error
	AllReduce(rank int, send, recv []byte, dt Datatype, count int, op Op) error
	Scan(rank int, send, recv []byte, dt Datatype, count int, op Op) error
	AllToAll(rank int, send []byte, sendType Datatype, sendCount int,
		recv []byte, recvType Datatype, recvCount int) error

	// Cartesian topology, synthesised from world size alone.
	RankFromCoords(coords []int) (int, error)
	CartesianCoords(rank int) (dims, periods, coords [2]int, err error)
	ShiftCartesian(rank, direction, disp int) (source, dest int, err error)

	// WallTime reports seconds elapsed since the world was created.
	WallTime() float64

	// Destroy tears the world down and unblocks every pending operation in
	// it. Safe to call from every rank; only the first call takes effect.
	Destroy() error
}
