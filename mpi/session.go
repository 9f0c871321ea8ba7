// Package mpi is the guest-to-host translation layer for MPI-style programs
// running as sandboxed wasm instances. It intercepts every message-passing
// host call, validates and marshals its arguments across the sandbox memory
// boundary, and delegates to a coordination engine that performs the actual
// delivery and collective computation. Each call is fully implemented,
// structurally inert, or explicitly unsupported; nothing is approximated.
package mpi

import (
	"strconv"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/joshuafried/faasm/coord"
	"github.com/joshuafried/faasm/internal/abi"
	"github.com/joshuafried/faasm/internal/guestmem"
)

// Status is the guest-visible receive status record.
type Status = coord.Status

// Config carries per-worker settings for a session.
type Config struct {
	// ProcessorName is the configured identity string of the invoking
	// worker, surfaced through the processor-name query. It is not a
	// network-reachable name.
	ProcessorName string
	// Logger receives per-call trace logging; nil discards it.
	Logger *zap.SugaredLogger
	// Metrics receives host-call telemetry; nil discards it.
	Metrics MetricHook
	// OnWorldCreated, when set, observes the world id generated during a
	// creating Init, so a spawner can hand it to the remaining ranks.
	OnWorldCreated func(worldID int32)
}

// Session is the execution context of one sandboxed instance: its placement
// record, its bound world and its guest memory. A session is owned by the
// single goroutine executing the instance and is never shared; exactly one
// world is bound per session between Init and Finalize.
type Session struct {
	engine    coord.Engine
	placement *coord.Placement
	cfg       Config
	log       *zap.SugaredLogger
	metrics   MetricHook

	mem   *guestmem.Memory
	world coord.World
	rank  int
}

// NewSession prepares a session for one instance. No world is bound until
// the guest calls Init.
func NewSession(engine coord.Engine, placement *coord.Placement, cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Session{
		engine:    engine,
		placement: placement,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
	}
}

// AttachMemory binds the instance's linear memory to the session. The
// binding normally happens lazily on the first host call.
func (s *Session) AttachMemory(mem api.Memory) {
	s.mem = guestmem.Wrap(mem)
}

func (s *Session) ensureMemory(mod api.Module) {
	if s.mem != nil || mod == nil {
		return
	}
	if m := mod.Memory(); m != nil {
		s.mem = guestmem.Wrap(m)
	}
}

// Rank reports the session's rank within its bound world.
func (s *Session) Rank() int { return s.rank }

// Init establishes the execution context. The argument-vector parameters
// are always absent in this execution model and are ignored. An instance
// whose placement rank is unset or non-positive is the designated creator:
// it requests a new world from the engine and the resulting world id is
// recorded on its own placement record. Any other instance joins the world
// its spawner named there.
func (s *Session) Init(argc, argv uint32) error {
	if s.world != nil {
		return ErrAlreadyInitialised
	}

	var (
		w   coord.World
		err error
	)
	if s.placement.Rank <= 0 {
		s.log.Debugw("MPI_Init (create)", "argc", argc, "argv", argv)
		w, err = s.engine.CreateWorld(s.placement)
		if err == nil {
			s.metrics.WorldCreated(s.attrs())
			if s.cfg.OnWorldCreated != nil {
				s.cfg.OnWorldCreated(s.placement.WorldID)
			}
		}
	} else {
		s.log.Debugw("MPI_Init (join)", "world", s.placement.WorldID, "rank", s.placement.Rank)
		w, err = s.engine.JoinWorld(s.placement)
	}
	if err != nil {
		return err
	}

	s.world = w
	s.rank = int(s.placement.Rank)
	return nil
}

// active returns the bound world, or faults a call issued outside the
// init/finalize window.
func (s *Session) active() (coord.World, error) {
	if s.world == nil {
		return nil, ErrNoContext
	}
	return s.world, nil
}

func (s *Session) terminate() error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := w.Destroy(); err != nil {
		return err
	}
	s.metrics.WorldDestroyed(s.attrs())
	s.world = nil
	return nil
}

// Finalize requests world destruction, which unblocks anything still
// pending in the world, and clears the context. Calling it twice is a guest
// contract violation surfaced as a missing-context fault.
func (s *Session) Finalize() error {
	s.log.Debugw("MPI_Finalize", "rank", s.rank)
	return s.terminate()
}

// Abort tears the world down exactly like Finalize; the error code is
// recorded but the instance terminates either way.
func (s *Session) Abort(comm uint32, errorCode int32) error {
	s.log.Debugw("MPI_Abort", "rank", s.rank, "code", errorCode)
	return s.terminate()
}

// GetVersion is explicitly unsupported.
func (s *Session) GetVersion(versionPtr, subversionPtr uint32) error {
	return s.unsupported("MPI_Get_version")
}

// CommSize writes the number of ranks in the communicator.
func (s *Session) CommSize(commPtr, resPtr uint32) error {
	w, err := s.active()
	if err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	s.log.Debugw("MPI_Comm_size", "rank", s.rank)
	return s.mem.WriteUint32(resPtr, uint32(w.Size()))
}

// CommRank writes the rank of the caller.
func (s *Session) CommRank(commPtr, resPtr uint32) error {
	if _, err := s.active(); err != nil {
		return err
	}
	if err := s.checkComm(commPtr); err != nil {
		return err
	}
	s.log.Debugw("MPI_Comm_rank", "rank", s.rank)
	return s.mem.WriteUint32(resPtr, uint32(s.rank))
}

// CommFree is structurally inert: communicator storage is owned by the
// guest and deallocation is handled outside this layer.
func (s *Session) CommFree(commPtr uint32) error {
	s.log.Debugw("MPI_Comm_free", "rank", s.rank)
	return nil
}

// checkComm faults unless the descriptor names the single recognised
// full-world communicator.
func (s *Session) checkComm(ptr uint32) error {
	if err := s.checkMemory(); err != nil {
		return err
	}
	id, err := abi.ReadCommunicator(s.mem, ptr)
	if err != nil {
		return err
	}
	if id != abi.CommWorld {
		return &CommError{ID: id}
	}
	return nil
}

func (s *Session) checkMemory() error {
	if s.mem == nil {
		return ErrNoGuestMemory
	}
	return nil
}

func (s *Session) datatype(ptr uint32) (coord.Datatype, error) {
	if err := s.checkMemory(); err != nil {
		return coord.Datatype{}, err
	}
	return abi.ReadDatatype(s.mem, ptr)
}

func (s *Session) unsupported(call string) error {
	return &CallError{Call: call, Err: ErrUnsupported}
}

func (s *Session) attrs() map[string]string {
	m := map[string]string{labelRank: strconv.Itoa(s.rank)}
	if s.placement != nil {
		m[labelWorld] = strconv.FormatInt(int64(s.placement.WorldID), 10)
	}
	return m
}
