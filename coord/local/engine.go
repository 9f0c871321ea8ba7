// Package local provides an in-process coordination engine: worlds are
// registered in one process and ranks run as goroutines. It backs the
// single-host deployment and every package test; a distributed engine
// satisfies the same coord contract.
package local

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joshuafried/faasm/coord"
)

// Engine keeps an explicit registry of live worlds keyed by world id:
// created on init, looked up on join, removed on destroy.
type Engine struct {
	log *zap.SugaredLogger

	mu     sync.Mutex
	worlds map[int32]*World
}

var _ coord.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger installs a structured logger; the default discards everything.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine constructs an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:    zap.NewNop().Sugar(),
		worlds: make(map[int32]*World),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newGID derives a random 31-bit world identifier from a UUID.
func newGID() int32 {
	u := uuid.New()
	id := int32(binary.BigEndian.Uint32(u[:4]) &^ (1 << 31))
	if id == 0 {
		id = 1
	}
	return id
}

// CreateWorld provisions a new world of p.WorldSize ranks, assigns the
// caller rank zero and records the generated world id on the placement.
func (e *Engine) CreateWorld(p *coord.Placement) (coord.World, error) {
	if p == nil || p.WorldSize <= 0 {
		return nil, fmt.Errorf("local: world creation requires a positive size")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := newGID()
	for {
		if _, taken := e.worlds[id]; !taken {
			break
		}
		id = newGID()
	}

	w := newWorld(e, id, int(p.WorldSize), e.log)
	e.worlds[id] = w
	p.WorldID = id
	p.Rank = 0

	e.log.Debugw("world created", "world", id, "size", p.WorldSize)
	return w, nil
}

// JoinWorld attaches the caller to an existing world at the rank its
// spawner assigned.
func (e *Engine) JoinWorld(p *coord.Placement) (coord.World, error) {
	if p == nil {
		return nil, fmt.Errorf("local: join requires a placement record")
	}

	e.mu.Lock()
	w, ok := e.worlds[p.WorldID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("local: unknown world id %d", p.WorldID)
	}
	if err := w.checkRank(int(p.Rank)); err != nil {
		return nil, err
	}

	e.log.Debugw("world joined", "world", p.WorldID, "rank", p.Rank)
	return w, nil
}

func (e *Engine) remove(id int32) {
	e.mu.Lock()
	delete(e.worlds, id)
	e.mu.Unlock()
}

// Close destroys every remaining world, unblocking anything still pending.
func (e *Engine) Close() error {
	e.mu.Lock()
	remaining := make([]*World, 0, len(e.worlds))
	for _, w := range e.worlds {
		remaining = append(remaining, w)
	}
	e.mu.Unlock()

	for _, w := range remaining {
		_ = w.Destroy()
	}
	return nil
}
