package local

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/joshuafried/faasm/coord"
	"github.com/joshuafried/faasm/internal/cart"
)

// ErrWorldDestroyed fails any operation still pending when its world is torn
// down. Destruction is the only cancellation mechanism; there are no
// per-call timeouts.
var ErrWorldDestroyed = errors.New("local: world destroyed")

// msgClass separates application point-to-point traffic from the engine's
// internal collective exchanges so the two never interleave on a rank pair.
type msgClass uint8

const (
	classP2P msgClass = iota
	classCollective
)

type queueKey struct {
	src   int
	dst   int
	class msgClass
}

type asyncOp struct {
	done <-chan struct{}
	err  error // written before done closes
}

// World is one in-process communication session. Messages between an
// ordered rank pair are matched strictly FIFO within their class.
type World struct {
	engine  *Engine
	log     *zap.SugaredLogger
	id      int32
	size    int
	created time.Time

	qmu    sync.Mutex
	queues map[queueKey]*messageQueue

	reqMu    sync.Mutex
	requests map[coord.RequestID]*asyncOp
	reqSeq   int32

	pool      *bufferPool
	done      chan struct{}
	destroyed atomic.Bool
}

var _ coord.World = (*World)(nil)

func newWorld(e *Engine, id int32, size int, log *zap.SugaredLogger) *World {
	return &World{
		engine:   e,
		log:      log,
		id:       id,
		size:     size,
		created:  time.Now(),
		queues:   make(map[queueKey]*messageQueue),
		requests: make(map[coord.RequestID]*asyncOp),
		pool:     newBufferPool(64),
		done:     make(chan struct{}),
	}
}

// ID returns the world identifier.
func (w *World) ID() int32 { return w.id }

// Size returns the number of ranks in the world.
func (w *World) Size() int { return w.size }

func (w *World) queue(src, dst int, class msgClass) *messageQueue {
	key := queueKey{src: src, dst: dst, class: class}
	w.qmu.Lock()
	defer w.qmu.Unlock()
	q, ok := w.queues[key]
	if !ok {
		q = newMessageQueue()
		w.queues[key] = q
	}
	return q
}

func (w *World) checkAlive() error {
	if w.destroyed.Load() {
		return ErrWorldDestroyed
	}
	return nil
}

func (w *World) checkRank(rank int) error {
	if rank < 0 || rank >= w.size {
		return fmt.Errorf("local: rank %d outside world %d of size %d", rank, w.id, w.size)
	}
	return nil
}

// post enqueues a copy of payload for (src -> dst) and returns the message
// so callers can observe delivery. It never blocks.
func (w *World) post(src, dst int, class msgClass, payload []byte) (*message, error) {
	if err := w.checkRank(src); err != nil {
		return nil, err
	}
	if err := w.checkRank(dst); err != nil {
		return nil, err
	}
	buf := w.pool.get(len(payload))
	copy(buf, payload)
	m := &message{payload: buf, delivered: make(chan struct{})}
	w.queue(src, dst, class).push(m)
	return m, nil
}

// consume pops the next (src -> dst) message and copies it into buf. A
// message larger than the receive buffer is an engine failure, not a
// truncation.
func (w *World) consume(src, dst int, class msgClass, buf []byte, status *coord.Status) error {
	if err := w.checkRank(src); err != nil {
		return err
	}
	if err := w.checkRank(dst); err != nil {
		return err
	}
	m, err := w.queue(src, dst, class).pop(w.done)
	if err != nil {
		return err
	}
	if len(m.payload) > len(buf) && len(m.payload) > 0 {
		return fmt.Errorf("local: message of %d bytes exceeds %d-byte receive buffer",
			len(m.payload), len(buf))
	}
	copy(buf, m.payload)
	if status != nil {
		*status = coord.Status{Source: int32(src), Bytes: int32(len(m.payload))}
	}
	close(m.delivered)
	w.pool.put(m.payload)
	return nil
}

// Send enqueues a point-to-point message. Buffered semantics: the call
// returns once the payload is copied, not once it is received.
func (w *World) Send(src, dst int, buf []byte, dt coord.Datatype, count int) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	_, err := w.post(src, dst, classP2P, buf[:count*int(dt.Size)])
	return err
}

// Recv blocks until the next message from src arrives and reports the
// transferred byte count through status.
func (w *World) Recv(src, dst int, buf []byte, dt coord.Datatype, count int, status *coord.Status) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	return w.consume(src, dst, classP2P, buf[:count*int(dt.Size)], status)
}

// SendRecv posts the outgoing message, then blocks on the incoming one. The
// post never blocks, so paired exchanges cannot deadlock.
func (w *World) SendRecv(sendBuf []byte, sendCount int, sendType coord.Datatype, dst int,
	recvBuf []byte, recvCount int, recvType coord.Datatype, src, rank int,
	status *coord.Status) error {
	if err := w.Send(rank, dst, sendBuf, sendType, sendCount); err != nil {
		return err
	}
	return w.Recv(src, rank, recvBuf, recvType, recvCount, status)
}

// Probe blocks until a message from src is pending and describes it through
// status without consuming it.
func (w *World) Probe(src, dst int, status *coord.Status) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	if err := w.checkRank(src); err != nil {
		return err
	}
	if err := w.checkRank(dst); err != nil {
		return err
	}
	m, err := w.queue(src, dst, classP2P).peek(w.done)
	if err != nil {
		return err
	}
	if status != nil {
		*status = coord.Status{Source: int32(src), Bytes: int32(len(m.payload))}
	}
	return nil
}

func (w *World) newRequest(op *asyncOp) coord.RequestID {
	w.reqMu.Lock()
	defer w.reqMu.Unlock()
	w.reqSeq++
	id := coord.RequestID(w.reqSeq)
	w.requests[id] = op
	return id
}

// ISend enqueues a message and returns a request handle that completes once
// a receiver has observed the payload.
func (w *World) ISend(src, dst int, buf []byte, dt coord.Datatype, count int) (coord.RequestID, error) {
	if err := w.checkAlive(); err != nil {
		return 0, err
	}
	m, err := w.post(src, dst, classP2P, buf[:count*int(dt.Size)])
	if err != nil {
		return 0, err
	}
	return w.newRequest(&asyncOp{done: m.delivered}), nil
}

// IRecv starts an asynchronous receive into buf and returns its handle. The
// guest must not touch buf until the matching wait returns.
func (w *World) IRecv(src, dst int, buf []byte, dt coord.Datatype, count int) (coord.RequestID, error) {
	if err := w.checkAlive(); err != nil {
		return 0, err
	}
	done := make(chan struct{})
	op := &asyncOp{done: done}
	id := w.newRequest(op)
	go func() {
		op.err = w.consume(src, dst, classP2P, buf[:count*int(dt.Size)], nil)
		close(done)
	}()
	return id, nil
}

// Await blocks until the request completes and invalidates its handle.
// Exactly one wait consumes each request.
func (w *World) Await(id coord.RequestID) error {
	w.reqMu.Lock()
	op, ok := w.requests[id]
	delete(w.requests, id)
	w.reqMu.Unlock()
	if !ok {
		return fmt.Errorf("local: unknown request id %d in world %d", id, w.id)
	}
	select {
	case <-op.done:
		return op.err
	case <-w.done:
		return ErrWorldDestroyed
	}
}

// RankFromCoords maps cartesian coordinates onto a rank.
func (w *World) RankFromCoords(coords []int) (int, error) {
	return cart.RankOf(coords, w.size)
}

// CartesianCoords synthesises the fixed two-dimensional grid position of a
// rank from world size alone. Both dimensions are periodic.
func (w *World) CartesianCoords(rank int) (dims, periods, coords [2]int, err error) {
	if err = w.checkRank(rank); err != nil {
		return
	}
	rows, cols := cart.Dims(w.size)
	dims = [2]int{rows, cols}
	periods = [2]int{1, 1}
	coords, err = cart.CoordsOf(rank, w.size)
	return
}

// ShiftCartesian reports the shifted source and destination ranks for a
// displacement along one grid direction.
func (w *World) ShiftCartesian(rank, direction, disp int) (source, dest int, err error) {
	if err := w.checkRank(rank); err != nil {
		return 0, 0, err
	}
	return cart.Shift(rank, direction, disp, w.size)
}

// WallTime reports seconds since world creation.
func (w *World) WallTime() float64 {
	return time.Since(w.created).Seconds()
}

// Destroy tears the world down. Every queue wait and request wait still
// pending unblocks with ErrWorldDestroyed. Safe to call from every rank.
func (w *World) Destroy() error {
	if !w.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.done)
	w.pool.close()
	w.engine.remove(w.id)
	w.log.Debugw("world destroyed", "world", w.id, "size", w.size)
	return nil
}
