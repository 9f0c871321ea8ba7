package local

import "sync/atomic"

// bufferPool recycles payload buffers for message copies. Buffers are
// dispensed lazily and returned on delivery; anything beyond the pool's
// capacity is dropped for the garbage collector.
type bufferPool struct {
	pool   chan []byte
	closed atomic.Bool
}

func newBufferPool(capacity int) *bufferPool {
	if capacity < 0 {
		capacity = 0
	}
	return &bufferPool{pool: make(chan []byte, capacity)}
}

// get returns a buffer of length n, reusing a pooled allocation when one is
// large enough.
func (p *bufferPool) get(n int) []byte {
	if n == 0 {
		return nil
	}
	if p.closed.Load() {
		return make([]byte, n)
	}
	select {
	case b := <-p.pool:
		if cap(b) >= n {
			return b[:n]
		}
	default:
	}
	return make([]byte, n)
}

// put offers a buffer back for reuse.
func (p *bufferPool) put(b []byte) {
	if b == nil || p.closed.Load() {
		return
	}
	select {
	case p.pool <- b[:cap(b)]:
	default:
	}
}

func (p *bufferPool) close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for {
		select {
		case <-p.pool:
		default:
			return
		}
	}
}
