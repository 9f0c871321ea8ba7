package local

import "sync"

// message is one in-flight transfer between an ordered rank pair. delivered
// closes once a receiver has copied the payload out, which is what completes
// the sender-side asynchronous request.
type message struct {
	payload   []byte
	delivered chan struct{}
}

// messageQueue is an unbounded FIFO for one (source, destination, class)
// triple. Only the destination rank's thread pops or peeks, so a single
// notification slot is enough to wake it.
type messageQueue struct {
	mu     sync.Mutex
	items  []*message
	notify chan struct{}
}

func newMessageQueue() *messageQueue {
	return &messageQueue{notify: make(chan struct{}, 1)}
}

func (q *messageQueue) push(m *message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes the head message, blocking until one arrives or the world is
// torn down.
func (q *messageQueue) pop(done <-chan struct{}) (*message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return m, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-done:
			return nil, ErrWorldDestroyed
		}
	}
}

// peek returns the head message without consuming it, blocking like pop.
func (q *messageQueue) peek(done <-chan struct{}) (*message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.mu.Unlock()
			return m, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
			// Put the token back so the later pop still wakes.
			select {
			case q.notify <- struct{}{}:
			default:
			}
		case <-done:
			return nil, ErrWorldDestroyed
		}
	}
}
