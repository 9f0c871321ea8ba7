package local

import (
	"fmt"

	"github.com/joshuafried/faasm/coord"
)

// Collectives are built on the engine's own pair queues under a separate
// message class, with rank zero acting as the interior root where one is
// needed. Every rank in the world issues each collective in the same
// program order, so per-pair FIFO matching is sufficient.

// aliased reports whether two buffers share a backing array, which is how
// an in-place collective reaches the engine: the host layer resolves the
// in-place sentinel to a single view before delegating.
func aliased(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// Barrier blocks until every rank has arrived: an empty gather to rank zero
// followed by an empty broadcast back out.
func (w *World) Barrier(rank int) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	if rank == 0 {
		for r := 1; r < w.size; r++ {
			if err := w.consume(r, 0, classCollective, nil, nil); err != nil {
				return err
			}
		}
		for r := 1; r < w.size; r++ {
			if _, err := w.post(0, r, classCollective, nil); err != nil {
				return err
			}
		}
		return nil
	}
	if _, err := w.post(rank, 0, classCollective, nil); err != nil {
		return err
	}
	return w.consume(0, rank, classCollective, nil, nil)
}

// Broadcast distributes the root's buffer to every rank.
func (w *World) Broadcast(root, rank int, buf []byte, dt coord.Datatype, count int) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	if err := w.checkRank(root); err != nil {
		return err
	}
	n := count * int(dt.Size)
	if rank == root {
		for r := 0; r < w.size; r++ {
			if r == root {
				continue
			}
			if _, err := w.post(root, r, classCollective, buf[:n]); err != nil {
				return err
			}
		}
		return nil
	}
	return w.consume(root, rank, classCollective, buf[:n], nil)
}

// Scatter slices the root's send buffer into per-rank blocks.
func (w *World) Scatter(root, rank int, send []byte, sendType coord.Datatype, sendCount int,
	recv []byte, recvType coord.Datatype, recvCount int) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	if err := w.checkRank(root); err != nil {
		return err
	}
	block := sendCount * int(sendType.Size)
	if rank == root {
		if len(send) < w.size*block {
			return fmt.Errorf("local: scatter root buffer holds %d bytes, need %d",
				len(send), w.size*block)
		}
		for r := 0; r < w.size; r++ {
			chunk := send[r*block : (r+1)*block]
			if r == root {
				copy(recv[:recvCount*int(recvType.Size)], chunk)
				continue
			}
			if _, err := w.post(root, r, classCollective, chunk); err != nil {
				return err
			}
		}
		return nil
	}
	return w.consume(root, rank, classCollective, recv[:recvCount*int(recvType.Size)], nil)
}

// Gather collects one block from every rank into the root's receive buffer
// in rank order. An in-place root leaves its own contribution resident.
func (w *World) Gather(rank, root int, send []byte, sendType coord.Datatype, sendCount int,
	recv []byte, recvType coord.Datatype, recvCount int) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	if err := w.checkRank(root); err != nil {
		return err
	}
	if rank != root {
		return w.sendToRoot(rank, root, send, sendType, sendCount)
	}
	block := recvCount * int(recvType.Size)
	if len(recv) < w.size*block {
		return fmt.Errorf("local: gather root buffer holds %d bytes, need %d",
			len(recv), w.size*block)
	}
	inPlace := aliased(send, recv)
	for r := 0; r < w.size; r++ {
		chunk := recv[r*block : (r+1)*block]
		if r == rank {
			if !inPlace {
				copy(chunk, send[:sendCount*int(sendType.Size)])
			}
			continue
		}
		if err := w.consume(r, root, classCollective, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) sendToRoot(rank, root int, send []byte, dt coord.Datatype, count int) error {
	_, err := w.post(rank, root, classCollective, send[:count*int(dt.Size)])
	return err
}

// AllGather gathers every rank's block at rank zero and broadcasts the
// assembled buffer back out. An in-place caller contributes the block
// already resident at its own offset of the receive buffer.
func (w *World) AllGather(rank int, send []byte, sendType coord.Datatype, sendCount int,
	recv []byte, recvType coord.Datatype, recvCount int) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	block := recvCount * int(recvType.Size)
	if len(recv) < w.size*block {
		return fmt.Errorf("local: allgather buffer holds %d bytes, need %d",
			len(recv), w.size*block)
	}
	if aliased(send, recv) {
		send = recv[rank*block : (rank+1)*block]
		sendType, sendCount = recvType, recvCount
	}
	if err := w.Gather(rank, 0, send, sendType, sendCount, recv, recvType, recvCount); err != nil {
		return err
	}
	full := w.size * recvCount
	return w.Broadcast(0, rank, recv[:w.size*block], recvType, full)
}

// Reduce folds every rank's contribution at the root, applying the operator
// in ascending rank order for a deterministic result.
func (w *World) Reduce(rank, root int, send, recv []byte, dt coord.Datatype, count int, op coord.Op) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	if err := w.checkRank(root); err != nil {
		return err
	}
	n := count * int(dt.Size)
	if rank != root {
		return w.sendToRoot(rank, root, send, dt, count)
	}
	if !aliased(send, recv) {
		copy(recv[:n], send[:n])
	}
	scratch := w.pool.get(n)
	defer w.pool.put(scratch)
	for r := 0; r < w.size; r++ {
		if r == root {
			continue
		}
		if err := w.consume(r, root, classCollective, scratch[:n], nil); err != nil {
			return err
		}
		if err := combine(recv[:n], scratch[:n], dt, count, op); err != nil {
			return err
		}
	}
	return nil
}

// AllReduce reduces at rank zero and broadcasts the result.
func (w *World) AllReduce(rank int, send, recv []byte, dt coord.Datatype, count int, op coord.Op) error {
	if err := w.Reduce(rank, 0, send, recv, dt, count, op); err != nil {
		return err
	}
	return w.Broadcast(0, rank, recv[:count*int(dt.Size)], dt, count)
}

// Scan computes the inclusive prefix reduction: rank r receives the partial
// result over ranks 0..r-1 from its predecessor, folds in its own
// contribution and forwards the running value.
func (w *World) Scan(rank int, send, recv []byte, dt coord.Datatype, count int, op coord.Op) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	n := count * int(dt.Size)
	if !aliased(send, recv) {
		copy(recv[:n], send[:n])
	}
	if rank > 0 {
		scratch := w.pool.get(n)
		if err := w.consume(rank-1, rank, classCollective, scratch[:n], nil); err != nil {
			w.pool.put(scratch)
			return err
		}
		err := combine(recv[:n], scratch[:n], dt, count, op)
		w.pool.put(scratch)
		if err != nil {
			return err
		}
	}
	if rank < w.size-1 {
		if _, err := w.post(rank, rank+1, classCollective, recv[:n]); err != nil {
			return err
		}
	}
	return nil
}

// AllToAll exchanges block j of every rank's send buffer with rank j. All
// outgoing blocks are posted before any receive, so the exchange cannot
// deadlock.
func (w *World) AllToAll(rank int, send []byte, sendType coord.Datatype, sendCount int,
	recv []byte, recvType coord.Datatype, recvCount int) error {
	if err := w.checkAlive(); err != nil {
		return err
	}
	sblock := sendCount * int(sendType.Size)
	rblock := recvCount * int(recvType.Size)
	if len(send) < w.size*sblock || len(recv) < w.size*rblock {
		return fmt.Errorf("local: alltoall buffers hold (%d, %d) bytes, need (%d, %d)",
			len(send), len(recv), w.size*sblock, w.size*rblock)
	}
	for r := 0; r < w.size; r++ {
		if r == rank {
			continue
		}
		if _, err := w.post(rank, r, classCollective, send[r*sblock:(r+1)*sblock]); err != nil {
			return err
		}
	}
	copy(recv[rank*rblock:(rank+1)*rblock], send[rank*sblock:(rank+1)*sblock])
	for r := 0; r < w.size; r++ {
		if r == rank {
			continue
		}
		if err := w.consume(r, rank, classCollective, recv[r*rblock:(r+1)*rblock], nil); err != nil {
			return err
		}
	}
	return nil
}
