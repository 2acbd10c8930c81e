package rxflow

import (
	"sync/atomic"

	"code.hybscloud.com/lfq"
)

// lfqQueue adapts code.hybscloud.com/lfq's lock-free SPSC ring buffer to
// the operator's Queue contract. lfq deliberately has no Size/IsEmpty of
// its own (an accurate length on a lock-free queue needs cross-core
// synchronization the library isn't willing to pay for), so this wrapper
// tracks an approximate count itself with a plain atomic counter kept in
// step with each successful Enqueue/Dequeue.
type lfqQueue struct {
	q     *lfq.SPSC[Item]
	count atomic.Int64
}

// DefaultQueueFactory builds the library's out-of-the-box bounded queue.
// Callers that need a different backing structure (a channel, a ring
// buffer of their own) supply their own QueueFactory via
// WithQueueFactory instead.
func DefaultQueueFactory(capacity int) Queue {
	if capacity < 2 {
		capacity = 2
	}
	return &lfqQueue{q: lfq.NewSPSC[Item](capacity)}
}

func (lq *lfqQueue) Offer(item Item) bool {
	if err := lq.q.Enqueue(&item); err != nil {
		return false
	}
	lq.count.Add(1)
	return true
}

func (lq *lfqQueue) Poll() (Item, bool) {
	item, err := lq.q.Dequeue()
	if err != nil {
		return Item{}, false
	}
	lq.count.Add(-1)
	return item, true
}

func (lq *lfqQueue) Clear() {
	for {
		if _, ok := lq.Poll(); !ok {
			return
		}
	}
}

func (lq *lfqQueue) IsEmpty() bool {
	return lq.count.Load() <= 0
}

func (lq *lfqQueue) Size() int {
	n := lq.count.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
