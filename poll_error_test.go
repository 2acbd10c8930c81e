package rxflow

import "testing"

// panickingQueue offers normally but panics on Poll after a fixed number
// of successful polls, modelling a caller-supplied queue implementation
// that misbehaves.
type panickingQueue struct {
	items    []Item
	index    int
	panicAt  int
	panicErr error
}

func newPanickingQueue(panicAt int, panicErr error) *panickingQueue {
	return &panickingQueue{panicAt: panicAt, panicErr: panicErr}
}

func (q *panickingQueue) Offer(item Item) bool {
	q.items = append(q.items, item)
	return true
}

func (q *panickingQueue) Poll() (Item, bool) {
	if q.index == q.panicAt {
		// The corrupt slot itself is skipped, modelling an implementation
		// that panics on one bad element but recovers its own internal
		// state for the ones after it.
		q.index++
		panic(q.panicErr)
	}
	if q.index >= len(q.items) {
		return Item{}, false
	}
	item := q.items[q.index]
	q.index++
	return item, true
}

func (q *panickingQueue) Clear()        { q.index = len(q.items) }
func (q *panickingQueue) IsEmpty() bool { return q.index >= len(q.items) }
func (q *panickingQueue) Size() int     { return len(q.items) - q.index }

func TestPollPanicDeliversPollErrorAndDiscardsRest(t *testing.T) {
	boom := NewIllegalArgumentError("queue implementation blew up")
	var q *panickingQueue

	values := []interface{}{1, 2, 3, 4, 5}
	var discarded []interface{}
	publisher := publisherFunc(func(s Subscriber) {
		sub := &scriptedSubscription{values: values, downstream: s}
		s.OnSubscribe(sub)
	})
	op := New(publisher,
		WithPrefetch(8),
		WithQueueFactory(func(int) Queue {
			q = newPanickingQueue(2, boom)
			return q
		}),
		WithOnDiscard(func(v interface{}) {
			discarded = append(discarded, v)
		}),
	)
	collector := NewCollectSubscriber(1000)
	op.Subscribe(collector)

	if collector.Completed {
		t.Fatalf("expected no completion")
	}
	pollErr, ok := collector.Err.(*PollError)
	if !ok {
		t.Fatalf("Err = %v (%T), want *PollError", collector.Err, collector.Err)
	}
	if pollErr.Unwrap() != boom {
		t.Fatalf("Unwrap() = %v, want %v", pollErr.Unwrap(), boom)
	}
	if len(collector.Snapshot()) != 2 {
		t.Fatalf("len(values) = %d, want 2 (delivered before the panicking poll)", len(collector.Snapshot()))
	}
	if len(discarded) != 2 {
		t.Fatalf("len(discarded) = %d, want 2 (queued elements after the lost, panicking one)", len(discarded))
	}
}

func TestConditionalPollPanicDeliversPollError(t *testing.T) {
	boom := NewIllegalArgumentError("queue implementation blew up")
	var q *panickingQueue

	values := []interface{}{1, 2, 3, 4}
	publisher := publisherFunc(func(s Subscriber) {
		sub := &scriptedSubscription{values: values, downstream: s}
		s.OnSubscribe(sub)
	})
	op := New(publisher,
		WithPrefetch(8),
		WithQueueFactory(func(int) Queue {
			q = newPanickingQueue(1, boom)
			return q
		}),
	)
	filter := NewFilterSubscriber(1000, func(v interface{}) bool { return true })
	op.Subscribe(filter)

	if filter.Completed {
		t.Fatalf("expected no completion")
	}
	if _, ok := filter.Err.(*PollError); !ok {
		t.Fatalf("Err = %v (%T), want *PollError", filter.Err, filter.Err)
	}
}
