package rxflow

// Queue is the bounded, single-producer/single-consumer FIFO the
// operator is built around (C1). It is an external collaborator: the
// operator never implements one itself, only wires a supplied
// implementation (see DefaultQueueFactory for the out-of-the-box one).
type Queue interface {
	Offer(item Item) bool
	Poll() (Item, bool)
	Clear()
	IsEmpty() bool
	Size() int
}

// QueueFactory builds a Queue sized for the given capacity hint
// (typically the operator's prefetch window).
type QueueFactory func(capacity int) Queue

// pollElement calls queue.Poll under a recover guard: a caller-supplied
// Queue is external collaborator code the drain loop cannot trust not to
// panic. A panic carrying an error is treated as a non-fatal poll failure
// and reported through the second return value; anything else propagates
// unchanged, mirroring FluxPrefetch.java's Exceptions.throwIfFatal — this
// operator only ever catches what it can turn into a well-formed
// downstream.OnError.
func pollElement(queue Queue) (item Item, ok bool, pollErr error) {
	defer func() {
		if r := recover(); r != nil {
			if err, isErr := r.(error); isErr {
				pollErr = err
				return
			}
			panic(r)
		}
	}()
	item, ok = queue.Poll()
	return
}
