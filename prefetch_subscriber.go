package rxflow

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// prefetchSubscriber is the plain (non-conditional) downstream shape of
// the prefetch operator (C4). It is both a Subscriber (receiving
// upstream signals) and a QueueSubscription (the subscription it hands
// to its own downstream), the same dual role the drain loop's original
// source gives PrefetchSubscriber.
type prefetchSubscriber struct {
	downstream   Subscriber
	prefetch     int
	limit        int
	requestMode  RequestMode
	queueFactory QueueFactory
	logger       *zap.Logger
	onDiscard    func(interface{})

	upstream Subscription
	queue    Queue

	// sourceMode, outputFused and firstRequest are set once during
	// onSubscribe/requestFusion, before the subscription is published
	// to more than one goroutine at a time; after that point they are
	// only read, except firstRequest which Poll flips on the fused
	// downstream's first poll.
	sourceMode   FusionMode
	outputFused  bool
	firstRequest bool

	requested atomic.Int64
	wip       atomic.Int32
	cancelled atomic.Bool
	done      atomic.Bool
	// error is a plain field deliberately: it is always written before
	// the atomic Store of done, and readers always check done (or
	// cancelled) first, so done's atomic store/load pair acts as the
	// release/acquire barrier for error.
	error error

	discardGuard atomic.Int32

	produced int64
}

func newPrefetchSubscriber(downstream Subscriber, cfg Config) *prefetchSubscriber {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	qf := cfg.QueueFactory
	if qf == nil {
		qf = DefaultQueueFactory
	}
	ps := &prefetchSubscriber{
		downstream:   downstream,
		prefetch:     cfg.Prefetch,
		limit:        unboundedOrLimit(cfg.Prefetch, cfg.LowTide),
		requestMode:  cfg.RequestMode,
		queueFactory: qf,
		logger:       logger,
		onDiscard:    cfg.OnDiscard,
		sourceMode:   fusionUnset,
		firstRequest: true,
	}
	ps.requested.Store(requestedUnset)
	return ps
}

func (ps *prefetchSubscriber) OnSubscribe(s Subscription) {
	if ps.upstream != nil {
		s.Cancel()
		ps.fail(NewIllegalArgumentError("onSubscribe called more than once"))
		return
	}
	ps.upstream = s

	ps.wip.Store(1)
	ps.downstream.OnSubscribe(ps)

	if ps.cancelled.Load() {
		ps.discardOnTerminate()
		return
	}

	if ps.sourceMode == fusionUnset {
		if qs, ok := s.(QueueSubscription); ok {
			switch qs.RequestFusion(FusionAny) {
			case FusionSync:
				ps.sourceMode = FusionSync
				ps.queue = &queueSubscriptionAdapter{qs}
				ps.done.Store(true)
				if ps.wip.Load() == 1 && ps.wip.Add(-1) == 0 {
					return
				}
				ps.drainSync()
				return
			case FusionAsync:
				ps.sourceMode = FusionAsync
				ps.queue = &queueSubscriptionAdapter{qs}
				if ps.requestMode == RequestEager {
					ps.upstream.Request(unboundedOrPrefetch(ps.prefetch))
				}
				if ps.wip.Load() == 1 && ps.wip.Add(-1) == 0 {
					return
				}
				ps.drainAsync()
				return
			}
		}

		// A Request made from inside downstream.OnSubscribe ran while
		// sourceMode was still unset, so it could not issue the LAZY
		// initial request itself; it is issued here instead.
		requestedEarly := ps.requested.Load() != requestedUnset
		ps.sourceMode = FusionNone
		ps.queue = ps.queueFactory(queueCapacity(ps.prefetch))
		if ps.requestMode == RequestEager || requestedEarly {
			ps.upstream.Request(unboundedOrPrefetch(ps.prefetch))
		}
		if ps.wip.Load() == 1 && ps.wip.Add(-1) == 0 {
			return
		}
		ps.drainAsync()
		return
	}
	if ps.requestMode == RequestEager && ps.sourceMode == FusionNone {
		ps.upstream.Request(unboundedOrPrefetch(ps.prefetch))
	}
}

func (ps *prefetchSubscriber) OnNext(value interface{}) {
	if ps.sourceMode == FusionAsync {
		ps.drain(nil)
		return
	}
	if ps.done.Load() {
		return
	}
	if ps.cancelled.Load() {
		ps.discard(CreateItem(value))
		return
	}
	item := CreateItem(value)
	if !ps.queue.Offer(item) {
		ps.discard(item)
		ps.error = NewBackpressureOverflowError("queue full: offer rejected element")
		ps.done.Store(true)
	}
	ps.drain(&item)
}

func (ps *prefetchSubscriber) OnError(err error) {
	if ps.done.Load() {
		return
	}
	ps.error = err
	ps.done.Store(true)
	ps.drain(nil)
}

func (ps *prefetchSubscriber) OnComplete() {
	if ps.done.Load() {
		return
	}
	ps.done.Store(true)
	ps.drain(nil)
}

func (ps *prefetchSubscriber) Request(n int64) {
	if n <= 0 {
		ps.fail(NewIllegalArgumentError("request(n) called with n<=0"))
		return
	}
	_, first := addRequest(&ps.requested, n)
	if first && ps.requestMode == RequestLazy && ps.sourceMode == FusionNone {
		ps.upstream.Request(unboundedOrPrefetch(ps.prefetch))
	}
	ps.drain(nil)
}

func (ps *prefetchSubscriber) Cancel() {
	if ps.cancelled.Swap(true) {
		return
	}
	if ps.upstream != nil {
		ps.upstream.Cancel()
	}
	if ps.wip.Add(1) == 1 {
		if ps.sourceMode == FusionAsync {
			if ps.queue != nil {
				ps.queue.Clear()
			}
		} else if !ps.outputFused {
			ps.discardQueuePerElement()
		} else if ps.sourceMode == FusionSync && ps.queue != nil {
			ps.queue.Clear()
		}
	}
}

// fail is the protocol-violation path: cancel upstream (if any) and
// surface the error downstream exactly once.
func (ps *prefetchSubscriber) fail(err error) {
	if ps.upstream != nil {
		ps.upstream.Cancel()
	}
	ps.OnError(err)
}

func (ps *prefetchSubscriber) drain(dataSignal *Item) {
	if ps.wip.Add(1) != 1 {
		if ps.cancelled.Load() {
			if ps.sourceMode == FusionAsync {
				ps.queue.Clear()
			} else if dataSignal != nil {
				ps.discard(*dataSignal)
			}
		}
		return
	}
	if ps.outputFused {
		ps.drainOutput()
	} else if ps.sourceMode == FusionSync {
		ps.drainSync()
	} else {
		ps.drainAsync()
	}
}

func (ps *prefetchSubscriber) drainSync() {
	emitted := ps.produced
	missed := int32(1)
	for {
		requested := ps.requested.Load()
		for emitted != requested {
			item, ok, pollErr := pollElement(ps.queue)
			if pollErr != nil {
				ps.failPoll(pollErr)
				return
			}
			if ps.cancelled.Load() {
				if ok {
					ps.discard(item)
				}
				ps.discardOnTerminate()
				return
			}
			if !ok {
				ps.downstream.OnComplete()
				return
			}
			ps.downstream.OnNext(item.GetValue())
			emitted++
		}

		if ps.cancelled.Load() {
			ps.discardOnTerminate()
			return
		}
		if ps.queue.IsEmpty() {
			ps.downstream.OnComplete()
			return
		}

		w := ps.wip.Load()
		if missed == w {
			ps.produced = emitted
			missed = ps.wip.Add(-missed)
			if missed == 0 {
				return
			}
		} else {
			missed = w
		}
	}
}

func (ps *prefetchSubscriber) drainAsync() {
	emitted := ps.produced
	missed := int32(1)
	for {
		requested := ps.requested.Load() & demandMask
		for emitted != requested {
			item, ok, pollErr := pollElement(ps.queue)
			if pollErr != nil {
				ps.failPoll(pollErr)
				return
			}
			if ps.checkTerminated(ps.done.Load(), !ok, itemPtr(item, ok)) {
				return
			}
			if !ok {
				break
			}
			ps.downstream.OnNext(item.GetValue())
			emitted++

			if emitted == int64(ps.limit) {
				if requested != unbounded {
					requested = ps.requested.Add(-emitted) & demandMask
				}
				ps.upstream.Request(emitted)
				emitted = 0
			}
		}

		if emitted == requested && ps.checkTerminated(ps.done.Load(), ps.queue.IsEmpty(), nil) {
			return
		}

		w := ps.wip.Load()
		if missed == w {
			ps.produced = emitted
			missed = ps.wip.Add(-missed)
			if missed == 0 {
				return
			}
		} else {
			missed = w
		}
	}
}

func (ps *prefetchSubscriber) drainOutput() {
	missed := int32(1)
	for {
		if ps.cancelled.Load() {
			ps.Clear()
			return
		}

		ps.downstream.OnNext(nil)

		if ps.done.Load() {
			if ps.error != nil {
				ps.downstream.OnError(ps.error)
			} else {
				ps.downstream.OnComplete()
			}
			return
		}

		w := ps.wip.Add(-missed)
		missed = w
		if missed == 0 {
			return
		}
	}
}

// failPoll is the terminal path for a caller-supplied queue's Poll
// raising a non-fatal error: cancel upstream, discard whatever remains
// queued, and deliver exactly one downstream.OnError, mirroring
// FluxPrefetch.java's drainAsync catch block.
func (ps *prefetchSubscriber) failPoll(cause error) {
	ps.upstream.Cancel()
	ps.discardOnTerminate()
	ps.error = NewPollError(cause)
	ps.done.Store(true)
	ps.downstream.OnError(ps.error)
}

func (ps *prefetchSubscriber) checkTerminated(done, empty bool, value *Item) bool {
	if ps.cancelled.Load() {
		if value != nil {
			ps.discard(*value)
		}
		ps.discardOnTerminate()
		return true
	}
	if done {
		if ps.error != nil {
			if value != nil {
				ps.discard(*value)
			}
			ps.discardOnTerminate()
			ps.downstream.OnError(ps.error)
			return true
		}
		if empty {
			ps.downstream.OnComplete()
			return true
		}
	}
	return false
}

// discardOnTerminate clears the queue on a terminal/cancel path,
// dispatching by source ownership: ASYNC-fused queues are borrowed from
// upstream and cleared without a per-element hook (upstream's clear
// already guarantees no racing consumer), everything else is ours to
// walk element-by-element.
func (ps *prefetchSubscriber) discardOnTerminate() {
	if ps.sourceMode == FusionAsync {
		if ps.queue != nil {
			ps.queue.Clear()
		}
		return
	}
	ps.discardQueuePerElement()
}

func (ps *prefetchSubscriber) discardQueuePerElement() {
	if ps.queue == nil {
		return
	}
	n := 0
	for {
		item, ok, pollErr := pollElement(ps.queue)
		if pollErr != nil {
			ps.logger.Warn("queue panicked while discarding, abandoning the rest", zap.Error(pollErr))
			break
		}
		if !ok {
			break
		}
		ps.discard(item)
		n++
	}
	if n > 0 {
		ps.logger.Warn("discarded queued elements on terminate", zap.Int("count", n))
	}
}

func (ps *prefetchSubscriber) discard(item Item) {
	if ps.onDiscard != nil {
		ps.onDiscard(item.GetValue())
	}
}

// Clear is the fuseable downstream's discard entry point. ASYNC-fused
// queues are cleared directly (the upstream owns them); SYNC-fused
// queues are cleared without a per-element hook since the downstream
// owned polling up to this point and nothing of ours remains to
// account for. The NONE case still owns per-element accounting and is
// guarded by discardGuard so a racing drain and a racing downstream
// Clear still complete exactly once between them.
func (ps *prefetchSubscriber) Clear() {
	if ps.sourceMode == FusionAsync {
		if ps.queue != nil {
			ps.queue.Clear()
		}
		return
	}
	if ps.sourceMode == FusionSync {
		if ps.queue != nil {
			ps.queue.Clear()
		}
		return
	}
	if ps.discardGuard.Add(1) != 1 {
		return
	}
	missed := int32(1)
	for {
		ps.discardQueuePerElement()
		w := ps.discardGuard.Load()
		if missed == w {
			missed = ps.discardGuard.Add(-missed)
			if missed == 0 {
				return
			}
		} else {
			missed = w
		}
	}
}

func (ps *prefetchSubscriber) IsEmpty() bool {
	return ps.queue.IsEmpty()
}

func (ps *prefetchSubscriber) Size() int {
	return ps.queue.Size()
}

func (ps *prefetchSubscriber) Poll() (Item, bool) {
	if ps.sourceMode == FusionNone && ps.requestMode == RequestLazy && ps.firstRequest {
		ps.firstRequest = false
		ps.upstream.Request(unboundedOrPrefetch(ps.prefetch))
	}
	item, ok := ps.queue.Poll()
	if ok && ps.sourceMode != FusionSync {
		p := ps.produced + 1
		if p == int64(ps.limit) {
			ps.produced = 0
			ps.upstream.Request(p)
		} else {
			ps.produced = p
		}
	}
	return item, ok
}

func (ps *prefetchSubscriber) RequestFusion(requestedMode FusionMode) FusionMode {
	if qs, ok := ps.upstream.(QueueSubscription); ok {
		mode := qs.RequestFusion(requestedMode)
		switch mode {
		case FusionSync:
			ps.sourceMode = FusionSync
			ps.queue = &queueSubscriptionAdapter{qs}
			ps.outputFused = true
			ps.done.Store(true)
		case FusionAsync:
			ps.sourceMode = FusionAsync
			ps.queue = &queueSubscriptionAdapter{qs}
			ps.outputFused = true
		default:
			ps.sourceMode = FusionNone
			ps.queue = ps.queueFactory(queueCapacity(ps.prefetch))
			if requestedMode == FusionAsync || requestedMode == FusionAny {
				ps.outputFused = true
				mode = FusionAsync
			} else {
				mode = FusionNone
			}
		}
		// Releasing WIP here, rather than after the whole
		// initialisation sequence settles, can let drainOutput fire a
		// spurious OnNext(nil) poke before the downstream is ready for
		// one. Downstream implementations tolerate an early poke that
		// finds nothing queued, so this is left as-is.
		ps.wip.Store(0)
		return mode
	}

	ps.sourceMode = FusionNone
	ps.queue = ps.queueFactory(queueCapacity(ps.prefetch))
	mode := FusionNone
	if requestedMode == FusionAsync || requestedMode == FusionAny {
		ps.outputFused = true
		mode = FusionAsync
	}
	ps.wip.Store(0)
	return mode
}

func itemPtr(item Item, ok bool) *Item {
	if !ok {
		return nil
	}
	return &item
}
