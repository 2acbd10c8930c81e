package rxflow

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// conditionalPrefetchSubscriber is the conditional downstream shape of
// the prefetch operator (C5): identical to prefetchSubscriber except
// its downstream may decline a value (TryOnNext returning false) without
// consuming demand. Replenishment is therefore driven by how many
// elements were polled, not by how many were accepted.
type conditionalPrefetchSubscriber struct {
	downstream   ConditionalSubscriber
	prefetch     int
	limit        int
	requestMode  RequestMode
	queueFactory QueueFactory
	logger       *zap.Logger
	onDiscard    func(interface{})

	upstream Subscription
	queue    Queue

	sourceMode   FusionMode
	outputFused  bool
	firstRequest bool

	requested atomic.Int64
	wip       atomic.Int32
	cancelled atomic.Bool
	done      atomic.Bool
	error     error

	discardGuard atomic.Int32

	produced int64
	consumed int64
}

func newConditionalPrefetchSubscriber(downstream ConditionalSubscriber, cfg Config) *conditionalPrefetchSubscriber {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	qf := cfg.QueueFactory
	if qf == nil {
		qf = DefaultQueueFactory
	}
	return &conditionalPrefetchSubscriber{
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
}

// OnSubscribe mirrors prefetchSubscriber's, with two deliberate
// differences: the EAGER re-subscribe check below covers every
// sourceMode except SYNC (plain's covers NONE only), and the LAZY
// initial request is issued from two places (once here, once in
// drain) rather than unified into one.
func (cs *conditionalPrefetchSubscriber) OnSubscribe(s Subscription) {
	if cs.upstream != nil {
		s.Cancel()
		cs.fail(NewIllegalArgumentError("onSubscribe called more than once"))
		return
	}
	cs.upstream = s

	cs.wip.Store(1)
	cs.downstream.OnSubscribe(cs)

	if cs.cancelled.Load() {
		cs.discardOnTerminate()
		return
	}

	if cs.sourceMode == fusionUnset {
		if qs, ok := s.(QueueSubscription); ok {
			switch qs.RequestFusion(FusionAny) {
			case FusionSync:
				cs.sourceMode = FusionSync
				cs.queue = &queueSubscriptionAdapter{qs}
				cs.done.Store(true)
				if cs.wip.Load() == 1 && cs.wip.Add(-1) == 0 {
					return
				}
				cs.drainSync()
				return
			case FusionAsync:
				cs.sourceMode = FusionAsync
				cs.queue = &queueSubscriptionAdapter{qs}
				if cs.requestMode == RequestEager {
					cs.upstream.Request(unboundedOrPrefetch(cs.prefetch))
				}
				if cs.wip.Load() == 1 && cs.wip.Add(-1) == 0 {
					return
				}
				if cs.requestMode == RequestLazy {
					cs.firstRequest = false
					cs.upstream.Request(unboundedOrPrefetch(cs.prefetch))
				}
				cs.drainAsync()
				return
			}
		}

		cs.sourceMode = FusionNone
		cs.queue = cs.queueFactory(queueCapacity(cs.prefetch))
		if cs.requestMode == RequestEager {
			cs.upstream.Request(unboundedOrPrefetch(cs.prefetch))
		}
		if cs.wip.Load() == 1 && cs.wip.Add(-1) == 0 {
			return
		}
		if cs.requestMode == RequestLazy {
			cs.firstRequest = false
			cs.upstream.Request(unboundedOrPrefetch(cs.prefetch))
		}
		cs.drainAsync()
		return
	}
	if cs.requestMode == RequestEager && cs.sourceMode != FusionSync {
		cs.upstream.Request(unboundedOrPrefetch(cs.prefetch))
	}
}

func (cs *conditionalPrefetchSubscriber) OnNext(value interface{}) {
	if cs.sourceMode == FusionAsync {
		cs.drain(nil)
		return
	}
	if cs.done.Load() {
		return
	}
	if cs.cancelled.Load() {
		cs.discard(CreateItem(value))
		return
	}
	item := CreateItem(value)
	if !cs.queue.Offer(item) {
		cs.discard(item)
		cs.error = NewBackpressureOverflowError("queue full: offer rejected element")
		cs.done.Store(true)
	}
	cs.drain(&item)
}

func (cs *conditionalPrefetchSubscriber) OnError(err error) {
	if cs.done.Load() {
		return
	}
	cs.error = err
	cs.done.Store(true)
	cs.drain(nil)
}

func (cs *conditionalPrefetchSubscriber) OnComplete() {
	if cs.done.Load() {
		return
	}
	cs.done.Store(true)
	cs.drain(nil)
}

// Request does not use the requested-field sentinel plain's does: the
// conditional variant's first-request detection lives in drain/onSubscribe
// instead (see the duplicated-logic note above).
func (cs *conditionalPrefetchSubscriber) Request(n int64) {
	if n <= 0 {
		cs.fail(NewIllegalArgumentError("request(n) called with n<=0"))
		return
	}
	for {
		previous := cs.requested.Load()
		next := addCap(previous, n)
		if cs.requested.CompareAndSwap(previous, next) {
			break
		}
	}
	cs.drain(nil)
}

func (cs *conditionalPrefetchSubscriber) Cancel() {
	if cs.cancelled.Swap(true) {
		return
	}
	if cs.upstream != nil {
		cs.upstream.Cancel()
	}
	if cs.wip.Add(1) == 1 {
		if cs.sourceMode == FusionAsync {
			if cs.queue != nil {
				cs.queue.Clear()
			}
		} else if !cs.outputFused {
			cs.discardQueuePerElement()
		} else if cs.sourceMode == FusionSync && cs.queue != nil {
			cs.queue.Clear()
		}
	}
}

func (cs *conditionalPrefetchSubscriber) fail(err error) {
	if cs.upstream != nil {
		cs.upstream.Cancel()
	}
	cs.OnError(err)
}

func (cs *conditionalPrefetchSubscriber) drain(dataSignal *Item) {
	if cs.wip.Add(1) != 1 {
		if cs.cancelled.Load() {
			if cs.sourceMode == FusionAsync {
				cs.queue.Clear()
			} else if dataSignal != nil {
				cs.discard(*dataSignal)
			}
		}
		return
	}
	if cs.firstRequest && cs.requestMode == RequestLazy && cs.sourceMode != FusionSync {
		cs.firstRequest = false
		cs.upstream.Request(unboundedOrPrefetch(cs.prefetch))
	}
	if cs.outputFused {
		cs.drainOutput()
	} else if cs.sourceMode == FusionSync {
		cs.drainSync()
	} else {
		cs.drainAsync()
	}
}

func (cs *conditionalPrefetchSubscriber) drainSync() {
	emitted := cs.produced
	missed := int32(1)
	for {
		requested := cs.requested.Load()
		for emitted != requested {
			item, ok, pollErr := pollElement(cs.queue)
			if pollErr != nil {
				cs.failPoll(pollErr)
				return
			}
			if cs.cancelled.Load() {
				if ok {
					cs.discard(item)
				}
				cs.discardOnTerminate()
				return
			}
			if !ok {
				cs.downstream.OnComplete()
				return
			}
			if cs.downstream.TryOnNext(item.GetValue()) {
				emitted++
			}
		}

		if cs.cancelled.Load() {
			cs.discardOnTerminate()
			return
		}
		if cs.queue.IsEmpty() {
			cs.downstream.OnComplete()
			return
		}

		w := cs.wip.Load()
		if missed == w {
			cs.produced = emitted
			missed = cs.wip.Add(-missed)
			if missed == 0 {
				return
			}
		} else {
			missed = w
		}
	}
}

// drainAsync's replenishment is driven by polled == limit, not emitted
// == limit: upstream only cares that an item was processed, not that
// the downstream accepted it. requested itself is never debited here
// (unlike the plain subscriber) because emitted and requested are both
// monotonically increasing lifetime counters for this variant.
func (cs *conditionalPrefetchSubscriber) drainAsync() {
	emitted := cs.produced
	polled := cs.consumed
	missed := int32(1)
	for {
		requested := cs.requested.Load()
		for emitted != requested {
			item, ok, pollErr := pollElement(cs.queue)
			if pollErr != nil {
				cs.failPoll(pollErr)
				return
			}
			if cs.checkTerminated(cs.done.Load(), !ok, itemPtr(item, ok)) {
				return
			}
			if !ok {
				break
			}
			if cs.downstream.TryOnNext(item.GetValue()) {
				emitted++
			}
			polled++
			if polled == int64(cs.limit) {
				cs.upstream.Request(polled)
				polled = 0
			}
		}

		if emitted == requested && cs.checkTerminated(cs.done.Load(), cs.queue.IsEmpty(), nil) {
			return
		}

		w := cs.wip.Load()
		if missed == w {
			cs.produced = emitted
			cs.consumed = polled
			missed = cs.wip.Add(-missed)
			if missed == 0 {
				return
			}
		} else {
			missed = w
		}
	}
}

func (cs *conditionalPrefetchSubscriber) drainOutput() {
	missed := int32(1)
	for {
		if cs.cancelled.Load() {
			cs.Clear()
			return
		}
		cs.downstream.OnNext(nil)
		if cs.done.Load() {
			if cs.error != nil {
				cs.downstream.OnError(cs.error)
			} else {
				cs.downstream.OnComplete()
			}
			return
		}
		missed = cs.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

// failPoll mirrors prefetchSubscriber's: cancel upstream, discard
// whatever remains queued, deliver exactly one downstream.OnError.
func (cs *conditionalPrefetchSubscriber) failPoll(cause error) {
	cs.upstream.Cancel()
	cs.discardOnTerminate()
	cs.error = NewPollError(cause)
	cs.done.Store(true)
	cs.downstream.OnError(cs.error)
}

func (cs *conditionalPrefetchSubscriber) checkTerminated(done, empty bool, value *Item) bool {
	if cs.cancelled.Load() {
		if value != nil {
			cs.discard(*value)
		}
		cs.discardOnTerminate()
		return true
	}
	if done {
		if cs.error != nil {
			if value != nil {
				cs.discard(*value)
			}
			cs.discardOnTerminate()
			cs.downstream.OnError(cs.error)
			return true
		}
		if empty {
			cs.downstream.OnComplete()
			return true
		}
	}
	return false
}

func (cs *conditionalPrefetchSubscriber) discardOnTerminate() {
	if cs.sourceMode == FusionAsync {
		if cs.queue != nil {
			cs.queue.Clear()
		}
		return
	}
	cs.discardQueuePerElement()
}

func (cs *conditionalPrefetchSubscriber) discardQueuePerElement() {
	if cs.queue == nil {
		return
	}
	n := 0
	for {
		item, ok, pollErr := pollElement(cs.queue)
		if pollErr != nil {
			cs.logger.Warn("queue panicked while discarding, abandoning the rest", zap.Error(pollErr))
			break
		}
		if !ok {
			break
		}
		cs.discard(item)
		n++
	}
	if n > 0 {
		cs.logger.Warn("discarded queued elements on terminate", zap.Int("count", n))
	}
}

func (cs *conditionalPrefetchSubscriber) discard(item Item) {
	if cs.onDiscard != nil {
		cs.onDiscard(item.GetValue())
	}
}

func (cs *conditionalPrefetchSubscriber) Clear() {
	if cs.sourceMode == FusionAsync {
		if cs.queue != nil {
			cs.queue.Clear()
		}
		return
	}
	if cs.sourceMode == FusionSync {
		if cs.queue != nil {
			cs.queue.Clear()
		}
		return
	}
	if cs.discardGuard.Add(1) != 1 {
		return
	}
	missed := int32(1)
	for {
		cs.discardQueuePerElement()
		w := cs.discardGuard.Load()
		if missed == w {
			missed = cs.discardGuard.Add(-missed)
			if missed == 0 {
				return
			}
		} else {
			missed = w
		}
	}
}

func (cs *conditionalPrefetchSubscriber) IsEmpty() bool {
	return cs.queue.IsEmpty()
}

func (cs *conditionalPrefetchSubscriber) Size() int {
	return cs.queue.Size()
}

// Poll uses consumed (not produced) as its replenish counter; unlike
// the plain subscriber's Poll, it has no LAZY-first-request check of
// its own — that check lives solely in drain/onSubscribe for this
// variant.
func (cs *conditionalPrefetchSubscriber) Poll() (Item, bool) {
	item, ok := cs.queue.Poll()
	if ok && cs.sourceMode != FusionSync {
		c := cs.consumed + 1
		if c == int64(cs.limit) {
			cs.consumed = 0
			cs.upstream.Request(c)
		} else {
			cs.consumed = c
		}
	}
	return item, ok
}

func (cs *conditionalPrefetchSubscriber) RequestFusion(requestedMode FusionMode) FusionMode {
	if qs, ok := cs.upstream.(QueueSubscription); ok {
		mode := qs.RequestFusion(requestedMode)
		switch mode {
		case FusionSync:
			cs.sourceMode = FusionSync
			cs.queue = &queueSubscriptionAdapter{qs}
			cs.outputFused = true
			cs.done.Store(true)
		case FusionAsync:
			cs.sourceMode = FusionAsync
			cs.queue = &queueSubscriptionAdapter{qs}
			cs.outputFused = true
		default:
			cs.sourceMode = FusionNone
			cs.queue = cs.queueFactory(queueCapacity(cs.prefetch))
			if requestedMode == FusionAsync || requestedMode == FusionAny {
				cs.outputFused = true
				mode = FusionAsync
			} else {
				mode = FusionNone
			}
		}
		cs.wip.Store(0)
		return mode
	}

	cs.sourceMode = FusionNone
	cs.queue = cs.queueFactory(queueCapacity(cs.prefetch))
	mode := FusionNone
	if requestedMode == FusionAsync || requestedMode == FusionAny {
		cs.outputFused = true
		mode = FusionAsync
	}
	cs.wip.Store(0)
	return mode
}
