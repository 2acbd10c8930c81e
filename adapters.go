package rxflow

import (
	"sync"
	"sync/atomic"
)

// publisherFunc adapts a plain function to Publisher, avoiding a named
// type per source flavour.
type publisherFunc func(Subscriber)

func (f publisherFunc) Subscribe(s Subscriber) { f(s) }

// FromSlice builds a finite, SYNC-fuseable Publisher over values. It is
// the minimal upstream used by the operator's own tests: if the
// operator negotiates SYNC fusion, iteration
// happens entirely through Poll; otherwise it falls back to an ordinary
// push loop driven by Request.
func FromSlice(values []interface{}) Publisher {
	return publisherFunc(func(s Subscriber) {
		sub := &sliceSubscription{values: values, downstream: s}
		s.OnSubscribe(sub)
	})
}

type sliceSubscription struct {
	values     []interface{}
	index      int
	fused      bool
	requested  atomic.Int64
	cancelled  atomic.Bool
	downstream Subscriber
}

func (s *sliceSubscription) Request(n int64) {
	if s.fused || n <= 0 {
		return
	}
	for {
		previous := s.requested.Load()
		next := addCap(previous, n)
		if s.requested.CompareAndSwap(previous, next) {
			break
		}
	}
	s.drain()
}

func (s *sliceSubscription) drain() {
	for s.requested.Load() > 0 && !s.cancelled.Load() {
		if s.index >= len(s.values) {
			s.downstream.OnComplete()
			return
		}
		value := s.values[s.index]
		s.index++
		s.downstream.OnNext(value)
		s.requested.Add(-1)
	}
}

func (s *sliceSubscription) Cancel() { s.cancelled.Store(true) }

func (s *sliceSubscription) Poll() (Item, bool) {
	if s.index >= len(s.values) {
		return Item{}, false
	}
	value := s.values[s.index]
	s.index++
	return CreateItem(value), true
}

func (s *sliceSubscription) IsEmpty() bool { return s.index >= len(s.values) }
func (s *sliceSubscription) Clear()        { s.index = len(s.values) }
func (s *sliceSubscription) Size() int     { return len(s.values) - s.index }

func (s *sliceSubscription) RequestFusion(mode FusionMode) FusionMode {
	if mode == FusionSync || mode == FusionAny {
		s.fused = true
		return FusionSync
	}
	return FusionNone
}

// FromChannel builds a NONE-mode Publisher over an existing channel: a
// background goroutine forwards values as they arrive, gated by
// outstanding demand, and completes when the channel is closed. Unlike
// FromSlice it never negotiates fusion, so subscribing it to the
// prefetch operator always exercises the operator's own queue (C1).
func FromChannel(source <-chan interface{}) Publisher {
	return publisherFunc(func(s Subscriber) {
		sub := &channelSubscription{source: source, downstream: s, wake: make(chan struct{}, 1)}
		s.OnSubscribe(sub)
		go sub.loop()
	})
}

type channelSubscription struct {
	source     <-chan interface{}
	downstream Subscriber
	requested  atomic.Int64
	cancelled  atomic.Bool
	wake       chan struct{}
}

func (c *channelSubscription) Request(n int64) {
	if n <= 0 {
		return
	}
	for {
		previous := c.requested.Load()
		next := addCap(previous, n)
		if c.requested.CompareAndSwap(previous, next) {
			break
		}
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *channelSubscription) Cancel() { c.cancelled.Store(true) }

func (c *channelSubscription) loop() {
	for {
		if c.cancelled.Load() {
			return
		}
		if c.requested.Load() <= 0 {
			<-c.wake
			continue
		}
		value, ok := <-c.source
		if c.cancelled.Load() {
			return
		}
		if !ok {
			c.downstream.OnComplete()
			return
		}
		c.downstream.OnNext(value)
		c.requested.Add(-1)
	}
}

// CollectSubscriber records every signal it receives, in order, so
// property tests can assert on the exact sequence a run produced.
type CollectSubscriber struct {
	mu        sync.Mutex
	demand    int64
	sub       Subscription
	Values    []interface{}
	Err       error
	Completed bool
}

// NewCollectSubscriber builds a CollectSubscriber that requests demand
// as soon as it receives OnSubscribe (0 means "don't request").
func NewCollectSubscriber(demand int64) *CollectSubscriber {
	return &CollectSubscriber{demand: demand}
}

func (c *CollectSubscriber) OnSubscribe(s Subscription) {
	c.sub = s
	if c.demand > 0 {
		s.Request(c.demand)
	}
}

func (c *CollectSubscriber) OnNext(value interface{}) {
	c.mu.Lock()
	c.Values = append(c.Values, value)
	c.mu.Unlock()
}

func (c *CollectSubscriber) OnError(err error) {
	c.mu.Lock()
	c.Err = err
	c.mu.Unlock()
}

func (c *CollectSubscriber) OnComplete() {
	c.mu.Lock()
	c.Completed = true
	c.mu.Unlock()
}

// Request lets a test pull more demand after the initial subscribe.
func (c *CollectSubscriber) Request(n int64) {
	if c.sub != nil {
		c.sub.Request(n)
	}
}

// Cancel lets a test cancel mid-stream.
func (c *CollectSubscriber) Cancel() {
	if c.sub != nil {
		c.sub.Cancel()
	}
}

// Snapshot returns a copy of the values recorded so far, safe to read
// concurrently with delivery.
func (c *CollectSubscriber) Snapshot() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.Values))
	copy(out, c.Values)
	return out
}

// FilterSubscriber is a ConditionalSubscriber that declines any value
// failing Predicate without consuming demand for it, the concrete
// exercise of the operator's C5 drain path.
type FilterSubscriber struct {
	CollectSubscriber
	Predicate func(value interface{}) bool
}

// NewFilterSubscriber builds a FilterSubscriber requesting demand as
// soon as it subscribes.
func NewFilterSubscriber(demand int64, predicate func(value interface{}) bool) *FilterSubscriber {
	return &FilterSubscriber{
		CollectSubscriber: CollectSubscriber{demand: demand},
		Predicate:         predicate,
	}
}

func (f *FilterSubscriber) TryOnNext(value interface{}) bool {
	if f.Predicate != nil && !f.Predicate(value) {
		return false
	}
	f.OnNext(value)
	return true
}
