package rxflow

import (
	"sync"
	"testing"
)

// stressUpstream is a Subscription stub for the concurrency stress tests
// below: OnNext/OnComplete are driven directly by the test's own producer
// goroutine, so this upstream never needs to do anything with Request or
// Cancel itself.
type stressUpstream struct{}

func (s *stressUpstream) Request(n int64) {}
func (s *stressUpstream) Cancel()         {}

// TestConcurrentRequestAndOnNextEmittedCountMatches drives one goroutine
// calling OnNext (the producer thread) concurrently against a second
// goroutine calling Request (the downstream demand thread) against the
// same prefetchSubscriber, run with -race. This is the "concurrent
// request from one thread and onNext from another" property: every
// produced value must be emitted exactly once, with no lost or
// duplicated elements, regardless of how the WIP-counter drain loop
// interleaves the two threads.
func TestConcurrentRequestAndOnNextEmittedCountMatches(t *testing.T) {
	const total = 20000

	collector := NewCollectSubscriber(0)
	cfg := DefaultConfig()
	cfg.Prefetch = 1 << 16 // large enough that Offer never overflows under this stress
	ps := newPrefetchSubscriber(collector, cfg)
	ps.OnSubscribe(&stressUpstream{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			ps.OnNext(i)
		}
		ps.OnComplete()
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			ps.Request(1)
		}
	}()
	wg.Wait()

	if !collector.Completed {
		t.Fatalf("expected completion")
	}
	if collector.Err != nil {
		t.Fatalf("expected no error, got %v", collector.Err)
	}
	snap := collector.Snapshot()
	if len(snap) != total {
		t.Fatalf("emitted %d elements, want exactly %d", len(snap), total)
	}
	seen := make(map[int]bool, total)
	for _, v := range snap {
		n := v.(int)
		if seen[n] {
			t.Fatalf("value %d emitted more than once", n)
		}
		seen[n] = true
	}
}

// TestConditionalConcurrentRequestAndOnNextEmittedCountMatches is the C5
// counterpart: a conditional downstream that accepts everything, driven
// by the same concurrent producer/consumer shape.
func TestConditionalConcurrentRequestAndOnNextEmittedCountMatches(t *testing.T) {
	const total = 20000

	filter := NewFilterSubscriber(0, func(interface{}) bool { return true })
	cfg := DefaultConfig()
	cfg.Prefetch = 1 << 16
	cs := newConditionalPrefetchSubscriber(filter, cfg)
	cs.OnSubscribe(&stressUpstream{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			cs.OnNext(i)
		}
		cs.OnComplete()
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			cs.Request(1)
		}
	}()
	wg.Wait()

	if !filter.Completed {
		t.Fatalf("expected completion")
	}
	if filter.Err != nil {
		t.Fatalf("expected no error, got %v", filter.Err)
	}
	snap := filter.Snapshot()
	if len(snap) != total {
		t.Fatalf("emitted %d elements, want exactly %d", len(snap), total)
	}
	seen := make(map[int]bool, total)
	for _, v := range snap {
		n := v.(int)
		if seen[n] {
			t.Fatalf("value %d emitted more than once", n)
		}
		seen[n] = true
	}
}
