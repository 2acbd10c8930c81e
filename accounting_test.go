package rxflow

import (
	"math"
	"sync/atomic"
	"testing"
)

func TestAddCapSaturates(t *testing.T) {
	if got := addCap(unbounded, 5); got != unbounded {
		t.Fatalf("addCap(unbounded, 5) = %d, want unbounded", got)
	}
	if got := addCap(math.MaxInt64-1, 5); got != unbounded {
		t.Fatalf("addCap overflow = %d, want unbounded", got)
	}
	if got := addCap(3, 4); got != 7 {
		t.Fatalf("addCap(3, 4) = %d, want 7", got)
	}
}

func TestUnboundedOrPrefetch(t *testing.T) {
	if got := unboundedOrPrefetch(math.MaxInt32); got != unbounded {
		t.Fatalf("unboundedOrPrefetch(MaxInt32) = %d, want unbounded", got)
	}
	if got := unboundedOrPrefetch(128); got != 128 {
		t.Fatalf("unboundedOrPrefetch(128) = %d, want 128", got)
	}
}

func TestUnboundedOrLimit(t *testing.T) {
	cases := []struct {
		prefetch, lowTide, want int
	}{
		{math.MaxInt32, 0, math.MaxInt32},
		{128, 0, 96},
		{128, 32, 96},
		{128, 200, 96}, // out-of-range lowTide falls back to the default fraction
		{4, 0, 3},
	}
	for _, c := range cases {
		if got := unboundedOrLimit(c.prefetch, c.lowTide); got != c.want {
			t.Fatalf("unboundedOrLimit(%d, %d) = %d, want %d", c.prefetch, c.lowTide, got, c.want)
		}
	}
}

func TestAddRequestReportsFirstOnlyOnce(t *testing.T) {
	var requested atomic.Int64
	requested.Store(requestedUnset)

	updated, first := addRequest(&requested, 10)
	if !first {
		t.Fatalf("expected the first call to report first=true")
	}
	if updated != 10 {
		t.Fatalf("updated = %d, want 10", updated)
	}

	updated, first = addRequest(&requested, 5)
	if first {
		t.Fatalf("expected the second call to report first=false")
	}
	if updated != 15 {
		t.Fatalf("updated = %d, want 15", updated)
	}
}
