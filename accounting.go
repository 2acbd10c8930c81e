package rxflow

import (
	"math"
	"sync/atomic"
)

// unbounded is the operator's internal stand-in for "infinite demand".
const unbounded = int64(math.MaxInt64)

// requestedUnset marks a plain subscriber's requested field before the
// downstream has ever called Request: a value no real (non-negative)
// demand total can take, so the very first CAS into the field is
// detectable without a separate guarded boolean.
const requestedUnset = int64(math.MinInt64)

// demandMask clears the sign bit used by requestedUnset, recovering the
// real accumulated demand out of a requested field that may still carry
// the sentinel.
const demandMask = int64(math.MaxInt64)

// addCap adds b to a, saturating at the maximum representable demand
// instead of wrapping on overflow.
func addCap(a, b int64) int64 {
	if a == unbounded {
		return unbounded
	}
	sum := a + b
	if sum < 0 {
		return unbounded
	}
	return sum
}

// unboundedOrPrefetch reports the initial request size for a given
// prefetch: unbounded demand for the sentinel "unbounded" prefetch,
// otherwise prefetch itself.
func unboundedOrPrefetch(prefetch int) int64 {
	if prefetch == math.MaxInt32 {
		return unbounded
	}
	return int64(prefetch)
}

// unboundedQueueCapacity is the internal queue's actual backing size when
// prefetch requests unbounded upstream demand. The demand itself is
// genuinely unbounded, but a physical bounded ring buffer still needs a
// concrete size to allocate; sizing it to prefetch verbatim would try to
// allocate a MaxInt32-length buffer.
const unboundedQueueCapacity = 4096

// queueCapacity is the size passed to a QueueFactory for a given
// prefetch: prefetch itself, or unboundedQueueCapacity when prefetch is
// the unbounded sentinel.
func queueCapacity(prefetch int) int {
	if prefetch == math.MaxInt32 {
		return unboundedQueueCapacity
	}
	return prefetch
}

// unboundedOrLimit computes the replenishment threshold from prefetch
// and lowTide: unbounded if prefetch is unbounded, prefetch-lowTide when
// lowTide is a sensible fraction of prefetch, else prefetch-prefetch/4.
func unboundedOrLimit(prefetch, lowTide int) int {
	if prefetch == math.MaxInt32 {
		return math.MaxInt32
	}
	if lowTide > 0 && lowTide < prefetch {
		return prefetch - lowTide
	}
	return prefetch - prefetch/4
}

// addRequest performs the CAS-loop demand accumulation behind the plain
// subscriber's Request(n): it clears any sentinel bit before adding and
// reports whether this call was the very first request the downstream
// ever issued (used to trigger the LAZY policy's deferred initial
// upstream request).
func addRequest(requested *atomic.Int64, n int64) (updated int64, first bool) {
	for {
		previous := requested.Load()
		current := previous & demandMask
		next := addCap(current, n)
		if requested.CompareAndSwap(previous, next) {
			return next, previous == requestedUnset
		}
	}
}
