package rxflow

import (
	"sync"
	"testing"
	"time"
)

// syncCollector is a CollectSubscriber that closes done exactly once on
// whichever terminal signal arrives first, so tests driven by a
// background goroutine (FromChannel) can wait for completion instead of
// polling.
type syncCollector struct {
	CollectSubscriber
	done chan struct{}
	once sync.Once
}

func newSyncCollector(demand int64) *syncCollector {
	return &syncCollector{
		CollectSubscriber: CollectSubscriber{demand: demand},
		done:              make(chan struct{}),
	}
}

func (c *syncCollector) OnError(err error) {
	c.CollectSubscriber.OnError(err)
	c.once.Do(func() { close(c.done) })
}

func (c *syncCollector) OnComplete() {
	c.CollectSubscriber.OnComplete()
	c.once.Do(func() { close(c.done) })
}

func (c *syncCollector) waitTerminal(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a terminal signal")
	}
}
