package rxflow

// Subscription is the handle a downstream holds on its upstream: it
// pulls demand with Request and releases resources with Cancel. Both
// methods are safe to call from any goroutine and Cancel is idempotent.
type Subscription interface {
	Request(n int64)
	Cancel()
}

// Subscriber receives signals from a Publisher: exactly one OnSubscribe,
// any number of OnNext bounded by outstanding demand, then at most one
// of OnError/OnComplete.
type Subscriber interface {
	OnSubscribe(s Subscription)
	OnNext(value interface{})
	OnError(err error)
	OnComplete()
}

// ConditionalSubscriber is a downstream capability: it may decline a
// value without having consumed any of its outstanding demand. The
// prefetch operator factory (C6) inspects a downstream for this
// interface to decide whether to run the plain or conditional drain
// loop.
type ConditionalSubscriber interface {
	Subscriber
	TryOnNext(value interface{}) bool
}

// Publisher is anything a downstream can Subscribe to.
type Publisher interface {
	Subscribe(s Subscriber)
}
