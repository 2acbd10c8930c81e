package rxflow

import "go.uber.org/zap"

// RequestMode selects when the operator issues its initial request to
// upstream.
type RequestMode int

const (
	// RequestEager issues the initial upstream request in onSubscribe.
	RequestEager RequestMode = iota
	// RequestLazy defers the initial upstream request until the first
	// sign of downstream demand (a Request call, a drain entry, or a
	// fused poll, depending on the negotiated mode).
	RequestLazy
)

// Config carries the operator factory's (C6) parameters. Build one with
// DefaultConfig and the With* options rather than constructing it
// directly, so future fields get sane defaults automatically.
type Config struct {
	Prefetch     int
	LowTide      int
	RequestMode  RequestMode
	QueueFactory QueueFactory
	Logger       *zap.Logger
	OnDiscard    func(value interface{})
}

// Option mutates a Config during construction.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithPrefetch sets the in-flight window size. Must be > 0.
func WithPrefetch(n int) Option {
	return optionFunc(func(c *Config) { c.Prefetch = n })
}

// WithLowTide sets the replenishment threshold. 0 (the default) derives
// it from Prefetch (see unboundedOrLimit).
func WithLowTide(n int) Option {
	return optionFunc(func(c *Config) { c.LowTide = n })
}

// WithRequestMode selects EAGER or LAZY initial upstream requesting.
func WithRequestMode(m RequestMode) Option {
	return optionFunc(func(c *Config) { c.RequestMode = m })
}

// WithQueueFactory overrides the default lfq-backed bounded queue.
func WithQueueFactory(f QueueFactory) Option {
	return optionFunc(func(c *Config) { c.QueueFactory = f })
}

// WithLogger overrides the no-op default structured logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *Config) { c.Logger = l })
}

// WithOnDiscard registers a callback invoked once per discarded value
// (overflow, cancel, or error-time queue clear). It is never called on
// the normal emission path.
func WithOnDiscard(f func(value interface{})) Option {
	return optionFunc(func(c *Config) { c.OnDiscard = f })
}

// DefaultConfig returns the baseline configuration: prefetch 128,
// lowTide derived from prefetch, EAGER requesting, the default lfq
// queue, and a no-op logger.
func DefaultConfig() Config {
	return Config{
		Prefetch:     128,
		LowTide:      0,
		RequestMode:  RequestEager,
		QueueFactory: DefaultQueueFactory,
		Logger:       zap.NewNop(),
	}
}
