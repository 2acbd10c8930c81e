package rxflow

// Operator is the prefetch operator factory (C6). It validates
// configuration once at construction and, for every downstream
// subscription, picks the plain (C4) or conditional (C5) subscriber
// shape depending on whether the downstream itself implements
// ConditionalSubscriber. Operator is itself a Publisher, so it composes
// like any other stage.
type Operator struct {
	upstream Publisher
	config   Config
}

// New wires a prefetch operator in front of upstream. Options override
// DefaultConfig(); prefetch must end up > 0 or New panics, matching the
// constructor-time validation of the operator this is grounded on.
func New(upstream Publisher, opts ...Option) *Operator {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	if cfg.Prefetch <= 0 {
		panic(NewIllegalArgumentError("prefetch must be > 0"))
	}
	if cfg.QueueFactory == nil {
		cfg.QueueFactory = DefaultQueueFactory
	}
	return &Operator{upstream: upstream, config: cfg}
}

// Subscribe implements Publisher: it instantiates a fresh subscriber for
// this subscription and subscribes it to the upstream.
func (op *Operator) Subscribe(downstream Subscriber) {
	if conditional, ok := downstream.(ConditionalSubscriber); ok {
		op.upstream.Subscribe(newConditionalPrefetchSubscriber(conditional, op.config))
		return
	}
	op.upstream.Subscribe(newPrefetchSubscriber(downstream, op.config))
}
