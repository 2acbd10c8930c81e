package rxflow

// FusionMode is the negotiated transport between two adjacent stages
// (C2). NONE is the ordinary push/pull protocol; SYNC and ASYNC let the
// operator share a queue with its neighbour instead of re-queueing.
type FusionMode int32

const (
	FusionNone  FusionMode = 0
	FusionSync  FusionMode = 1
	FusionAsync FusionMode = 2
	FusionAny   FusionMode = 3

	// fusionUnset marks a subscriber that hasn't negotiated fusion yet,
	// distinct from the real FusionNone outcome of a negotiation.
	fusionUnset FusionMode = -1
)

// QueueSubscription is a Subscription that additionally exposes its
// backing queue for fusion: a downstream (or operator) that negotiates
// SYNC/ASYNC fusion drains values through Poll instead of OnNext.
type QueueSubscription interface {
	Subscription
	Poll() (Item, bool)
	IsEmpty() bool
	Clear()
	Size() int
	RequestFusion(mode FusionMode) FusionMode
}

// queueSubscriptionAdapter lets drain code treat an adopted upstream
// QueueSubscription (SYNC or ASYNC fusion) as an ordinary Queue, so the
// same poll-and-replenish loops work whether the queue is our own or
// borrowed from upstream.
type queueSubscriptionAdapter struct {
	qs QueueSubscription
}

func (a *queueSubscriptionAdapter) Offer(Item) bool     { return false }
func (a *queueSubscriptionAdapter) Poll() (Item, bool)  { return a.qs.Poll() }
func (a *queueSubscriptionAdapter) Clear()              { a.qs.Clear() }
func (a *queueSubscriptionAdapter) IsEmpty() bool       { return a.qs.IsEmpty() }
func (a *queueSubscriptionAdapter) Size() int           { return a.qs.Size() }
