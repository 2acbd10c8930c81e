// Package rxflow implements a reactive-streams prefetch operator: a
// one-in-one-out stage that decouples upstream demand from downstream
// demand behind a bounded queue, with full backpressure.
package rxflow

// Item is a single signal carried through the operator: either a value
// or a terminal error. A zero Item (both fields nil) represents the
// completion signal when it flows through a fused queue.
type Item struct {
	Value interface{}
	Error error
}

// IsError reports whether the item carries a terminal error.
func (item Item) IsError() bool {
	return item.Error != nil
}

// IsComplete reports whether the item is the completion marker used on
// fused queues (no value, no error).
func (item Item) IsComplete() bool {
	return item.Value == nil && item.Error == nil
}

// GetValue returns the item's value, or nil if it carries an error.
func (item Item) GetValue() interface{} {
	if item.IsError() {
		return nil
	}
	return item.Value
}

// CreateItem wraps a value.
func CreateItem(value interface{}) Item {
	return Item{Value: value}
}

// CreateErrorItem wraps a terminal error.
func CreateErrorItem(err error) Item {
	return Item{Error: err}
}
