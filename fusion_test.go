package rxflow

import "testing"

func TestSliceSubscriptionRequestFusionSync(t *testing.T) {
	sub := &sliceSubscription{values: []interface{}{1, 2, 3}}
	if mode := sub.RequestFusion(FusionAny); mode != FusionSync {
		t.Fatalf("RequestFusion(FusionAny) = %v, want FusionSync", mode)
	}

	adapter := &queueSubscriptionAdapter{sub}
	for _, want := range []int{1, 2, 3} {
		item, ok := adapter.Poll()
		if !ok || item.GetValue() != want {
			t.Fatalf("Poll() = (%v, %v), want (%v, true)", item.GetValue(), ok, want)
		}
	}
	if !adapter.IsEmpty() {
		t.Fatalf("expected adapter to report empty after draining")
	}
	if _, ok := adapter.Poll(); ok {
		t.Fatalf("expected Poll() to report empty, got a value")
	}
	if got := adapter.Offer(CreateItem(4)); got {
		t.Fatalf("Offer() on a borrowed upstream queue must always fail")
	}
}

func TestSliceSubscriptionRequestFusionNoneWhenNotRequested(t *testing.T) {
	sub := &sliceSubscription{values: []interface{}{1}}
	if mode := sub.RequestFusion(FusionNone); mode != FusionNone {
		t.Fatalf("RequestFusion(FusionNone) = %v, want FusionNone", mode)
	}
}
