package hec

import (
	"testing"
)

func TestReporter_FanOutInRegistrationOrder(t *testing.T) {
	var r reporter

	var order []int
	r.subscribe(func(e *DeliveryError) { order = append(order, 1) })
	r.subscribe(func(e *DeliveryError) { order = append(order, 2) })

	r.publish(&DeliveryError{StatusCode: 500})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected observers in registration order, got %v", order)
	}
}

func TestReporter_NoObserversIsSilent(t *testing.T) {
	var r reporter
	// Publishing with no observers must not panic or block.
	r.publish(&DeliveryError{StatusCode: 500})
}

func TestReporter_ClearDropsObservers(t *testing.T) {
	var r reporter

	calls := 0
	r.subscribe(func(e *DeliveryError) { calls++ })
	r.clear()
	r.publish(&DeliveryError{})

	if calls != 0 {
		t.Errorf("expected no calls after clear, got %d", calls)
	}
}
