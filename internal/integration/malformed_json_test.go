//go:build integration

package integration

import (
	"testing"
	"time"
)

// TestMalformedJSON checks non-JSON lines still flow through as plain
// message events instead of being dropped.
func TestMalformedJSON(t *testing.T) {
	p := newPipeline(t, nil)

	p.handleLine([]byte(`{"message":"good json"}`))
	p.handleLine([]byte(`this is not json at all`))
	p.handleLine([]byte(`{"broken": `))
	p.drain(t)

	events := p.mock.WaitForEvents(3, 2*time.Second)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	messages := make([]string, len(events))
	for i, e := range events {
		messages[i] = e.Get("event.message").String()
	}

	want := []string{"good json", "this is not json at all", `{"broken": `}
	for i, w := range want {
		if messages[i] != w {
			t.Errorf("event %d message = %q, want %q", i, messages[i], w)
		}
	}
}
