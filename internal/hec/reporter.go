package hec

import "sync"

// reporter fans delivery failures out to registered observers. It is a
// notification channel, not an exception path: with zero observers
// registered, failures are deliberately dropped in silence. Hosts that
// care must subscribe via Client.OnError.
type reporter struct {
	mu       sync.Mutex
	handlers []func(*DeliveryError)
}

func (r *reporter) subscribe(fn func(*DeliveryError)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// publish notifies every observer in registration order. Handlers run
// outside the lock so a slow observer cannot deadlock a concurrent
// subscribe.
func (r *reporter) publish(e *DeliveryError) {
	r.mu.Lock()
	handlers := make([]func(*DeliveryError), len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// clear drops all observers. Called on client close.
func (r *reporter) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}
