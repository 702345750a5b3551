package hec

import (
	"fmt"
	"net/http"
)

// ConfigurationError reports a required client setting that is missing
// or invalid at construction time. It is fatal: the client is never
// built and the forwarding path does not start.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("hec: configuration %s: %s", e.Setting, e.Reason)
}

// SerializationError reports a single event whose fields could not be
// encoded. The offending event is dropped and the batch buffer rolled
// back; earlier and later events are unaffected.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("hec: event serialization failed: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeliveryError describes one failed delivery attempt or an overridden
// TLS validation failure. It is never returned from Post; it reaches the
// host only through the client's error subscription.
type DeliveryError struct {
	// StatusCode is the HTTP status observed, or http.StatusBadRequest
	// when the failure happened before any response was obtained.
	StatusCode int

	// Reply is the server's response body, when one was present.
	Reply string

	// Response is the raw response for callers that need headers or
	// other details. May be nil; its body has already been consumed.
	Response *http.Response

	// Payload is the UTF-8 decoding of the posted payload, kept for
	// diagnostics and host-side replay.
	Payload string

	// Err is the underlying transport or validation error, if any.
	Err error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hec: delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("hec: delivery failed: status %d: %s", e.StatusCode, e.Reply)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
