package hec

import (
	"bytes"
	"context"
	"net/http"
)

// Batch accumulates serialized events for one flush cycle. Events are
// framed as newline-delimited JSON objects in AddEvent call order, which
// is the order the collector's multi-JSON decoder observes.
//
// A batch owns no persistent state: Send drains the buffer, so the same
// value can be reused for the next cycle even while a send is in flight.
// A batch is not safe for concurrent use.
type Batch struct {
	client *Client
	buf    bytes.Buffer
	events int
}

// AddEvent serializes the record into the batch immediately. A rollback
// checkpoint is recorded first: if serialization fails partway, the
// buffer is truncated back so the malformed fragment cannot corrupt
// earlier entries, the bad event is dropped, and the failure is returned
// as a *SerializationError for the host to log. Later events append
// normally.
func (b *Batch) AddEvent(rec *EventRecord) error {
	if rec.Metadata == nil {
		rec.Metadata = b.client.defaultMetadata()
	}
	if f := b.client.cfg.Formatter; f != nil && rec.Override == nil {
		rec.Override = f.Transform(rec)
	}

	mark := b.buf.Len()
	if err := rec.encode(&b.buf); err != nil {
		b.buf.Truncate(mark)
		return &SerializationError{Err: err}
	}
	b.events++
	return nil
}

// Events returns the number of events currently buffered.
func (b *Batch) Events() int { return b.events }

// Len returns the buffered payload size in bytes.
func (b *Batch) Len() int { return b.buf.Len() }

// Drain snapshots the buffered payload and resets the batch for reuse.
// Hosts that manage their own redelivery take the snapshot here and post
// it through Client.Post directly.
func (b *Batch) Drain() []byte {
	if b.buf.Len() == 0 {
		return nil
	}
	payload := make([]byte, b.buf.Len())
	copy(payload, b.buf.Bytes())
	b.buf.Reset()
	b.events = 0
	return payload
}

// Send drains the batch and posts the snapshot. An empty batch skips the
// network call entirely and reports success, since the collector rejects
// empty bodies. Failure semantics are those of Client.Post.
func (b *Batch) Send(ctx context.Context) (int, error) {
	payload := b.Drain()
	if payload == nil {
		return http.StatusOK, nil
	}
	return b.client.Post(ctx, payload)
}
