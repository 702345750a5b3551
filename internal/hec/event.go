// Package hec implements the Splunk HTTP Event Collector (HEC) event
// protocol: a batching serializer that frames log events as concatenated
// JSON objects and a delivery client that posts them to the collector's
// JSON event endpoint.
package hec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Property is one structured field attached to an event. Positional
// parameters from the host logging framework are keyed "{0}", "{1}", and
// so on.
type Property struct {
	Name  string
	Value any
}

// Properties is an insertion-ordered set of event fields. Order is
// preserved on the wire; names must be unique.
type Properties []Property

// MarshalJSON renders the properties as a single JSON object in
// insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", kv.Name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EventRecord is an immutable record of one log occurrence plus its
// resolved destination metadata. Records are built by the host once per
// log event and handed to Batch.AddEvent.
type EventRecord struct {
	// Timestamp is the event time. Required.
	Timestamp time.Time

	// ID is an optional correlation identifier.
	ID string

	// Level is the severity label as rendered by the host framework.
	Level string

	// MessageTemplate is the raw unformatted message, if the host
	// framework distinguishes templates from rendered output.
	MessageTemplate string

	// Message is the fully rendered message.
	Message string

	// Exception is an opaque attached error. Values implementing
	// json.Marshaler serialize as themselves; plain errors serialize as
	// {"type": ..., "message": ...}.
	Exception any

	// Properties holds supplemental structured fields.
	Properties Properties

	// Metadata names the destination index/source/sourcetype/host. When
	// nil, the owning client's default metadata applies.
	Metadata *Metadata

	// Override, when non-nil, replaces structured serialization of the
	// other fields entirely: the event payload becomes this value's JSON
	// encoding. Exactly one of Override or the structured fields is ever
	// serialized for a record.
	Override any
}

// structuredEvent is the wire shape of the "event" object when no
// override is active. Field order matters to downstream consumers that
// diff payloads, so it mirrors the documented protocol order.
type structuredEvent struct {
	ID              string          `json:"id,omitempty"`
	MessageTemplate string          `json:"message-template,omitempty"`
	Message         string          `json:"message,omitempty"`
	Level           string          `json:"level,omitempty"`
	Exception       json.RawMessage `json:"exception,omitempty"`
	Properties      Properties      `json:"properties,omitempty"`
}

// eventPayload renders the "event" member: either the override value
// verbatim or the structured field object.
func (r *EventRecord) eventPayload() ([]byte, error) {
	if r.Override != nil {
		return json.Marshal(r.Override)
	}

	exc, err := marshalException(r.Exception)
	if err != nil {
		return nil, err
	}

	return json.Marshal(structuredEvent{
		ID:              r.ID,
		MessageTemplate: r.MessageTemplate,
		Message:         r.Message,
		Level:           r.Level,
		Exception:       exc,
		Properties:      r.Properties,
	})
}

// marshalException encodes an attached error value. json.Marshaler
// implementations keep their own shape; plain errors would otherwise
// serialize to {}, so they are wrapped with their dynamic type and
// message.
func marshalException(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(json.Marshaler); ok {
		return json.Marshal(v)
	}
	if err, ok := v.(error); ok {
		return json.Marshal(map[string]string{
			"type":    fmt.Sprintf("%T", err),
			"message": err.Error(),
		})
	}
	return json.Marshal(v)
}

// encode writes the full HEC envelope for the record to buf, followed by
// a newline. On error the buffer may hold a partial fragment; the caller
// is responsible for truncating back to its checkpoint.
func (r *EventRecord) encode(buf *bytes.Buffer) error {
	meta := r.Metadata
	if meta == nil {
		meta = &Metadata{SourceType: DefaultSourceType}
	}

	buf.WriteString(`{"time":`)
	buf.WriteString(epochSeconds(r.Timestamp))
	if meta.Index != "" {
		writeStringField(buf, "index", meta.Index)
	}
	if meta.Source != "" {
		writeStringField(buf, "source", meta.Source)
	}
	writeStringField(buf, "sourcetype", meta.SourceType)
	if meta.Host != "" {
		writeStringField(buf, "host", meta.Host)
	}

	buf.WriteString(`,"event":`)
	payload, err := r.eventPayload()
	if err != nil {
		return err
	}
	buf.Write(payload)
	buf.WriteString("}\n")
	return nil
}

// epochSeconds formats a timestamp as fractional Unix epoch seconds with
// millisecond precision, the format HEC expects in the "time" member.
func epochSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 3, 64)
}

func writeStringField(buf *bytes.Buffer, name, value string) {
	buf.WriteString(`,"`)
	buf.WriteString(name)
	buf.WriteString(`":`)
	encoded, _ := json.Marshal(value)
	buf.Write(encoded)
}
