package hec

// Formatter rewrites an event's wire payload before serialization. A
// non-nil return value replaces the structured event object entirely;
// returning nil keeps the default shape. At most one formatter is
// installed per client.
type Formatter interface {
	Transform(*EventRecord) any
}

// FormatterFunc adapts a plain function to the Formatter interface.
type FormatterFunc func(*EventRecord) any

// Transform calls f.
func (f FormatterFunc) Transform(r *EventRecord) any { return f(r) }
