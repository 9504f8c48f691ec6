// Package event defines the telemetry event model shared by the emitter,
// the transports and the observers.
package event

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reserved field names. They follow the tracker protocol so collectors can
// index events without a custom schema.
const (
	FieldID      = "eid" // event id
	FieldCreated = "dtm" // device created timestamp, unix ms
	FieldSent    = "stm" // device sent timestamp, unix ms (set by Payload)
	FieldType    = "e"   // event type
)

// Event is an immutable set of scalar key/value pairs representing one
// telemetry record. The zero value is an empty event without an id.
type Event struct {
	fields map[string]any
}

// New creates an Event from fields. The map is copied, so later changes to
// fields do not affect the event. Values that are not strings, booleans,
// integers or floats are stored as their fmt.Sprint form. An event id and
// creation timestamp are added unless the caller supplied them.
func New(fields map[string]any) Event {
	return newAt(fields, time.Now())
}

func newAt(fields map[string]any, now time.Time) Event {
	m := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		m[k] = scalar(v)
	}
	if _, ok := m[FieldID]; !ok {
		m[FieldID] = uuid.NewString()
	}
	if _, ok := m[FieldCreated]; !ok {
		m[FieldCreated] = now.UnixMilli()
	}
	return Event{fields: m}
}

func scalar(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case time.Time:
		return t.UnixMilli()
	case time.Duration:
		return t.Milliseconds()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// ID returns the event id, or "" for the zero Event.
func (e Event) ID() string {
	s, _ := e.fields[FieldID].(string)
	return s
}

// Created returns the device creation time of the event.
func (e Event) Created() time.Time {
	switch v := e.fields[FieldCreated].(type) {
	case int64:
		return time.UnixMilli(v)
	case int:
		return time.UnixMilli(int64(v))
	case float64:
		return time.UnixMilli(int64(v))
	case string:
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

// Get returns the value stored under key.
func (e Event) Get(key string) (any, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Len returns the number of fields, reserved fields included.
func (e Event) Len() int {
	return len(e.fields)
}

// Fields returns a copy of the event's fields.
func (e Event) Fields() map[string]any {
	m := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		m[k] = v
	}
	return m
}

// Strings renders every field as a string. The tracker protocol is
// string-typed, so this is the form that goes on the wire.
func (e Event) Strings() map[string]string {
	m := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		m[k] = stringify(v)
	}
	return m
}

// String implements fmt.Stringer with keys in sorted order.
func (e Event) String() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(stringify(e.fields[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

// Batch is an ordered group of events delivered together.
type Batch []Event

// Len returns the number of events in the batch.
func (b Batch) Len() int {
	return len(b)
}

// IDs returns the ids of the events in the batch, in order.
func (b Batch) IDs() []string {
	ids := make([]string, len(b))
	for i, ev := range b {
		ids[i] = ev.ID()
	}
	return ids
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Success int
	Failed  []Event
	Err     error // cause of the failures, nil when everything was delivered
}

// OK reports whether every event of the attempt was delivered.
func (o Outcome) OK() bool {
	return len(o.Failed) == 0
}

// Succeeded builds the outcome of a fully delivered batch.
func Succeeded(b Batch) Outcome {
	return Outcome{Success: len(b)}
}

// FailedAll builds the outcome of a batch that was not delivered at all.
func FailedAll(b Batch, err error) Outcome {
	failed := make([]Event, len(b))
	copy(failed, b)
	return Outcome{Failed: failed, Err: err}
}
