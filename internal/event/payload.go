package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PayloadSchema is the self-describing schema of a POSTed batch.
const PayloadSchema = "iglu:com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-4"

// Envelope is the JSON body sent to an HTTP collector.
type Envelope struct {
	Schema string              `json:"schema"`
	Data   []map[string]string `json:"data"`
}

// Payload wraps a batch in the collector envelope. Every event is rendered
// with string values and stamped with the sent timestamp.
func Payload(b Batch, sentAt time.Time) Envelope {
	stm := strconv.FormatInt(sentAt.UnixMilli(), 10)
	data := make([]map[string]string, 0, len(b))
	for _, ev := range b {
		m := ev.Strings()
		m[FieldSent] = stm
		data = append(data, m)
	}
	return Envelope{Schema: PayloadSchema, Data: data}
}

// MarshalPayload returns the JSON encoding of Payload(b, sentAt).
func MarshalPayload(b Batch, sentAt time.Time) ([]byte, error) {
	body, err := json.Marshal(Payload(b, sentAt))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return body, nil
}

// MarshalJSON encodes the event as a flat JSON object.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.fields)
}

// UnmarshalJSON decodes a flat JSON object. Id and creation time found in
// the object are kept, so a decoded event keeps its identity.
func (e *Event) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		// json decodes every number as float64; keep integral ones integral
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			fields[k] = int64(f)
		}
	}
	*e = New(fields)
	return nil
}
