package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNew_AssignsIDAndCreated(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	ev := newAt(map[string]any{"e": "ue"}, now)

	if ev.ID() == "" {
		t.Fatal("expected generated event id")
	}
	if !ev.Created().Equal(now) {
		t.Errorf("expected created=%v, got %v", now, ev.Created())
	}
	if ev.Len() != 3 {
		t.Errorf("expected 3 fields, got %d", ev.Len())
	}
}

func TestNew_KeepsCallerID(t *testing.T) {
	ev := New(map[string]any{FieldID: "fixed-id", FieldCreated: int64(1000)})

	if ev.ID() != "fixed-id" {
		t.Errorf("expected id=fixed-id, got %q", ev.ID())
	}
	if ev.Created().UnixMilli() != 1000 {
		t.Errorf("expected created=1000ms, got %d", ev.Created().UnixMilli())
	}
}

func TestNew_CopiesInput(t *testing.T) {
	fields := map[string]any{"key": "before"}
	ev := New(fields)
	fields["key"] = "after"
	fields["extra"] = 1

	v, _ := ev.Get("key")
	if v != "before" {
		t.Errorf("event was mutated through the input map: key=%v", v)
	}
	if _, ok := ev.Get("extra"); ok {
		t.Error("event gained a field through the input map")
	}
}

func TestFields_ReturnsCopy(t *testing.T) {
	ev := New(map[string]any{"key": "value"})
	m := ev.Fields()
	m["key"] = "changed"

	v, _ := ev.Get("key")
	if v != "value" {
		t.Errorf("event was mutated through Fields(): key=%v", v)
	}
}

func TestNew_NonScalarValuesAreStringified(t *testing.T) {
	ev := New(map[string]any{
		"list":  []int{1, 2},
		"nil":   nil,
		"dur":   1500 * time.Millisecond,
		"count": 3,
	})

	if v, _ := ev.Get("list"); v != "[1 2]" {
		t.Errorf("expected list=\"[1 2]\", got %v", v)
	}
	if v, _ := ev.Get("nil"); v != "" {
		t.Errorf("expected nil stored as empty string, got %v", v)
	}
	if v, _ := ev.Get("dur"); v != int64(1500) {
		t.Errorf("expected dur=1500 (ms), got %v", v)
	}
	if v, _ := ev.Get("count"); v != 3 {
		t.Errorf("expected count=3, got %v", v)
	}
}

func TestPayload_Envelope(t *testing.T) {
	sent := time.UnixMilli(2000)
	b := Batch{
		New(map[string]any{FieldID: "a", "value": 1.5, "ok": true}),
		New(map[string]any{FieldID: "b"}),
	}

	body, err := MarshalPayload(b, sent)
	if err != nil {
		t.Fatalf("MarshalPayload failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if env.Schema != PayloadSchema {
		t.Errorf("unexpected schema %q", env.Schema)
	}
	if len(env.Data) != 2 {
		t.Fatalf("expected 2 events, got %d", len(env.Data))
	}
	first := env.Data[0]
	if first[FieldID] != "a" || first["value"] != "1.5" || first["ok"] != "true" {
		t.Errorf("unexpected first event: %v", first)
	}
	if first[FieldSent] != "2000" {
		t.Errorf("expected stm=2000, got %q", first[FieldSent])
	}
}

func TestEvent_JSONKeepsIdentity(t *testing.T) {
	orig := New(map[string]any{"name": "session", "count": 7})

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.ID() != orig.ID() {
		t.Errorf("id changed: %q -> %q", orig.ID(), decoded.ID())
	}
	if !decoded.Created().Equal(orig.Created()) {
		t.Errorf("created changed: %v -> %v", orig.Created(), decoded.Created())
	}
	if v, _ := decoded.Get("count"); v != int64(7) {
		t.Errorf("expected count=7, got %v (%T)", v, v)
	}
}

func TestEvent_StringSorted(t *testing.T) {
	ev := New(map[string]any{FieldID: "x", FieldCreated: int64(1), "b": 2, "a": "1"})
	s := ev.String()
	if !strings.HasPrefix(s, "{a=1 b=2 dtm=1 eid=x") {
		t.Errorf("unexpected String(): %s", s)
	}
}

func TestOutcome(t *testing.T) {
	b := Batch{New(nil), New(nil)}

	ok := Succeeded(b)
	if !ok.OK() || ok.Success != 2 {
		t.Errorf("unexpected success outcome: %+v", ok)
	}

	failed := FailedAll(b, nil)
	if failed.OK() || len(failed.Failed) != 2 || failed.Success != 0 {
		t.Errorf("unexpected failure outcome: %+v", failed)
	}
	if failed.Failed[0].ID() != b[0].ID() {
		t.Error("failed events out of order")
	}
}
