package observer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"telemetryagent/internal/event"
)

func TestFunc_NilFieldsAreSkipped(t *testing.T) {
	var o Observer = Func{}
	o.OnSuccess(1)
	o.OnFailure(0, nil)
}

func TestMulti_FansOut(t *testing.T) {
	var successes, failures []int
	a := Func{
		Success: func(n int) { successes = append(successes, n) },
		Failure: func(n int, failed []event.Event) { failures = append(failures, len(failed)) },
	}
	b := Func{Success: func(n int) { successes = append(successes, n*10) }}

	m := Multi{a, b}
	m.OnSuccess(2)
	m.OnFailure(1, []event.Event{event.New(nil), event.New(nil)})

	if len(successes) != 2 || successes[0] != 2 || successes[1] != 20 {
		t.Errorf("unexpected successes: %v", successes)
	}
	if len(failures) != 1 || failures[0] != 2 {
		t.Errorf("unexpected failures: %v", failures)
	}
}

func TestSafe_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	o := Safe(Func{
		Success: func(int) { panic("boom") },
		Failure: func(int, []event.Event) { panic("bang") },
	}, log)

	o.OnSuccess(1)
	o.OnFailure(0, []event.Event{event.New(nil)})

	out := buf.String()
	if !strings.Contains(out, "boom") || !strings.Contains(out, "bang") {
		t.Errorf("expected both panics to be logged, got %s", out)
	}
	if !strings.Contains(out, `"callback":"OnFailure"`) {
		t.Errorf("expected callback name in log, got %s", out)
	}
}

func TestSafe_NilAndDoubleWrap(t *testing.T) {
	if Safe(nil, zerolog.Nop()) != Nop {
		t.Error("nil observer should become Nop")
	}

	inner := Safe(Func{}, zerolog.Nop())
	if Safe(inner, zerolog.Nop()) != inner {
		t.Error("Safe should not wrap twice")
	}
}

func TestLog_FailureListsIDs(t *testing.T) {
	var buf bytes.Buffer
	o := NewLog(zerolog.New(&buf))

	ev := event.New(map[string]any{"eid": "evt-1"})
	o.OnFailure(3, []event.Event{ev})

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level, got %s", out)
	}
	if !strings.Contains(out, "evt-1") || !strings.Contains(out, `"sent":3`) {
		t.Errorf("expected failed id and sent count, got %s", out)
	}
}

func TestLog_SuccessAtInfo(t *testing.T) {
	var buf bytes.Buffer
	NewLog(zerolog.New(&buf)).OnSuccess(4)

	out := buf.String()
	if !strings.Contains(out, `"level":"info"`) || !strings.Contains(out, `"count":4`) {
		t.Errorf("expected info entry with count, got %s", out)
	}
}
