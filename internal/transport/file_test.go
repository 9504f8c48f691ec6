package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"telemetryagent/internal/config"
	"telemetryagent/internal/event"
)

func TestFile_Send_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	f, err := NewFile(path, config.FileConfig{MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	batch := newTestBatch(3)
	out := f.Send(context.Background(), batch)
	if !out.OK() || out.Success != 3 {
		t.Fatalf("expected 3 successes, got %+v", out)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var ev event.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line is not an event: %v", err)
		}
		ids = append(ids, ev.ID())
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(ids))
	}
	for i, id := range ids {
		if id != batch[i].ID() {
			t.Errorf("line %d: expected id %s, got %s", i, batch[i].ID(), id)
		}
	}
}

func TestFile_Send_AfterCloseReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	f, err := NewFile(path, config.FileConfig{})
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	f.Send(context.Background(), newTestBatch(1))
	f.Close()

	out := f.Send(context.Background(), newTestBatch(1))
	if !out.OK() {
		t.Fatalf("expected send after close to reopen the file, got %+v", out)
	}
	f.Close()
}

func TestNewFile_EmptyPath(t *testing.T) {
	if _, err := NewFile("  ", config.FileConfig{}); !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
	}
}
