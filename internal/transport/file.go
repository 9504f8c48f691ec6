package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"telemetryagent/internal/config"
	"telemetryagent/internal/event"
)

// File appends events as JSON lines to a size-rotated file.
type File struct {
	path   string
	writer *lumberjack.Logger
	mu     sync.Mutex
}

// NewFile creates a file transport writing to the endpoint path.
func NewFile(endpoint string, cfg config.FileConfig) (*File, error) {
	path := strings.TrimSpace(endpoint)
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrInvalidEndpoint)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create event directory: %w", err)
		}
	}

	return &File{
		path: path,
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		},
	}, nil
}

// Endpoint returns the file path.
func (f *File) Endpoint() string {
	return f.path
}

// Send writes one line per event. A write error fails the event that hit
// it and every event after it.
func (f *File) Send(ctx context.Context, batch event.Batch) event.Outcome {
	if len(batch) == 0 {
		return event.Outcome{}
	}
	if err := ctx.Err(); err != nil {
		return event.FailedAll(batch, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out event.Outcome
	for i, ev := range batch {
		line, err := json.Marshal(ev)
		if err != nil {
			out.Failed = append(out.Failed, ev)
			out.Err = fmt.Errorf("failed to marshal event %s: %w", ev.ID(), err)
			continue
		}
		if _, err := f.writer.Write(append(line, '\n')); err != nil {
			out.Failed = append(out.Failed, batch[i:]...)
			out.Err = fmt.Errorf("failed to write to file: %w", err)
			return out
		}
		out.Success++
	}
	return out
}

// Close closes the current file. A later Send reopens it.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writer.Close()
}
