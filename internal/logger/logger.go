// Package logger owns the process-wide zerolog logger: a rotating file,
// an optional console and the fixed-width file format.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleBufferSize = 1000

// asyncWriter hands writes to a goroutine so a stalled console cannot hold
// up the file output or the goroutines doing the logging. Writes that do
// not fit in the buffer are counted and dropped.
type asyncWriter struct {
	out     io.Writer
	queue   chan []byte
	drained chan struct{}
	dropped atomic.Int64

	mu       sync.RWMutex
	shutDown bool
	once     sync.Once
}

func newAsyncWriter(out io.Writer, size int) *asyncWriter {
	aw := &asyncWriter{
		out:     out,
		queue:   make(chan []byte, size),
		drained: make(chan struct{}),
	}
	go func() {
		defer close(aw.drained)
		for p := range aw.queue {
			_, _ = aw.out.Write(p)
		}
	}()
	return aw
}

func (aw *asyncWriter) Write(p []byte) (int, error) {
	aw.mu.RLock()
	defer aw.mu.RUnlock()

	if aw.shutDown {
		return len(p), nil
	}
	// zerolog reuses p after Write returns.
	buf := append([]byte(nil), p...)
	select {
	case aw.queue <- buf:
	default:
		aw.dropped.Add(1)
	}
	return len(p), nil
}

// Close rejects further writes and waits for the queue to drain.
func (aw *asyncWriter) Close() {
	aw.once.Do(func() {
		aw.mu.Lock()
		aw.shutDown = true
		close(aw.queue)
		aw.mu.Unlock()
		<-aw.drained
	})
}

// Config holds the logger configuration.
type Config struct {
	Level      string `json:"Level"`
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays"`
	Compress   bool   `json:"Compress"`
	Console    bool   `json:"Console"`
	Format     string `json:"Format"` // "json" (default) or "fixed", file output only
}

// DefaultConfig returns the logging defaults.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		FilePath:   "log/TelemetryAgent/agent.log",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
		Format:     "json",
	}
}

// outputs are the writers opened by the last Init.
type outputs struct {
	file    *lumberjack.Logger
	console *asyncWriter
}

func (o *outputs) close() {
	if o.console != nil {
		o.console.Close()
		o.console = nil
	}
	if o.file != nil {
		_ = o.file.Close()
		o.file = nil
	}
}

var (
	mu          sync.Mutex
	global      = zerolog.Nop()
	current     outputs
	serviceMode bool
)

// SetServiceMode suppresses console output. A service has no console and
// writes to a detached stdout can block.
func SetServiceMode(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	serviceMode = enabled
}

// Init replaces the global logger. Calling it again applies a reloaded
// configuration and closes the writers of the previous call.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	current.close()

	var writers []io.Writer
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return err
		}
		current.file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		var w io.Writer = current.file
		if cfg.Format == "fixed" {
			w = NewFixedFormatWriter(w)
		}
		writers = append(writers, w)
	}

	if cfg.Console && !serviceMode {
		current.console = newAsyncWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, consoleBufferSize)
		writers = append(writers, current.console)
	}

	var out io.Writer
	switch {
	case len(writers) > 1:
		out = zerolog.MultiLevelWriter(writers...)
	case len(writers) == 1:
		out = writers[0]
	case serviceMode:
		out = io.Discard
	default:
		out = os.Stdout
	}

	global = zerolog.New(out).With().Timestamp().Caller().Logger()
	return nil
}

// Close flushes the console and closes the log file. Logging afterwards
// is discarded until the next Init.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	current.close()
	global = zerolog.Nop()
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return global
}

func Debug() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}

// WithComponent returns the global logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}
