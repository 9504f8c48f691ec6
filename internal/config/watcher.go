package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"telemetryagent/internal/logger"
)

// reloadDelay coalesces the burst of events an editor save produces into
// a single reload.
const reloadDelay = 150 * time.Millisecond

// FileWatcher calls onChange after a file is written or replaced.
type FileWatcher struct {
	path     string
	name     string
	fsw      *fsnotify.Watcher
	onChange func()
	delay    time.Duration

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	exited  chan struct{}
}

// NewFileWatcher creates a watcher for path. It does nothing until Start.
func NewFileWatcher(path string, onChange func()) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &FileWatcher{
		path:     path,
		name:     filepath.Base(path),
		fsw:      fsw,
		onChange: onChange,
		delay:    reloadDelay,
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}, nil
}

// Start watches the parent directory, which also catches editors that save
// by rename.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return nil
	}
	if err := fw.fsw.Add(filepath.Dir(fw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", fw.path, err)
	}
	fw.running = true

	log := logger.WithComponent("file-watcher")
	log.Info().Str("path", fw.path).Msg("Watching file")
	go fw.loop()
	return nil
}

// Stop ends the watch loop and waits for it. A reload in progress finishes
// first.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.quit)
	err := fw.fsw.Close()
	<-fw.exited
	return err
}

func (fw *FileWatcher) relevant(ev fsnotify.Event) bool {
	return filepath.Base(ev.Name) == fw.name && ev.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (fw *FileWatcher) loop() {
	defer close(fw.exited)

	log := logger.WithComponent("file-watcher")

	pending := time.NewTimer(fw.delay)
	if !pending.Stop() {
		<-pending.C
	}
	defer pending.Stop()

	for {
		select {
		case <-fw.quit:
			log.Info().Str("path", fw.path).Msg("Stopped watching file")
			return

		case ev, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			if !fw.relevant(ev) {
				continue
			}
			log.Debug().Str("path", fw.path).Str("op", ev.Op.String()).Msg("File event")
			pending.Reset(fw.delay)

		case <-pending.C:
			log.Info().Str("path", fw.path).Msg("File changed, reloading")
			if fw.onChange != nil {
				fw.onChange()
			}

		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("path", fw.path).Msg("File watcher error")
		}
	}
}

// IsRunning reports whether Start has been called without a matching Stop.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// NewWatcher creates a watcher that loads a full Config on file change.
func NewWatcher(path string, callback func(*Config)) (*FileWatcher, error) {
	return NewFileWatcher(path, func() {
		log := logger.WithComponent("config-watcher")
		cfg, err := Load(path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
			return
		}
		if callback != nil {
			callback(cfg)
		}
	})
}

// NewLoggingWatcher creates a watcher that loads logger.Config on file change.
func NewLoggingWatcher(path string, callback func(*logger.Config)) (*FileWatcher, error) {
	return NewFileWatcher(path, func() {
		log := logger.WithComponent("logging-watcher")
		lc, err := LoadLogging(path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to reload logging configuration")
			return
		}
		if callback != nil {
			callback(lc)
		}
	})
}
