// Package metric provides sources that sample the local system and turn
// the samples into telemetry events.
package metric

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"telemetryagent/internal/config"
	"telemetryagent/internal/event"
)

// Category is the structured-event category of every metric event.
const Category = "metric"

// Source samples one aspect of the system.
type Source interface {
	// Name returns the unique identifier for this source.
	Name() string

	// Collect takes one sample and returns it as an event.
	Collect(ctx context.Context) (event.Event, error)

	// Configure applies the given configuration to the source.
	Configure(cfg config.SourceConfig)

	// Interval returns the sampling interval.
	Interval() time.Duration

	// Enabled returns whether the source is enabled.
	Enabled() bool

	// DefaultConfig returns the default SourceConfig for this source.
	DefaultConfig() config.SourceConfig
}

// BaseSource provides the name, interval and enabled flag shared by all
// sources.
type BaseSource struct {
	mu       sync.RWMutex
	name     string
	interval time.Duration
	enabled  bool
}

// NewBaseSource creates a BaseSource with the given name and interval.
func NewBaseSource(name string, interval time.Duration) BaseSource {
	return BaseSource{
		name:     name,
		interval: interval,
		enabled:  true,
	}
}

func (b *BaseSource) Name() string {
	return b.name
}

func (b *BaseSource) Interval() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.interval
}

func (b *BaseSource) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// Configure sets the enabled flag and, when positive, the interval.
func (b *BaseSource) Configure(cfg config.SourceConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = cfg.Enabled
	if cfg.Interval > 0 {
		b.interval = cfg.Interval
	}
}

func (b *BaseSource) DefaultConfig() config.SourceConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return config.SourceConfig{Enabled: true, Interval: b.interval}
}

// newEvent builds a structured metric event for the source.
func (b *BaseSource) newEvent(fields map[string]any) event.Event {
	m := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		m[k] = v
	}
	m[event.FieldType] = "se"
	m["se_ca"] = Category
	m["se_ac"] = b.name
	return event.New(m)
}

// Registry holds the available sources by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source. Names must be unique.
func (r *Registry) Register(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[s.Name()]; exists {
		return fmt.Errorf("source %s already registered", s.Name())
	}
	r.sources[s.Name()] = s
	return nil
}

// Get retrieves a source by name.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// All returns every registered source sorted by name.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Enabled returns the enabled sources sorted by name.
func (r *Registry) Enabled() []Source {
	var result []Source
	for _, s := range r.All() {
		if s.Enabled() {
			result = append(result, s)
		}
	}
	return result
}

// Configure applies per-source settings. Unknown names are ignored.
func (r *Registry) Configure(configs map[string]config.SourceConfig) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, cfg := range configs {
		if s, ok := r.sources[name]; ok {
			s.Configure(cfg)
		}
	}
}

// Defaults returns the default configuration of every source.
func (r *Registry) Defaults() map[string]config.SourceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defaults := make(map[string]config.SourceConfig, len(r.sources))
	for name, s := range r.sources {
		defaults[name] = s.DefaultConfig()
	}
	return defaults
}

// DefaultRegistry creates a registry with all built-in sources.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NewSystemSource())
	_ = r.Register(NewCPUSource())
	_ = r.Register(NewMemorySource())
	_ = r.Register(NewDiskSource())
	_ = r.Register(NewNetworkSource())
	_ = r.Register(NewUptimeSource())
	return r
}
