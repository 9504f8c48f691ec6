// Package scheduler samples metric sources periodically and emits the
// samples as telemetry events.
package scheduler

import (
	"context"
	"sync"
	"time"

	"telemetryagent/internal/event"
	"telemetryagent/internal/logger"
	"telemetryagent/internal/metric"
)

const collectTimeout = 30 * time.Second

// SourceList provides the sources that should currently run.
type SourceList interface {
	Enabled() []metric.Source
}

// Emitter accepts events for delivery.
type Emitter interface {
	Emit(ev event.Event) error
}

// Scheduler runs one goroutine per enabled source.
type Scheduler struct {
	sources  SourceList
	emitter  Emitter
	agentID  string
	hostname string

	mu        sync.Mutex
	running   bool
	parentCtx context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a scheduler. Every emitted event carries the agent id (aid)
// and hostname (host).
func New(sources SourceList, emitter Emitter, agentID, hostname string) *Scheduler {
	return &Scheduler{
		sources:  sources,
		emitter:  emitter,
		agentID:  agentID,
		hostname: hostname,
	}
}

// Start launches a goroutine for each enabled source.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.parentCtx = ctx
	s.startLocked()
	return nil
}

func (s *Scheduler) startLocked() {
	log := logger.WithComponent("scheduler")

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(s.parentCtx)

	sources := s.sources.Enabled()
	log.Info().Int("enabled_count", len(sources)).Msg("Starting scheduler")
	for _, src := range sources {
		s.wg.Add(1)
		go s.runSource(ctx, src)
	}
}

// Stop stops all sources and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.wg.Wait()
	log := logger.WithComponent("scheduler")
	log.Info().Msg("Scheduler stopped")
}

// Reconfigure restarts the source goroutines so changed intervals and
// enabled flags take effect. It does nothing when the scheduler is stopped.
func (s *Scheduler) Reconfigure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.startLocked()
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runSource(ctx context.Context, src metric.Source) {
	defer s.wg.Done()

	log := logger.WithComponent("scheduler")
	interval := src.Interval()
	log.Info().Str("source", src.Name()).Dur("interval", interval).Msg("Starting source")

	s.collect(ctx, src)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("source", src.Name()).Msg("Source stopped")
			return
		case <-ticker.C:
			s.collect(ctx, src)
		}
	}
}

func (s *Scheduler) collect(ctx context.Context, src metric.Source) {
	log := logger.WithComponent("scheduler")

	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	start := time.Now()
	ev, err := src.Collect(collectCtx)
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("source", src.Name()).Dur("duration", duration).Msg("Collection failed")
		return
	}

	fields := ev.Fields()
	fields["aid"] = s.agentID
	fields["host"] = s.hostname

	if err := s.emitter.Emit(event.New(fields)); err != nil {
		log.Warn().Err(err).Str("source", src.Name()).Msg("Failed to emit metric event")
		return
	}

	log.Debug().Str("source", src.Name()).Dur("duration", duration).Msg("Collection completed")
}
