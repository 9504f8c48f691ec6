// Package observer receives per-batch delivery results from the emitter.
package observer

import (
	"github.com/rs/zerolog"

	"telemetryagent/internal/event"
)

// Observer is notified after every delivery attempt.
//
// OnSuccess is called when a whole batch was delivered. OnFailure is called
// when at least one event of the batch failed; successCount is the number
// of events of the same batch that were delivered.
type Observer interface {
	OnSuccess(count int)
	OnFailure(successCount int, failed []event.Event)
}

// Func adapts plain functions to Observer. Nil fields are skipped.
type Func struct {
	Success func(count int)
	Failure func(successCount int, failed []event.Event)
}

func (f Func) OnSuccess(count int) {
	if f.Success != nil {
		f.Success(count)
	}
}

func (f Func) OnFailure(successCount int, failed []event.Event) {
	if f.Failure != nil {
		f.Failure(successCount, failed)
	}
}

// Nop ignores every notification.
var Nop Observer = nop{}

type nop struct{}

func (nop) OnSuccess(int) {}
func (nop) OnFailure(int, []event.Event) {}

// Log writes delivery results to a zerolog logger.
type Log struct {
	log zerolog.Logger
}

// NewLog creates a logging observer.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) OnSuccess(count int) {
	l.log.Info().Int("count", count).Msg("Events sent")
}

func (l *Log) OnFailure(successCount int, failed []event.Event) {
	ids := make([]string, len(failed))
	for i, ev := range failed {
		ids[i] = ev.ID()
	}
	l.log.Warn().
		Int("sent", successCount).
		Int("failed", len(failed)).
		Strs("failed_ids", ids).
		Msg("Failed to send events")
}

// Multi fans notifications out to several observers in order.
type Multi []Observer

func (m Multi) OnSuccess(count int) {
	for _, o := range m {
		o.OnSuccess(count)
	}
}

func (m Multi) OnFailure(successCount int, failed []event.Event) {
	for _, o := range m {
		o.OnFailure(successCount, failed)
	}
}

// Safe wraps an observer so a panic inside it is logged and swallowed.
// The emitter wraps every observer it is given with Safe.
func Safe(o Observer, log zerolog.Logger) Observer {
	if o == nil {
		return Nop
	}
	if s, ok := o.(*safe); ok {
		return s
	}
	return &safe{next: o, log: log}
}

type safe struct {
	next Observer
	log  zerolog.Logger
}

func (s *safe) OnSuccess(count int) {
	defer s.recover("OnSuccess")
	s.next.OnSuccess(count)
}

func (s *safe) OnFailure(successCount int, failed []event.Event) {
	defer s.recover("OnFailure")
	s.next.OnFailure(successCount, failed)
}

func (s *safe) recover(callback string) {
	if r := recover(); r != nil {
		s.log.Error().
			Str("callback", callback).
			Interface("panic", r).
			Msg("Observer panicked")
	}
}
