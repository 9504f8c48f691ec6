package emitter

import (
	"context"
	"fmt"
)

// State is the lifecycle state of an Emitter.
type State int

const (
	Running State = iota
	Closing
	Terminated
	ForcedTerminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Closing:
		return "closing"
	case Terminated:
		return "terminated"
	case ForcedTerminated:
		return "forced-terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// State returns the current lifecycle state.
func (e *Emitter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Emitter) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Close stops accepting events, flushes everything buffered and stops the
// worker.
//
// The worker gets CloseTimeout to finish. After that in-flight deliveries
// are cancelled and the worker gets one more CloseTimeout; if it is still
// running Close gives up, logs a warning and the emitter ends in
// ForcedTerminated. Cancelling ctx cancels in-flight deliveries at once and
// Close returns ctx.Err().
//
// Close is idempotent; later calls return nil.
func (e *Emitter) Close(ctx context.Context) error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()

	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return nil
	}
	e.state = Closing
	e.mu.Unlock()

	e.log.Info().Int("pending", e.Pending()).Msg("Closing emitter")
	close(e.stop)

	err := e.awaitWorker(ctx)
	e.forceCancel()

	t := e.tr.Load()
	if cerr := t.Close(); cerr != nil {
		e.log.Warn().Err(cerr).Str("endpoint", t.Endpoint()).Msg("Failed to close transport")
	}

	st := e.Stats()
	e.log.Info().
		Str("state", e.State().String()).
		Int64("emitted", st.Emitted).
		Int64("sent", st.Sent).
		Int64("failed", st.Failed).
		Int64("dropped", st.Dropped).
		Msg("Emitter closed")
	return err
}

func (e *Emitter) awaitWorker(ctx context.Context) error {
	timeout := e.opts.CloseTimeout

	graceful := e.opts.Clock.Timer(timeout)
	select {
	case <-e.done:
		graceful.Stop()
		e.setState(Terminated)
		return nil
	case <-ctx.Done():
		graceful.Stop()
		return e.interrupted(ctx)
	case <-graceful.C:
	}

	e.log.Warn().Dur("timeout", timeout).Msg("Emitter worker did not stop in time, cancelling in-flight deliveries")
	e.forceCancel()

	forced := e.opts.Clock.Timer(timeout)
	select {
	case <-e.done:
		forced.Stop()
		e.setState(Terminated)
		return nil
	case <-ctx.Done():
		forced.Stop()
		return e.interrupted(ctx)
	case <-forced.C:
	}

	e.log.Warn().Dur("timeout", timeout).Msg("Emitter worker did not terminate after cancellation, abandoning it")
	e.setState(ForcedTerminated)
	return nil
}

func (e *Emitter) interrupted(ctx context.Context) error {
	e.forceCancel()
	e.setState(ForcedTerminated)
	e.log.Warn().Err(ctx.Err()).Msg("Emitter close interrupted, cancelled in-flight deliveries")
	return fmt.Errorf("emitter close interrupted: %w", ctx.Err())
}
