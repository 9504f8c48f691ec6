// Package service runs the agent under the platform's service manager:
// signal handling on Unix, the Service Control Manager on Windows.
package service

import (
	"context"
	"time"
)

// Name is the service and event source name.
const Name = "TelemetryAgent"

// DefaultStopTimeout bounds how long a stop request waits for the run
// function to return.
const DefaultStopTimeout = 30 * time.Second

// Service runs a RunFunc until it returns or a stop is requested.
type Service interface {
	// Run blocks until the run function returns or the service is stopped.
	Run(ctx context.Context) error

	// Stop cancels the context passed to the run function.
	Stop() error

	// IsService reports whether the process was started by a service manager.
	IsService() bool
}

// RunFunc is the agent body. It must return once ctx is cancelled.
type RunFunc func(ctx context.Context) error

// Options configures a Service.
type Options struct {
	// StopTimeout is how long Run waits for the run function after a stop
	// request before giving up on it. Zero means DefaultStopTimeout.
	StopTimeout time.Duration
}

func (o Options) stopTimeout() time.Duration {
	if o.StopTimeout > 0 {
		return o.StopTimeout
	}
	return DefaultStopTimeout
}
