//go:build !windows
// +build !windows

package service

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"telemetryagent/internal/logger"
)

// UnixService stops on SIGINT or SIGTERM. A second signal, or the stop
// timeout elapsing, makes Run return without waiting further.
type UnixService struct {
	runFunc RunFunc
	opts    Options

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewService creates the platform service for runFunc.
func NewService(runFunc RunFunc, opts Options) Service {
	return &UnixService{runFunc: runFunc, opts: opts}
}

func (s *UnixService) Run(ctx context.Context) error {
	log := logger.WithComponent("service")

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan error, 1)
	go func() {
		done <- s.runFunc(ctx)
	}()

	log.Info().Bool("managed", s.IsService()).Msg("Service started")

	select {
	case err := <-done:
		return err
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
	}

	s.Stop()

	timer := time.NewTimer(s.opts.stopTimeout())
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case sig := <-sigChan:
		log.Warn().Str("signal", sig.String()).Msg("Received second signal, exiting without waiting")
	case <-timer.C:
		log.Warn().Dur("timeout", s.opts.stopTimeout()).Msg("Timed out waiting for agent to stop")
	}
	return nil
}

func (s *UnixService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// IsService treats a non-terminal stdin as a service manager launch
// (systemd, launchd).
func (s *UnixService) IsService() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}
