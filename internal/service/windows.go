//go:build windows
// +build windows

package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/windows/svc"

	"telemetryagent/internal/logger"
)

// WindowsService runs under the Service Control Manager when started by
// it, and as a plain process otherwise.
type WindowsService struct {
	runFunc RunFunc
	opts    Options

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewService creates the platform service for runFunc.
func NewService(runFunc RunFunc, opts Options) Service {
	return &WindowsService{runFunc: runFunc, opts: opts}
}

func (s *WindowsService) Run(ctx context.Context) error {
	if !s.IsService() {
		ctx, cancel := context.WithCancel(ctx)
		s.setCancel(cancel)
		defer cancel()
		return s.runFunc(ctx)
	}
	return svc.Run(Name, s)
}

func (s *WindowsService) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

func (s *WindowsService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *WindowsService) IsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Execute implements svc.Handler.
func (s *WindowsService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	log := logger.WithComponent("service")

	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	s.setCancel(cancel)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.runFunc(ctx)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}
	log.Info().Msg("Windows service started")

	for {
		select {
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
				time.Sleep(100 * time.Millisecond)
				changes <- c.CurrentStatus

			case svc.Stop, svc.Shutdown:
				log.Info().Msg("Received stop request from service control manager")
				changes <- svc.Status{State: svc.StopPending, WaitHint: uint32(s.opts.stopTimeout() / time.Millisecond)}
				s.Stop()

				select {
				case <-done:
				case <-time.After(s.opts.stopTimeout()):
					log.Warn().Dur("timeout", s.opts.stopTimeout()).Msg("Timed out waiting for agent to stop")
				}
				changes <- svc.Status{State: svc.Stopped}
				return false, 0

			default:
				log.Warn().Int("cmd", int(c.Cmd)).Msg("Unexpected service control command")
			}

		case err := <-done:
			changes <- svc.Status{State: svc.Stopped}
			if err != nil {
				log.Error().Err(err).Msg("Agent exited with error")
				return true, 1
			}
			return false, 0
		}
	}
}
