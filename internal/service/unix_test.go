//go:build !windows
// +build !windows

package service

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"telemetryagent/internal/logger"
)

func init() {
	_ = logger.Init(logger.Config{Level: "disabled"})
}

func runAsync(ctx context.Context, s Service) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestUnixService_ReturnsRunError(t *testing.T) {
	want := errors.New("config invalid")
	s := NewService(func(ctx context.Context) error { return want }, Options{})

	if err := waitErr(t, runAsync(context.Background(), s)); !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
}

func TestUnixService_StopCancelsRun(t *testing.T) {
	started := make(chan struct{})
	s := NewService(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}, Options{})

	errc := runAsync(context.Background(), s)
	<-started
	s.Stop()

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnixService_SignalStopsRun(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})
	s := NewService(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil
	}, Options{})

	errc := runAsync(context.Background(), s)
	<-started

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send SIGTERM: %v", err)
	}

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-stopped:
	default:
		t.Error("run function did not observe cancellation")
	}
}

func TestUnixService_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s := NewService(func(ctx context.Context) error {
		<-release
		return nil
	}, Options{StopTimeout: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, s)
	cancel()

	start := time.Now()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Run should give up after the stop timeout")
	}
}
