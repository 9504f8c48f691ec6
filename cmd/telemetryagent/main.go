// Package main is the entry point for the TelemetryAgent application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"telemetryagent/internal/config"
	"telemetryagent/internal/emitter"
	"telemetryagent/internal/logger"
	"telemetryagent/internal/metric"
	"telemetryagent/internal/network"
	"telemetryagent/internal/observer"
	"telemetryagent/internal/scheduler"
	"telemetryagent/internal/service"
	"telemetryagent/internal/transport"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const startupErrorLogDir = "log/TelemetryAgent"

// shutdownMargin is added to the emitter's worst-case close time when
// bounding how long the service waits for the run function.
const shutdownMargin = 5 * time.Second

func main() {
	flagSet := pflag.NewFlagSet("telemetryagent", pflag.ContinueOnError)
	configPath := flagSet.String("config", "conf/TelemetryAgent/TelemetryAgent.json", "path to the agent configuration file")
	loggingPath := flagSet.String("logging", "conf/TelemetryAgent/Logging.json", "path to the logging configuration file")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *showVersion {
		fmt.Printf("TelemetryAgent %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Under a service manager the working directory is not the install
	// directory. An absolute <base>/conf/TelemetryAgent/X.json selects <base>.
	if filepath.IsAbs(*configPath) {
		basePath := filepath.Dir(filepath.Dir(filepath.Dir(*configPath)))
		if err := os.Chdir(basePath); err != nil {
			fail(fmt.Errorf("failed to change directory to %s: %w", basePath, err))
		}
	}

	if service.NewService(nil, service.Options{}).IsService() {
		logger.SetServiceMode(true)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(fmt.Errorf("failed to load configuration: %w", err))
	}
	lc, err := config.LoadLogging(*loggingPath)
	if err != nil {
		fail(fmt.Errorf("failed to load logging configuration: %w", err))
	}
	if err := logger.Init(*lc); err != nil {
		fail(fmt.Errorf("failed to initialize logger: %w", err))
	}
	defer logger.Close()

	log := logger.WithComponent("main")
	log.Info().
		Str("version", version).
		Str("config", *configPath).
		Str("logging", *loggingPath).
		Msg("Starting TelemetryAgent")

	closeTimeout := cfg.Emitter.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = emitter.DefaultCloseTimeout
	}

	svc := service.NewService(func(ctx context.Context) error {
		return run(ctx, cfg, *configPath, *loggingPath)
	}, service.Options{StopTimeout: 2*closeTimeout + shutdownMargin})

	if err := svc.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("Service exited with error")
		logger.Close()
		os.Exit(1)
	}

	log.Info().Msg("TelemetryAgent stopped")
}

// fail reports an error that happened before logging was available and exits.
func fail(err error) {
	service.ReportStartupError(err)
	service.WriteStartupError(startupErrorLogDir, err)
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func run(ctx context.Context, cfg *config.Config, configPath, loggingPath string) error {
	log := logger.WithComponent("main")

	agentID := config.GetAgentID(cfg)
	hostname := config.GetHostname(cfg)
	log.Info().
		Str("agent_id", agentID).
		Str("hostname", hostname).
		Msg("Agent initialized")

	// Phase 1: Transport
	factory, err := transport.NewFactory(cfg, logger.Logger())
	if err != nil {
		return err
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return fmt.Errorf("invalid collector endpoint: %w", err)
	}

	// Phase 2: Observers
	observers := observer.Multi{observer.NewLog(logger.WithComponent("observer"))}
	spool, err := setupSpool(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed-event spool unavailable, undelivered events will only be logged")
	} else if spool != nil {
		defer spool.Close()
		observers = append(observers, spool)
	}

	// Phase 3: Emitter
	em, err := emitter.New(emitter.Options{
		Endpoint:         endpoint,
		NewTransport:     factory,
		BufferSize:       cfg.Emitter.BufferSize,
		FlushInterval:    cfg.Emitter.FlushInterval,
		MaxQueuedBatches: cfg.Emitter.MaxQueuedBatches,
		CloseTimeout:     cfg.Emitter.CloseTimeout,
		Observer:         observers,
		Logger:           logger.Logger(),
	})
	if err != nil {
		return err
	}
	log.Info().Str("endpoint", em.Endpoint()).Msg("Emitter started")

	if spool != nil {
		n, err := spool.Replay(ctx, em.Emit)
		if err != nil {
			log.Warn().Err(err).Int("replayed", n).Msg("Spool replay stopped early")
		} else if n > 0 {
			log.Info().Int("replayed", n).Msg("Replayed spooled events")
		}
	}

	// Phase 4: Sources and scheduler
	registry := metric.DefaultRegistry()
	cfg.ApplySourceDefaults(registry.Defaults())
	registry.Configure(cfg.Sources)

	sched := scheduler.New(registry, em, agentID, hostname)
	if err := sched.Start(ctx); err != nil {
		closeEmitter(em, cfg.Emitter.CloseTimeout)
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Phase 5: Watchers
	cleanupWatchers := setupWatchers(registry, sched, em, configPath, loggingPath)

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	cleanupWatchers()
	sched.Stop()
	closeEmitter(em, cfg.Emitter.CloseTimeout)
	return nil
}

// setupSpool connects the Redis spool when it is enabled. It returns nil,
// nil when the spool is disabled.
func setupSpool(ctx context.Context, cfg *config.Config) (*observer.Spool, error) {
	if !cfg.Spool.Enabled {
		return nil, nil
	}

	dial, err := network.DialContextFunc(cfg.SOCKSProxy)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS dialer: %w", err)
	}

	spool, err := observer.NewSpool(observer.SpoolOptions{
		Address:   cfg.Spool.Address,
		Password:  cfg.Spool.Password,
		DB:        cfg.Spool.DB,
		Key:       cfg.Spool.Key,
		MaxLength: cfg.Spool.MaxLength,
		Dialer:    dial,
	}, logger.WithComponent("spool"))
	if err != nil {
		return nil, err
	}
	if err := spool.Ping(ctx); err != nil {
		spool.Close()
		return nil, fmt.Errorf("failed to reach spool at %s: %w", cfg.Spool.Address, err)
	}
	return spool, nil
}

// closeEmitter drains the emitter within its two close phases.
func closeEmitter(em *emitter.Emitter, closeTimeout time.Duration) {
	log := logger.WithComponent("main")
	if closeTimeout <= 0 {
		closeTimeout = emitter.DefaultCloseTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*closeTimeout+shutdownMargin)
	defer cancel()

	if err := em.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing emitter")
	}
	st := em.Stats()
	log.Info().
		Str("state", em.State().String()).
		Int64("sent", st.Sent).
		Int64("failed", st.Failed).
		Int64("dropped", st.Dropped).
		Msg("Emitter closed")
}

// setupWatchers creates hot-reload watchers for the agent and logging
// configuration. The returned function stops every started watcher.
func setupWatchers(registry *metric.Registry, sched *scheduler.Scheduler, em *emitter.Emitter,
	configPath, loggingPath string) func() {

	log := logger.WithComponent("main")
	var watcherMu sync.Mutex
	var cleanups []func()

	start := func(name string, w *config.FileWatcher, err error) {
		if err != nil {
			log.Warn().Err(err).Str("watcher", name).Msg("Failed to create watcher, hot reload disabled")
			return
		}
		if err := w.Start(); err != nil {
			log.Warn().Err(err).Str("watcher", name).Msg("Failed to start watcher")
			return
		}
		cleanups = append(cleanups, func() {
			if err := w.Stop(); err != nil {
				log.Error().Err(err).Str("watcher", name).Msg("Error stopping watcher")
			}
		})
	}

	configWatcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		watcherMu.Lock()
		defer watcherMu.Unlock()

		log.Info().Msg("Applying agent configuration changes")

		if endpoint, err := newCfg.Endpoint(); err != nil {
			log.Error().Err(err).Msg("Ignoring invalid collector endpoint")
		} else if endpoint != em.Endpoint() {
			if err := em.ChangeEndpoint(endpoint); err != nil {
				log.Error().Err(err).Str("endpoint", endpoint).Msg("Failed to change collector endpoint")
			} else {
				log.Info().Str("endpoint", endpoint).Msg("Collector endpoint changed")
			}
		}

		newCfg.ApplySourceDefaults(registry.Defaults())
		registry.Configure(newCfg.Sources)
		sched.Reconfigure()
	})
	start("config", configWatcher, err)

	loggingWatcher, err := config.NewLoggingWatcher(loggingPath, func(newLC *logger.Config) {
		watcherMu.Lock()
		defer watcherMu.Unlock()

		if err := logger.Init(*newLC); err != nil {
			log.Error().Err(err).Msg("Failed to update logging configuration")
			return
		}
		reloaded := logger.WithComponent("main")
		reloaded.Info().Msg("Logging configuration updated")
	})
	start("logging", loggingWatcher, err)

	return func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}
