// Package transport delivers event batches to a collector.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"telemetryagent/internal/config"
	"telemetryagent/internal/event"
)

// ErrInvalidEndpoint is returned when an endpoint cannot be used by a transport.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Transport delivers one batch at a time to a single endpoint.
type Transport interface {
	// Send delivers the batch. Failures are reported in the outcome,
	// never as a panic or a separate error.
	Send(ctx context.Context, batch event.Batch) event.Outcome

	// Endpoint returns the destination this transport delivers to.
	Endpoint() string

	// Close releases idle resources. It must be safe to call while
	// sends are still in flight.
	Close() error
}

// ParseEndpoint builds a collector endpoint URL from its parts.
func ParseEndpoint(protocol, host string, port int) (string, error) {
	u, err := config.CollectorURL(protocol, host, port)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	return u.String(), nil
}

// Factory builds a Transport for an endpoint. The emitter calls it at
// construction time and again on every endpoint change.
type Factory func(endpoint string) (Transport, error)

// NewFactory returns the factory for the sink type configured in cfg.
func NewFactory(cfg *config.Config, log zerolog.Logger) (Factory, error) {
	sinkType := strings.ToLower(cfg.SinkType)
	if sinkType == "" {
		sinkType = "http"
	}

	log.Info().Str("sink_type", sinkType).Msg("Creating transport factory")

	switch sinkType {
	case "http":
		opts := HTTPOptions{
			Path:     cfg.Collector.Path,
			PoolSize: cfg.Collector.PoolSize,
			Timeout:  cfg.Collector.RequestTimeout,
			Compress: cfg.Collector.Compress,
			SOCKS:    cfg.SOCKSProxy,
		}
		return func(endpoint string) (Transport, error) {
			return NewHTTP(endpoint, opts)
		}, nil
	case "kafka":
		kcfg := cfg.Kafka
		socks := cfg.SOCKSProxy
		return func(endpoint string) (Transport, error) {
			return NewKafka(endpoint, kcfg, socks)
		}, nil
	case "file":
		fcfg := cfg.File
		return func(endpoint string) (Transport, error) {
			return NewFile(endpoint, fcfg)
		}, nil
	default:
		return nil, fmt.Errorf("unknown sink type: %s (supported: http, kafka, file)", cfg.SinkType)
	}
}
