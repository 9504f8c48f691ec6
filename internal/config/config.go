// Package config provides configuration management for the TelemetryAgent.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default collector location.
const (
	DefaultCollectorProtocol = "http"
	DefaultCollectorHost     = "utility.terasology.org"
	DefaultCollectorPort     = 14654
	DefaultCollectorPath     = "/com.snowplowanalytics.snowplow/tp2"
	DefaultCollectorOwner    = "Terasology Community"
	DefaultCollectorName     = "TelemetryCollector"
)

// Config is the root configuration structure.
type Config struct {
	Agent      AgentConfig             `json:"Agent"`
	SinkType   string                  `json:"SinkType"` // "http", "kafka", or "file"
	Collector  CollectorConfig         `json:"Collector"`
	Emitter    EmitterConfig           `json:"Emitter"`
	Kafka      KafkaConfig             `json:"Kafka"`
	File       FileConfig              `json:"File"`
	SOCKSProxy SOCKSConfig             `json:"SocksProxy"`
	Spool      SpoolConfig             `json:"Spool"`
	Sources    map[string]SourceConfig `json:"Sources"`
}

// AgentConfig identifies this agent in emitted events.
type AgentConfig struct {
	ID       string `json:"ID"`
	Hostname string `json:"Hostname"`
}

// CollectorConfig describes the HTTP collector endpoint.
type CollectorConfig struct {
	Protocol       string        `json:"Protocol"`
	Host           string        `json:"Host"`
	Port           int           `json:"Port"`
	Path           string        `json:"Path"`
	PoolSize       int           `json:"PoolSize"` // max connections per destination
	RequestTimeout time.Duration `json:"RequestTimeout"`
	Compress       bool          `json:"Compress"`
}

// EmitterConfig tunes batching and shutdown.
type EmitterConfig struct {
	BufferSize       int           `json:"BufferSize"`
	FlushInterval    time.Duration `json:"FlushInterval"`
	MaxQueuedBatches int           `json:"MaxQueuedBatches"`
	CloseTimeout     time.Duration `json:"CloseTimeout"`
}

// FileConfig contains settings for the file sink.
type FileConfig struct {
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	Compress   bool   `json:"Compress"`
}

// KafkaConfig contains Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string      `json:"Brokers"`
	Topic         string        `json:"Topic"`
	Compression   string        `json:"Compression"`
	RequiredAcks  int           `json:"RequiredAcks"`
	MaxRetries    int           `json:"MaxRetries"`
	RetryBackoff  time.Duration `json:"RetryBackoff"`
	Timeout       time.Duration `json:"Timeout"`
	EnableTLS     bool          `json:"EnableTLS"`
	TLSCertFile   string        `json:"TLSCertFile"`
	TLSKeyFile    string        `json:"TLSKeyFile"`
	TLSCAFile     string        `json:"TLSCAFile"`
	SASLEnabled   bool          `json:"SASLEnabled"`
	SASLMechanism string        `json:"SASLMechanism"`
	SASLUser      string        `json:"SASLUser"`
	SASLPassword  string        `json:"SASLPassword"`
}

// SOCKSConfig contains SOCKS5 proxy settings.
type SOCKSConfig struct {
	Host string `json:"Host"`
	Port int    `json:"Port"`
}

// SpoolConfig configures the Redis list that keeps undelivered events.
type SpoolConfig struct {
	Enabled   bool   `json:"Enabled"`
	Address   string `json:"Address"`
	Password  string `json:"Password"`
	DB        int    `json:"DB"`
	Key       string `json:"Key"`
	MaxLength int64  `json:"MaxLength"`
}

// SourceConfig contains settings for an individual metric source.
type SourceConfig struct {
	Enabled  bool          `json:"Enabled"`
	Interval time.Duration `json:"Interval"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SinkType: "http",
		Collector: CollectorConfig{
			Protocol:       DefaultCollectorProtocol,
			Host:           DefaultCollectorHost,
			Port:           DefaultCollectorPort,
			Path:           DefaultCollectorPath,
			PoolSize:       50,
			RequestTimeout: 10 * time.Second,
		},
		Emitter: EmitterConfig{
			// One event per request until the collector side is sized for batches.
			BufferSize:       1,
			FlushInterval:    10 * time.Second,
			MaxQueuedBatches: 100,
			CloseTimeout:     5 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "telemetry-events",
			Compression:  "snappy",
			RequiredAcks: 1,
			MaxRetries:   3,
			RetryBackoff: 100 * time.Millisecond,
			Timeout:      10 * time.Second,
		},
		File: FileConfig{
			FilePath:   "log/TelemetryAgent/events.jsonl",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Spool: SpoolConfig{
			Address:   "localhost:6379",
			DB:        0,
			Key:       "TELEMETRY_FAILED",
			MaxLength: 10000,
		},
		Sources: make(map[string]SourceConfig),
	}
}

// Endpoint returns the endpoint string handed to the transport factory for
// the configured sink type.
func (c *Config) Endpoint() (string, error) {
	switch strings.ToLower(c.SinkType) {
	case "", "http":
		u, err := CollectorURL(c.Collector.Protocol, c.Collector.Host, c.Collector.Port)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return "", fmt.Errorf("kafka sink requires at least one broker")
		}
		return strings.Join(c.Kafka.Brokers, ","), nil
	case "file":
		if c.File.FilePath == "" {
			return "", fmt.Errorf("file sink requires FilePath")
		}
		return c.File.FilePath, nil
	default:
		return "", fmt.Errorf("unknown sink type: %s (supported: http, kafka, file)", c.SinkType)
	}
}

// CollectorURL builds protocol://host:port, rejecting malformed parts.
func CollectorURL(protocol, host string, port int) (*url.URL, error) {
	protocol = strings.ToLower(protocol)
	if protocol != "http" && protocol != "https" {
		return nil, fmt.Errorf("collector URL malformed: unsupported protocol %q", protocol)
	}
	if host == "" || strings.ContainsAny(host, "/?#@ ") {
		return nil, fmt.Errorf("collector URL malformed: invalid host %q", host)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("collector URL malformed: invalid port %d", port)
	}
	return &url.URL{
		Scheme: protocol,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}, nil
}

// Merge applies non-zero values from other to this config.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Agent.ID != "" {
		c.Agent.ID = other.Agent.ID
	}
	if other.Agent.Hostname != "" {
		c.Agent.Hostname = other.Agent.Hostname
	}
	if other.SinkType != "" {
		c.SinkType = other.SinkType
	}

	// Collector
	if other.Collector.Protocol != "" {
		c.Collector.Protocol = other.Collector.Protocol
	}
	if other.Collector.Host != "" {
		c.Collector.Host = other.Collector.Host
	}
	if other.Collector.Port != 0 {
		c.Collector.Port = other.Collector.Port
	}
	if other.Collector.Path != "" {
		c.Collector.Path = other.Collector.Path
	}
	if other.Collector.PoolSize != 0 {
		c.Collector.PoolSize = other.Collector.PoolSize
	}
	if other.Collector.RequestTimeout != 0 {
		c.Collector.RequestTimeout = other.Collector.RequestTimeout
	}
	c.Collector.Compress = other.Collector.Compress

	// Emitter
	if other.Emitter.BufferSize != 0 {
		c.Emitter.BufferSize = other.Emitter.BufferSize
	}
	if other.Emitter.FlushInterval != 0 {
		c.Emitter.FlushInterval = other.Emitter.FlushInterval
	}
	if other.Emitter.MaxQueuedBatches != 0 {
		c.Emitter.MaxQueuedBatches = other.Emitter.MaxQueuedBatches
	}
	if other.Emitter.CloseTimeout != 0 {
		c.Emitter.CloseTimeout = other.Emitter.CloseTimeout
	}

	// File
	if other.File.FilePath != "" {
		c.File.FilePath = other.File.FilePath
	}
	if other.File.MaxSizeMB != 0 {
		c.File.MaxSizeMB = other.File.MaxSizeMB
	}
	if other.File.MaxBackups != 0 {
		c.File.MaxBackups = other.File.MaxBackups
	}
	c.File.Compress = other.File.Compress

	// Kafka
	if len(other.Kafka.Brokers) > 0 {
		c.Kafka.Brokers = other.Kafka.Brokers
	}
	if other.Kafka.Topic != "" {
		c.Kafka.Topic = other.Kafka.Topic
	}
	if other.Kafka.Compression != "" {
		c.Kafka.Compression = other.Kafka.Compression
	}
	if other.Kafka.RequiredAcks != 0 {
		c.Kafka.RequiredAcks = other.Kafka.RequiredAcks
	}
	if other.Kafka.MaxRetries != 0 {
		c.Kafka.MaxRetries = other.Kafka.MaxRetries
	}
	if other.Kafka.RetryBackoff != 0 {
		c.Kafka.RetryBackoff = other.Kafka.RetryBackoff
	}
	if other.Kafka.Timeout != 0 {
		c.Kafka.Timeout = other.Kafka.Timeout
	}
	c.Kafka.EnableTLS = other.Kafka.EnableTLS
	if other.Kafka.TLSCertFile != "" {
		c.Kafka.TLSCertFile = other.Kafka.TLSCertFile
	}
	if other.Kafka.TLSKeyFile != "" {
		c.Kafka.TLSKeyFile = other.Kafka.TLSKeyFile
	}
	if other.Kafka.TLSCAFile != "" {
		c.Kafka.TLSCAFile = other.Kafka.TLSCAFile
	}
	c.Kafka.SASLEnabled = other.Kafka.SASLEnabled
	if other.Kafka.SASLMechanism != "" {
		c.Kafka.SASLMechanism = other.Kafka.SASLMechanism
	}
	if other.Kafka.SASLUser != "" {
		c.Kafka.SASLUser = other.Kafka.SASLUser
	}
	if other.Kafka.SASLPassword != "" {
		c.Kafka.SASLPassword = other.Kafka.SASLPassword
	}

	// SOCKS proxy
	if other.SOCKSProxy.Host != "" {
		c.SOCKSProxy.Host = other.SOCKSProxy.Host
	}
	if other.SOCKSProxy.Port != 0 {
		c.SOCKSProxy.Port = other.SOCKSProxy.Port
	}

	// Spool
	c.Spool.Enabled = other.Spool.Enabled
	if other.Spool.Address != "" {
		c.Spool.Address = other.Spool.Address
	}
	if other.Spool.Password != "" {
		c.Spool.Password = other.Spool.Password
	}
	if other.Spool.DB != 0 {
		c.Spool.DB = other.Spool.DB
	}
	if other.Spool.Key != "" {
		c.Spool.Key = other.Spool.Key
	}
	if other.Spool.MaxLength != 0 {
		c.Spool.MaxLength = other.Spool.MaxLength
	}

	// Sources
	if c.Sources == nil {
		c.Sources = make(map[string]SourceConfig)
	}
	for name, src := range other.Sources {
		existing, ok := c.Sources[name]
		if !ok {
			c.Sources[name] = src
			continue
		}
		existing.Enabled = src.Enabled
		if src.Interval != 0 {
			existing.Interval = src.Interval
		}
		c.Sources[name] = existing
	}
}

// ApplySourceDefaults fills in missing source entries from defaults.
// Existing entries are not overwritten.
func (c *Config) ApplySourceDefaults(defaults map[string]SourceConfig) {
	if c.Sources == nil {
		c.Sources = make(map[string]SourceConfig)
	}
	for name, def := range defaults {
		if _, exists := c.Sources[name]; !exists {
			c.Sources[name] = def
		}
	}
}
