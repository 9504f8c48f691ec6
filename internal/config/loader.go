package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"telemetryagent/internal/logger"
)

// rawConfig is used for JSON unmarshaling with duration strings.
type rawConfig struct {
	Agent      AgentConfig                `json:"Agent"`
	SinkType   string                     `json:"SinkType"`
	Collector  rawCollectorConfig         `json:"Collector"`
	Emitter    rawEmitterConfig           `json:"Emitter"`
	Kafka      rawKafkaConfig             `json:"Kafka"`
	File       FileConfig                 `json:"File"`
	SOCKSProxy SOCKSConfig                `json:"SocksProxy"`
	Spool      SpoolConfig                `json:"Spool"`
	Sources    map[string]rawSourceConfig `json:"Sources"`
}

type rawCollectorConfig struct {
	Protocol       string `json:"Protocol"`
	Host           string `json:"Host"`
	Port           int    `json:"Port"`
	Path           string `json:"Path"`
	PoolSize       int    `json:"PoolSize"`
	RequestTimeout string `json:"RequestTimeout"`
	Compress       bool   `json:"Compress"`
}

type rawEmitterConfig struct {
	BufferSize       int    `json:"BufferSize"`
	FlushInterval    string `json:"FlushInterval"`
	MaxQueuedBatches int    `json:"MaxQueuedBatches"`
	CloseTimeout     string `json:"CloseTimeout"`
}

type rawKafkaConfig struct {
	Brokers       []string `json:"Brokers"`
	Topic         string   `json:"Topic"`
	Compression   string   `json:"Compression"`
	RequiredAcks  int      `json:"RequiredAcks"`
	MaxRetries    int      `json:"MaxRetries"`
	RetryBackoff  string   `json:"RetryBackoff"`
	Timeout       string   `json:"Timeout"`
	EnableTLS     bool     `json:"EnableTLS"`
	TLSCertFile   string   `json:"TLSCertFile"`
	TLSKeyFile    string   `json:"TLSKeyFile"`
	TLSCAFile     string   `json:"TLSCAFile"`
	SASLEnabled   bool     `json:"SASLEnabled"`
	SASLMechanism string   `json:"SASLMechanism"`
	SASLUser      string   `json:"SASLUser"`
	SASLPassword  string   `json:"SASLPassword"`
}

type rawSourceConfig struct {
	Enabled  bool   `json:"Enabled"`
	Interval string `json:"Interval"`
}

type rawLoggingConfig struct {
	Level      string `json:"Level"`
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays"`
	Compress   bool   `json:"Compress"`
	Console    bool   `json:"Console"`
	Format     string `json:"Format"`
}

// Load reads configuration from the specified file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from JSON bytes.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg := DefaultConfig()
	parsed, err := convertRawConfig(&raw)
	if err != nil {
		return nil, err
	}

	cfg.Merge(parsed)
	return cfg, nil
}

func convertRawConfig(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		Agent:      raw.Agent,
		SinkType:   raw.SinkType,
		File:       raw.File,
		SOCKSProxy: raw.SOCKSProxy,
		Spool:      raw.Spool,
		Collector: CollectorConfig{
			Protocol: raw.Collector.Protocol,
			Host:     raw.Collector.Host,
			Port:     raw.Collector.Port,
			Path:     raw.Collector.Path,
			PoolSize: raw.Collector.PoolSize,
			Compress: raw.Collector.Compress,
		},
		Emitter: EmitterConfig{
			BufferSize:       raw.Emitter.BufferSize,
			MaxQueuedBatches: raw.Emitter.MaxQueuedBatches,
		},
	}

	var err error
	if cfg.Collector.RequestTimeout, err = parseDuration("Collector.RequestTimeout", raw.Collector.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.Emitter.FlushInterval, err = parseDuration("Emitter.FlushInterval", raw.Emitter.FlushInterval); err != nil {
		return nil, err
	}
	if cfg.Emitter.CloseTimeout, err = parseDuration("Emitter.CloseTimeout", raw.Emitter.CloseTimeout); err != nil {
		return nil, err
	}

	kafka, err := convertRawKafka(&raw.Kafka)
	if err != nil {
		return nil, err
	}
	cfg.Kafka = *kafka

	if len(raw.Sources) > 0 {
		cfg.Sources = make(map[string]SourceConfig, len(raw.Sources))
		for name, rs := range raw.Sources {
			interval, err := parseDuration("interval for source "+name, rs.Interval)
			if err != nil {
				return nil, err
			}
			cfg.Sources[name] = SourceConfig{Enabled: rs.Enabled, Interval: interval}
		}
	}

	return cfg, nil
}

func convertRawKafka(raw *rawKafkaConfig) (*KafkaConfig, error) {
	kafka := &KafkaConfig{
		Brokers:       raw.Brokers,
		Topic:         raw.Topic,
		Compression:   raw.Compression,
		RequiredAcks:  raw.RequiredAcks,
		MaxRetries:    raw.MaxRetries,
		EnableTLS:     raw.EnableTLS,
		TLSCertFile:   raw.TLSCertFile,
		TLSKeyFile:    raw.TLSKeyFile,
		TLSCAFile:     raw.TLSCAFile,
		SASLEnabled:   raw.SASLEnabled,
		SASLMechanism: raw.SASLMechanism,
		SASLUser:      raw.SASLUser,
		SASLPassword:  raw.SASLPassword,
	}

	var err error
	if kafka.RetryBackoff, err = parseDuration("RetryBackoff", raw.RetryBackoff); err != nil {
		return nil, err
	}
	if kafka.Timeout, err = parseDuration("Timeout", raw.Timeout); err != nil {
		return nil, err
	}
	return kafka, nil
}

// parseDuration returns 0 for an empty string so that Merge keeps the default.
func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	return d, nil
}

// LoadLogging reads logging configuration from the specified file path.
func LoadLogging(path string) (*logger.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logging config file: %w", err)
	}
	return ParseLogging(data)
}

// ParseLogging parses logging configuration from JSON bytes.
func ParseLogging(data []byte) (*logger.Config, error) {
	var raw rawLoggingConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse logging config JSON: %w", err)
	}

	def := logger.DefaultConfig()
	if raw.Level != "" {
		def.Level = raw.Level
	}
	if raw.FilePath != "" {
		def.FilePath = raw.FilePath
	}
	if raw.MaxSizeMB != 0 {
		def.MaxSizeMB = raw.MaxSizeMB
	}
	if raw.MaxBackups != 0 {
		def.MaxBackups = raw.MaxBackups
	}
	if raw.MaxAgeDays != 0 {
		def.MaxAgeDays = raw.MaxAgeDays
	}
	if raw.Format != "" {
		def.Format = raw.Format
	}
	def.Compress = raw.Compress
	def.Console = raw.Console

	return &def, nil
}

// GetHostname returns the configured hostname or the system hostname.
func GetHostname(cfg *Config) string {
	if cfg.Agent.Hostname != "" {
		return cfg.Agent.Hostname
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// GetAgentID returns the agent ID, falling back to the hostname.
func GetAgentID(cfg *Config) string {
	if cfg.Agent.ID != "" {
		return cfg.Agent.ID
	}
	return GetHostname(cfg)
}
