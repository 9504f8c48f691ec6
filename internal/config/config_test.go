package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- Default Config Tests ---

func TestDefaultConfig_CollectorDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Collector.Protocol != "http" {
		t.Errorf("expected Collector.Protocol=http, got %q", cfg.Collector.Protocol)
	}
	if cfg.Collector.Host != "utility.terasology.org" {
		t.Errorf("expected Collector.Host=utility.terasology.org, got %q", cfg.Collector.Host)
	}
	if cfg.Collector.Port != 14654 {
		t.Errorf("expected Collector.Port=14654, got %d", cfg.Collector.Port)
	}
	if cfg.Collector.PoolSize != 50 {
		t.Errorf("expected Collector.PoolSize=50, got %d", cfg.Collector.PoolSize)
	}
}

func TestDefaultConfig_EmitterDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Emitter.BufferSize != 1 {
		t.Errorf("expected Emitter.BufferSize=1, got %d", cfg.Emitter.BufferSize)
	}
	if cfg.Emitter.CloseTimeout != 5*time.Second {
		t.Errorf("expected Emitter.CloseTimeout=5s, got %v", cfg.Emitter.CloseTimeout)
	}
	if cfg.Spool.Enabled {
		t.Error("expected Spool disabled by default")
	}
}

func TestDefaultConfig_Endpoint(t *testing.T) {
	cfg := DefaultConfig()

	ep, err := cfg.Endpoint()
	if err != nil {
		t.Fatalf("Endpoint failed: %v", err)
	}
	if ep != "http://utility.terasology.org:14654" {
		t.Errorf("unexpected default endpoint %q", ep)
	}
}

// --- Endpoint Tests ---

func TestCollectorURL_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		host     string
		port     int
	}{
		{"bad protocol", "ftp", "example.com", 80},
		{"empty host", "http", "", 80},
		{"host with path", "http", "example.com/x", 80},
		{"zero port", "http", "example.com", 0},
		{"port out of range", "https", "example.com", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CollectorURL(tt.protocol, tt.host, tt.port); err == nil {
				t.Errorf("expected error for %s://%s:%d", tt.protocol, tt.host, tt.port)
			}
		})
	}
}

func TestEndpoint_BySinkType(t *testing.T) {
	cfg := DefaultConfig()

	cfg.SinkType = "kafka"
	cfg.Kafka.Brokers = []string{"b1:9092", "b2:9092"}
	if ep, err := cfg.Endpoint(); err != nil || ep != "b1:9092,b2:9092" {
		t.Errorf("kafka endpoint: got %q, err=%v", ep, err)
	}

	cfg.SinkType = "file"
	cfg.File.FilePath = "/tmp/events.jsonl"
	if ep, err := cfg.Endpoint(); err != nil || ep != "/tmp/events.jsonl" {
		t.Errorf("file endpoint: got %q, err=%v", ep, err)
	}

	cfg.SinkType = "carrier-pigeon"
	if _, err := cfg.Endpoint(); err == nil {
		t.Error("expected error for unknown sink type")
	}
}

// --- Parse Tests ---

func TestParse_CollectorAndEmitter(t *testing.T) {
	input := `{
		"Collector": {
			"Protocol": "https",
			"Host": "collector.example.com",
			"Port": 8443,
			"PoolSize": 10,
			"RequestTimeout": "3s",
			"Compress": true
		},
		"Emitter": {
			"BufferSize": 25,
			"FlushInterval": "2s",
			"CloseTimeout": "1500ms"
		}
	}`

	cfg, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Collector.Protocol != "https" || cfg.Collector.Host != "collector.example.com" || cfg.Collector.Port != 8443 {
		t.Errorf("unexpected collector: %+v", cfg.Collector)
	}
	if cfg.Collector.PoolSize != 10 {
		t.Errorf("expected PoolSize=10, got %d", cfg.Collector.PoolSize)
	}
	if cfg.Collector.RequestTimeout != 3*time.Second {
		t.Errorf("expected RequestTimeout=3s, got %v", cfg.Collector.RequestTimeout)
	}
	if !cfg.Collector.Compress {
		t.Error("expected Compress=true")
	}
	if cfg.Collector.Path != DefaultCollectorPath {
		t.Errorf("expected default Path, got %q", cfg.Collector.Path)
	}
	if cfg.Emitter.BufferSize != 25 {
		t.Errorf("expected BufferSize=25, got %d", cfg.Emitter.BufferSize)
	}
	if cfg.Emitter.FlushInterval != 2*time.Second {
		t.Errorf("expected FlushInterval=2s, got %v", cfg.Emitter.FlushInterval)
	}
	if cfg.Emitter.CloseTimeout != 1500*time.Millisecond {
		t.Errorf("expected CloseTimeout=1.5s, got %v", cfg.Emitter.CloseTimeout)
	}
	if cfg.Emitter.MaxQueuedBatches != 100 {
		t.Errorf("expected default MaxQueuedBatches=100, got %d", cfg.Emitter.MaxQueuedBatches)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	input := `{"Emitter": {"CloseTimeout": "five seconds"}}`

	_, err := Parse([]byte(input))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "Emitter.CloseTimeout") {
		t.Errorf("error should name the field, got %v", err)
	}
}

func TestParse_SpoolAndSources(t *testing.T) {
	input := `{
		"Spool": {"Enabled": true, "Address": "10.0.0.5:6379", "DB": 3},
		"Sources": {
			"cpu": {"Enabled": true, "Interval": "30s"},
			"system": {"Enabled": false}
		}
	}`

	cfg, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !cfg.Spool.Enabled || cfg.Spool.Address != "10.0.0.5:6379" || cfg.Spool.DB != 3 {
		t.Errorf("unexpected spool: %+v", cfg.Spool)
	}
	if cfg.Spool.Key != "TELEMETRY_FAILED" {
		t.Errorf("expected default spool key, got %q", cfg.Spool.Key)
	}
	if src := cfg.Sources["cpu"]; !src.Enabled || src.Interval != 30*time.Second {
		t.Errorf("unexpected cpu source: %+v", src)
	}
	if src := cfg.Sources["system"]; src.Enabled {
		t.Errorf("expected system source disabled, got %+v", src)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// --- Merge Tests ---

func TestMerge_EmptyValuesDoNotOverwrite(t *testing.T) {
	base := DefaultConfig()
	base.Collector.Host = "existing.host"
	base.SOCKSProxy.Host = "existing.socks"
	base.SOCKSProxy.Port = 9999

	base.Merge(&Config{})

	if base.Collector.Host != "existing.host" {
		t.Errorf("expected Collector.Host preserved, got %q", base.Collector.Host)
	}
	if base.Emitter.BufferSize != 1 {
		t.Errorf("expected BufferSize preserved, got %d", base.Emitter.BufferSize)
	}
	if base.SOCKSProxy.Host != "existing.socks" || base.SOCKSProxy.Port != 9999 {
		t.Errorf("expected SOCKSProxy preserved, got %+v", base.SOCKSProxy)
	}
}

func TestApplySourceDefaults_DoesNotOverwrite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources["cpu"] = SourceConfig{Enabled: false, Interval: time.Minute}

	cfg.ApplySourceDefaults(map[string]SourceConfig{
		"cpu":    {Enabled: true, Interval: 10 * time.Second},
		"memory": {Enabled: true, Interval: 10 * time.Second},
	})

	if cfg.Sources["cpu"].Enabled {
		t.Error("existing cpu entry was overwritten")
	}
	if !cfg.Sources["memory"].Enabled {
		t.Error("missing memory entry was not filled in")
	}
}

// --- Logging Tests ---

func TestParseLogging_Defaults(t *testing.T) {
	lc, err := ParseLogging([]byte(`{"Level": "debug", "Format": "fixed"}`))
	if err != nil {
		t.Fatalf("ParseLogging failed: %v", err)
	}

	if lc.Level != "debug" {
		t.Errorf("expected Level=debug, got %q", lc.Level)
	}
	if lc.Format != "fixed" {
		t.Errorf("expected Format=fixed, got %q", lc.Format)
	}
	if lc.MaxSizeMB != 10 {
		t.Errorf("expected default MaxSizeMB=10, got %d", lc.MaxSizeMB)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TelemetryAgent.json")
	if err := os.WriteFile(path, []byte(`{"Agent": {"ID": "agent-7"}, "SinkType": "file"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if GetAgentID(cfg) != "agent-7" {
		t.Errorf("expected agent id agent-7, got %q", GetAgentID(cfg))
	}
	if cfg.SinkType != "file" {
		t.Errorf("expected SinkType=file, got %q", cfg.SinkType)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
