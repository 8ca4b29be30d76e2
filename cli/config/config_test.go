package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `transport: stream
global: true
track_trainings: true
debug_input: ./debug.in
log_level: debug
poll:
  dir: /games/umamusume/CarrotJuicer
  interval: 100ms
  watch: true
  response_prefix: 170
  request_prefix: 0
  read_attempts: 10
  read_interval: 50ms
  remove_attempts: 3
  remove_backoff: 2s
stream:
  addr: 127.0.0.1:4000
  buffer_size: 1048576
  timeout: 1s
masterdata:
  path: /games/umamusume/master.mdb
helper:
  url: https://helper.example/event
  language: en
adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: juicer:overlay
  timeout: 3s
  retries: 4
  require_subscriber: true
storage:
  dataset: packets
  backend: s3
  path: my-bucket/juicer
  region: us-east-1
  endpoint: http://localhost:9000
  s3_path_style: true
  save_race_packets: true
simulator:
  path: /opt/uma-sim
  iterations: 500
  auto: true
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	assertEqual(t, "transport", cfg.Transport, "stream")
	assertEqual(t, "debug_input", cfg.DebugInput, "./debug.in")
	assertEqual(t, "log_level", cfg.LogLevel, "debug")
	if !cfg.Global || !cfg.TrackTrainings {
		t.Errorf("global/track_trainings = %v/%v, want true/true", cfg.Global, cfg.TrackTrainings)
	}

	assertEqual(t, "poll.dir", cfg.Poll.Dir, "/games/umamusume/CarrotJuicer")
	if cfg.Poll.Interval.Duration != 100*time.Millisecond {
		t.Errorf("poll.interval = %v, want 100ms", cfg.Poll.Interval.Duration)
	}
	if cfg.Poll.ResponsePrefix == nil || *cfg.Poll.ResponsePrefix != 170 {
		t.Errorf("poll.response_prefix = %v, want 170", cfg.Poll.ResponsePrefix)
	}
	if cfg.Poll.RequestPrefix == nil || *cfg.Poll.RequestPrefix != 0 {
		t.Errorf("poll.request_prefix = %v, want 0", cfg.Poll.RequestPrefix)
	}
	if cfg.Poll.RemoveBackoff.Duration != 2*time.Second {
		t.Errorf("poll.remove_backoff = %v, want 2s", cfg.Poll.RemoveBackoff.Duration)
	}

	assertEqual(t, "stream.addr", cfg.Stream.Addr, "127.0.0.1:4000")
	if cfg.Stream.BufferSize != 1048576 {
		t.Errorf("stream.buffer_size = %d, want 1048576", cfg.Stream.BufferSize)
	}

	assertEqual(t, "masterdata.path", cfg.MasterData.Path, "/games/umamusume/master.mdb")
	assertEqual(t, "helper.language", cfg.Helper.Language, "en")

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "juicer:overlay")
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 4 {
		t.Errorf("adapter.retries = %v, want 4", cfg.Adapter.Retries)
	}
	if !cfg.Adapter.RequireSubscriber {
		t.Error("adapter.require_subscriber = false, want true")
	}

	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/juicer")
	if !cfg.Storage.S3PathStyle || !cfg.Storage.SaveRacePackets {
		t.Error("storage.s3_path_style and storage.save_race_packets should be true")
	}

	assertEqual(t, "simulator.path", cfg.Simulator.Path, "/opt/uma-sim")
	if cfg.Simulator.Iterations != 500 || !cfg.Simulator.Auto {
		t.Errorf("simulator = %+v, want iterations 500 and auto", cfg.Simulator)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("JUICER_TEST_QUEUE", "/tmp/queue")
	yaml := `poll:
  dir: ${JUICER_TEST_QUEUE}
adapter:
  type: webhook
  url: ${JUICER_TEST_UNSET:-http://localhost:8080/overlay}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "poll.dir", cfg.Poll.Dir, "/tmp/queue")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "http://localhost:8080/overlay")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("JUICER_TEST_SET", "value")
	t.Setenv("JUICER_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${JUICER_TEST_SET}", "value"},
		{"${JUICER_TEST_SET:-other}", "value"},
		{"${JUICER_TEST_EMPTY:-fallback}", "fallback"},
		{"${JUICER_TEST_MISSING}", ""},
		{"a-${JUICER_TEST_SET}-b", "a-value-b"},
		{"$JUICER_TEST_SET", "$JUICER_TEST_SET"},
		{"no refs", "no refs"},
	}
	for _, tt := range tests {
		if got := ExpandEnv(tt.in); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `transport: poll
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `storage:
  backend: fs
  path: ./data
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n# Another comment\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
	if cfg.Transport != "" {
		t.Errorf("expected empty transport, got %q", cfg.Transport)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate, got %v", err)
	}
}

func TestLoad_PrefixOmittedIsNil(t *testing.T) {
	path := writeTemp(t, "poll:\n  dir: ./queue\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Poll.ResponsePrefix != nil || cfg.Poll.RequestPrefix != nil {
		t.Error("omitted prefixes should be nil")
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	path := writeTemp(t, "poll:\n  interval: not-a-duration\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDuration_NegativeRejected(t *testing.T) {
	path := writeTemp(t, "stream:\n  timeout: -1s\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative duration, got nil")
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	path := writeTemp(t, "adapter:\n  timeout: \"\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 0 {
		t.Errorf("timeout = %v, want 0", cfg.Adapter.Timeout.Duration)
	}
}

func TestValidate(t *testing.T) {
	neg := -1
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"transport", Config{Transport: "carrier-pigeon"}, "invalid transport"},
		{"adapter type", Config{Adapter: AdapterConfig{Type: "kafka", URL: "x"}}, "invalid adapter.type"},
		{"adapter url", Config{Adapter: AdapterConfig{Type: "webhook"}}, "adapter.url is required"},
		{"adapter retries", Config{Adapter: AdapterConfig{Type: "redis", URL: "redis://x", Retries: &neg}}, "adapter.retries"},
		{"storage backend", Config{Storage: StorageConfig{Backend: "gcs"}}, "invalid storage.backend"},
		{"prefix", Config{Poll: PollConfig{RequestPrefix: &neg}}, "poll.request_prefix"},
		{"iterations", Config{Simulator: SimulatorConfig{Iterations: -5}}, "simulator.iterations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "juicer.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
