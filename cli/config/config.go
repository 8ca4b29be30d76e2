// Package config handles YAML config file loading for juicer run.
package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/juicer/types"
)

// Config represents a juicer.yaml configuration file.
// All values are optional and act as defaults for juicer run flags.
// CLI flags always override config values.
type Config struct {
	Transport      string           `yaml:"transport"`
	Global         bool             `yaml:"global"`
	TrackTrainings bool             `yaml:"track_trainings"`
	DebugInput     string           `yaml:"debug_input"`
	LogLevel       string           `yaml:"log_level"`
	Poll           PollConfig       `yaml:"poll"`
	Stream         StreamConfig     `yaml:"stream"`
	MasterData     MasterDataConfig `yaml:"masterdata"`
	Helper         HelperConfig     `yaml:"helper"`
	Adapter        AdapterConfig    `yaml:"adapter"`
	Storage        StorageConfig    `yaml:"storage"`
	Simulator      SimulatorConfig  `yaml:"simulator"`
}

// PollConfig holds queue directory settings.
type PollConfig struct {
	Dir      string   `yaml:"dir"`
	Interval Duration `yaml:"interval"`
	Watch    bool     `yaml:"watch"`
	// Header sizes stripped before decoding. Nil keeps the built-in sizes.
	ResponsePrefix *int     `yaml:"response_prefix,omitempty"`
	RequestPrefix  *int     `yaml:"request_prefix,omitempty"`
	ReadAttempts   int      `yaml:"read_attempts"`
	ReadInterval   Duration `yaml:"read_interval"`
	RemoveAttempts int      `yaml:"remove_attempts"`
	RemoveBackoff  Duration `yaml:"remove_backoff"`
}

// StreamConfig holds UDP listener settings.
type StreamConfig struct {
	Addr       string   `yaml:"addr"`
	BufferSize int      `yaml:"buffer_size"`
	Timeout    Duration `yaml:"timeout"`
}

// MasterDataConfig locates the game's reference data. Path is a SQLite
// database; Fixture is a YAML fixture used when Path is empty.
type MasterDataConfig struct {
	Path    string `yaml:"path"`
	Fixture string `yaml:"fixture"`
}

// HelperConfig holds training event helper settings.
type HelperConfig struct {
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
}

// AdapterConfig holds renderer adapter defaults from the config file.
type AdapterConfig struct {
	Type              string            `yaml:"type"`
	URL               string            `yaml:"url"`
	Channel           string            `yaml:"channel,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty"`
	Timeout           Duration          `yaml:"timeout,omitempty"`
	Retries           *int              `yaml:"retries,omitempty"`
	RequireSubscriber bool              `yaml:"require_subscriber,omitempty"`
}

// StorageConfig holds packet archive defaults from the config file.
// An empty Path disables archiving.
type StorageConfig struct {
	Dataset         string `yaml:"dataset"`
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	S3PathStyle     bool   `yaml:"s3_path_style"`
	SaveRacePackets bool   `yaml:"save_race_packets"`
}

// SimulatorConfig holds skill simulator settings.
type SimulatorConfig struct {
	Path       string `yaml:"path"`
	Iterations int    `yaml:"iterations"`
	Auto       bool   `yaml:"auto"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "250ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values and ranges. Unset fields pass.
func (c *Config) Validate() error {
	if _, err := types.ParseTransportKind(c.Transport); err != nil {
		return err
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("invalid adapter.type: %q (must be webhook or redis)", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for adapter.type %q", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("invalid storage.backend: %q (must be fs or s3)", c.Storage.Backend)
	}
	for name, p := range map[string]*int{
		"poll.response_prefix": c.Poll.ResponsePrefix,
		"poll.request_prefix":  c.Poll.RequestPrefix,
	} {
		if p != nil && *p < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, *p)
		}
	}
	if c.Simulator.Iterations < 0 {
		return fmt.Errorf("simulator.iterations must be >= 0, got %d", c.Simulator.Iterations)
	}
	return nil
}
