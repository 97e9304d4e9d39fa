// Package config loads tailcast.yaml / tailcast.toml.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon and viewer configuration.
type Config struct {
	Source   SourceConfig `yaml:"source"   toml:"source"`
	Buffer   BufferConfig `yaml:"buffer"   toml:"buffer"`
	Hub      HubConfig    `yaml:"hub"      toml:"hub"`
	Tailer   TailerConfig `yaml:"tailer"   toml:"tailer"`
	HTTP     HTTPConfig   `yaml:"http"     toml:"http"`
	Socket   string       `yaml:"socket"   toml:"socket"`
	Viewer   ViewerConfig `yaml:"viewer"   toml:"viewer"`
	Timezone string       `yaml:"timezone" toml:"timezone"`
	Log      LogConfig    `yaml:"log"      toml:"log"`

	// FilePath is where the config was loaded from; empty for defaults.
	FilePath string `yaml:"-" toml:"-"`
}

// SourceConfig selects and configures the followed log source.
type SourceConfig struct {
	Kind     string            `yaml:"kind"              toml:"kind"`              // file|journald|exec
	Path     string            `yaml:"path,omitempty"    toml:"path,omitempty"`    // file
	Unit     string            `yaml:"unit,omitempty"    toml:"unit,omitempty"`    // journald
	User     bool              `yaml:"user,omitempty"    toml:"user,omitempty"`    // journald: user manager
	Command  string            `yaml:"command,omitempty" toml:"command,omitempty"` // exec
	Dir      string            `yaml:"dir,omitempty"     toml:"dir,omitempty"`     // exec
	Env      map[string]string `yaml:"env,omitempty"     toml:"env,omitempty"`     // exec
	Backfill bool              `yaml:"backfill"          toml:"backfill"`
}

// BufferConfig sizes the server-side ring.
type BufferConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
}

// HubConfig sizes per-subscriber queues.
type HubConfig struct {
	QueueDepth int `yaml:"queue_depth" toml:"queue_depth"`
}

// TailerConfig tunes polling, read bounds and retry.
type TailerConfig struct {
	PollInterval  Duration `yaml:"poll_interval"  toml:"poll_interval"`
	ReadTimeout   Duration `yaml:"read_timeout"   toml:"read_timeout"`
	BackoffMin    Duration `yaml:"backoff_min"    toml:"backoff_min"`
	BackoffMax    Duration `yaml:"backoff_max"    toml:"backoff_max"`
	DegradedAfter int      `yaml:"degraded_after" toml:"degraded_after"`
}

// HTTPConfig configures the SSE endpoint. An empty Listen disables it.
type HTTPConfig struct {
	Listen       string   `yaml:"listen"        toml:"listen"`
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout"`
}

// ViewerConfig configures the client side.
type ViewerConfig struct {
	URL            string   `yaml:"url,omitempty"   toml:"url,omitempty"`
	MaxLines       int      `yaml:"max_lines"       toml:"max_lines"`
	ReconnectDelay Duration `yaml:"reconnect_delay" toml:"reconnect_delay"`
}

// LogConfig configures the daemon's own logging.
type LogConfig struct {
	Level      string `yaml:"level"                  toml:"level"`
	File       string `yaml:"file,omitempty"         toml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"  toml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"  toml:"max_backups,omitempty"`
}

// Defaults
const (
	DefaultCapacity       = 1000
	DefaultQueueDepth     = 256
	DefaultMaxLines       = 1000
	DefaultReconnectDelay = 5 * time.Second
	DefaultListen         = "127.0.0.1:8087"
	DefaultSocket         = "/tmp/tailcast.sock"
	DefaultSourcePath     = "logs/trading_system.log"
	DefaultTimezone       = "US/Eastern"
)

// Default returns a configuration with every field at its documented default.
func Default() *Config {
	return &Config{
		Source: SourceConfig{Kind: "file", Path: DefaultSourcePath, Backfill: true},
		Buffer: BufferConfig{Capacity: DefaultCapacity},
		Hub:    HubConfig{QueueDepth: DefaultQueueDepth},
		Tailer: TailerConfig{
			PollInterval:  Duration(100 * time.Millisecond),
			ReadTimeout:   Duration(2 * time.Second),
			BackoffMin:    Duration(250 * time.Millisecond),
			BackoffMax:    Duration(30 * time.Second),
			DegradedAfter: 5,
		},
		HTTP:     HTTPConfig{Listen: DefaultListen, WriteTimeout: Duration(10 * time.Second)},
		Socket:   DefaultSocket,
		Viewer:   ViewerConfig{MaxLines: DefaultMaxLines, ReconnectDelay: Duration(DefaultReconnectDelay)},
		Timezone: DefaultTimezone,
		Log:      LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 5},
	}
}

// StreamURL returns the SSE endpoint viewers connect to.
func (c *Config) StreamURL() string {
	if c.Viewer.URL != "" {
		return c.Viewer.URL
	}
	return "http://" + c.HTTP.Listen + "/logs/stream"
}

// Location returns the configured timezone, falling back to local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps Level to a slog level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Duration is a time.Duration written as "250ms", "5s" in config files.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
