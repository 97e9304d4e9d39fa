package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/modoterra/tailcast/pkg/core"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	switch core.Kind(c.Source.Kind) {
	case core.KindFile:
		if c.Source.Path == "" {
			errs = append(errs, fmt.Errorf("source (file): path is required"))
		}
	case core.KindJournald:
		if c.Source.Unit == "" {
			errs = append(errs, fmt.Errorf("source (journald): unit is required"))
		}
	case core.KindExec:
		if strings.TrimSpace(c.Source.Command) == "" {
			errs = append(errs, fmt.Errorf("source (exec): command is required"))
		}
	case "":
		errs = append(errs, fmt.Errorf("source: kind is required"))
	default:
		errs = append(errs, fmt.Errorf("source: unknown kind %q", c.Source.Kind))
	}

	if c.Buffer.Capacity < 1 {
		errs = append(errs, fmt.Errorf("buffer.capacity must be at least 1, got %d", c.Buffer.Capacity))
	}
	if c.Hub.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("hub.queue_depth must be at least 1, got %d", c.Hub.QueueDepth))
	}

	t := c.Tailer
	if t.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("tailer.poll_interval must be positive"))
	}
	if t.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tailer.read_timeout must be positive"))
	}
	if t.BackoffMin <= 0 || t.BackoffMax < t.BackoffMin {
		errs = append(errs, fmt.Errorf("tailer: backoff_min must be positive and not above backoff_max (%s, %s)", t.BackoffMin, t.BackoffMax))
	}
	if t.DegradedAfter < 1 {
		errs = append(errs, fmt.Errorf("tailer.degraded_after must be at least 1, got %d", t.DegradedAfter))
	}

	if c.HTTP.Listen == "" && c.Socket == "" {
		errs = append(errs, fmt.Errorf("at least one of http.listen or socket must be set"))
	}
	if c.HTTP.Listen != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
			errs = append(errs, fmt.Errorf("http.listen %q: %w", c.HTTP.Listen, err))
		}
		if c.HTTP.WriteTimeout <= 0 {
			errs = append(errs, fmt.Errorf("http.write_timeout must be positive"))
		}
	}

	if c.Viewer.MaxLines < 1 {
		errs = append(errs, fmt.Errorf("viewer.max_lines must be at least 1, got %d", c.Viewer.MaxLines))
	}
	if c.Viewer.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("viewer.reconnect_delay must be positive"))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if !logLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error; got %q", c.Log.Level))
	}
	if c.Log.File != "" && (c.Log.MaxSizeMB < 1 || c.Log.MaxBackups < 0) {
		errs = append(errs, fmt.Errorf("log: max_size_mb must be at least 1 and max_backups not negative"))
	}

	return errs
}
