package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// SearchPaths are tried in order when no explicit path is given.
var SearchPaths = []string{
	"tailcast.yaml",
	"tailcast.yml",
	"tailcast.toml",
	"~/.config/tailcast/tailcast.yaml",
	"~/.config/tailcast/tailcast.toml",
}

// Load reads the config at path, or the first of SearchPaths that exists
// when path is empty. A missing file yields Default(). Fields absent from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	resolved, err := resolve(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if resolved == "" {
		return cfg, cfg.expand()
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.expand()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, formatOf(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", resolved, err)
	}
	cfg.FilePath = resolved
	return cfg, cfg.expand()
}

// Parse decodes data in the given format ("yaml" or "toml") over cfg.
func Parse(data []byte, format string, cfg *Config) error {
	switch format {
	case "toml":
		return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
}

// Save writes cfg to path, choosing the encoding by extension.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch formatOf(path) {
	case "toml":
		data, err = toml.Marshal(cfg)
	default:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

func resolve(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return ExpandPath(path)
	}
	for _, p := range SearchPaths {
		expanded, err := ExpandPath(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(expanded); err == nil {
			return expanded, nil
		}
	}
	return "", nil
}

// expand applies env interpolation and ~ expansion to path fields.
func (c *Config) expand() error {
	for _, p := range []*string{&c.Source.Path, &c.Source.Dir, &c.Socket, &c.Log.File} {
		if *p == "" {
			continue
		}
		v, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// ExpandPath replaces ${VAR} / $VAR references with environment values and
// a leading ~ with the home directory. Relative paths stay relative.
func ExpandPath(path string) (string, error) {
	p := os.ExpandEnv(strings.TrimSpace(path))
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p, nil
}
