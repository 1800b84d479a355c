// Package config loads the azauth alias file. An alias bundles the
// parameters of a token request under a short name; it is stored as TOML or
// YAML depending on the file extension.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/telekom/azauth/pkg/authflow"
)

// Alias holds the token request parameters stored under one name.
type Alias struct {
	Resource string `toml:"resource,omitempty" yaml:"resource,omitempty"`
	Client   string `toml:"client,omitempty" yaml:"client,omitempty"`
	Tenant   string `toml:"tenant,omitempty" yaml:"tenant,omitempty"`
	Domain   string `toml:"domain,omitempty" yaml:"domain,omitempty"`
	// Caller is shown in front of interactive prompts.
	Caller string   `toml:"caller,omitempty" yaml:"caller,omitempty"`
	Scopes []string `toml:"scopes,omitempty" yaml:"scopes,omitempty"`
	Modes  []string `toml:"modes,omitempty" yaml:"modes,omitempty"`
	// Timeout is a Go duration string such as "10m".
	Timeout string `toml:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Override returns a copy of a where every field set in other wins.
func (a Alias) Override(other Alias) Alias {
	merged := a
	if other.Resource != "" {
		merged.Resource = other.Resource
	}
	if other.Client != "" {
		merged.Client = other.Client
	}
	if other.Tenant != "" {
		merged.Tenant = other.Tenant
	}
	if other.Domain != "" {
		merged.Domain = other.Domain
	}
	if other.Caller != "" {
		merged.Caller = other.Caller
	}
	if other.Scopes != nil {
		merged.Scopes = slices.Clone(other.Scopes)
	}
	if other.Modes != nil {
		merged.Modes = slices.Clone(other.Modes)
	}
	if other.Timeout != "" {
		merged.Timeout = other.Timeout
	}
	return merged
}

// TimeoutDuration parses Timeout. An empty timeout is zero.
func (a Alias) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(a.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(a.Timeout))
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", a.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", a.Timeout)
	}
	return d, nil
}

// Validate checks the fields that can be checked without a request.
func (a Alias) Validate() error {
	if _, err := a.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := authflow.ParseModes(a.Modes); err != nil {
		return err
	}
	return nil
}

// Config is the content of an alias file.
type Config struct {
	Alias map[string]Alias `toml:"alias" yaml:"alias"`
}

// Names returns the alias names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Alias))
	for name := range c.Alias {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FindAlias returns the alias called name.
func (c *Config) FindAlias(name string) (*Alias, error) {
	if c != nil {
		if alias, ok := c.Alias[name]; ok {
			return &alias, nil
		}
	}
	return nil, fmt.Errorf("alias not found: %s", name)
}

// Validate checks every alias.
func (c *Config) Validate() error {
	var errs []error
	for _, name := range c.Names() {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("alias name must not be empty"))
			continue
		}
		if err := c.Alias[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("alias %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

type format int

const (
	formatTOML format = iota
	formatYAML
)

// formatFor picks YAML for .yaml and .yml files and TOML for everything else.
func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatTOML
	}
}

// Load reads and validates the alias file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	switch formatFor(path) {
	case formatYAML:
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = toml.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Alias == nil {
		cfg.Alias = map[string]Alias{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path in the format its extension selects.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var (
		content []byte
		err     error
	)
	switch formatFor(path) {
	case formatYAML:
		content, err = yaml.Marshal(cfg)
	default:
		content, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}
