// Package config loads the hived YAML configuration and verifies it before
// anything gets spawned. The Config value is constructed once in main and
// passed down by reference, no package-level state.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full launcher configuration.
type Config struct {
	RunID     string         `yaml:"run_id" jsonschema:"description=unique id for this launch, generated when empty"`
	Store     StoreConfig    `yaml:"store"`
	Services  []Service      `yaml:"services"`
	Agents    []Role         `yaml:"agents"`
	Swarm     SwarmConfig    `yaml:"swarm"`
	Shutdown  ShutdownConfig `yaml:"shutdown"`
	Ready     ReadyConfig    `yaml:"ready"`
	Preflight Preflight      `yaml:"preflight"`
	Notify    NotifyConfig   `yaml:"notify"`
}

// StoreConfig describes the telemetry persistence file.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Service describes one auxiliary subprocess to supervise. Start order is
// declared configuration (Order field, stable on ties), never inferred.
type Service struct {
	ID      string            `yaml:"id"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Port    int               `yaml:"port" jsonschema:"description=exported to the child process as PORT when set"`
	Enabled *bool             `yaml:"enabled"`
	Order   int               `yaml:"order"`
}

// IsEnabled reports whether the service should be started. Defaults to true
// when the enabled flag is omitted.
func (s Service) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Role describes one agent in the roster. Exactly one role must carry the
// queen designation, enforced by the registry on load.
type Role struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Capability  string `yaml:"capability"`
	Queen       bool   `yaml:"queen"`
}

// SwarmConfig describes the delegated swarm-execution process.
type SwarmConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args" jsonschema:"description=extra args appended after the contract flags"`
	Topology   string   `yaml:"topology"`
	Workdir    string   `yaml:"workdir"`
	RosterPath string   `yaml:"roster_path" jsonschema:"description=where the exported roster file is written, derived from store path when empty"`
}

// ShutdownConfig bounds the teardown of supervised services.
type ShutdownConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
}

// ReadyConfig enables the optional readiness gate for services with a
// declared port. The default is the fire-and-forget spawn.
type ReadyConfig struct {
	Wait    bool          `yaml:"wait"`
	Timeout time.Duration `yaml:"timeout"`
}

// Preflight holds optional system resource thresholds checked once before
// services start. Omitted thresholds are not checked.
type Preflight struct {
	CPUBelow      *int     `yaml:"cpu_below"`
	MemoryBelow   *int     `yaml:"memory_below"`
	LoadAvgBelow  *float64 `yaml:"load_avg_below"`
	DiskFreeAbove *int     `yaml:"disk_free_above"`
	DiskFreePath  string   `yaml:"disk_free_path"`
}

// Empty reports whether no preflight thresholds are configured.
func (p Preflight) Empty() bool {
	return p.CPUBelow == nil && p.MemoryBelow == nil && p.LoadAvgBelow == nil && p.DiskFreeAbove == nil
}

// NotifyConfig routes failure notifications to go-pkgz/notify destination URLs.
type NotifyConfig struct {
	OnFailure    bool          `yaml:"on_failure"`
	Destinations []string      `yaml:"destinations"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxLogLines  int           `yaml:"max_log_lines" jsonschema:"description=swarm output lines attached to failure notifications"`
}

func defaults() Config {
	return Config{
		Store:    StoreConfig{Path: "data/hived.db"},
		Swarm:    SwarmConfig{Topology: "mesh"},
		Shutdown: ShutdownConfig{GracePeriod: 5 * time.Second},
		Ready:    ReadyConfig{Timeout: 10 * time.Second},
		Notify:   NotifyConfig{Timeout: 10 * time.Second, MaxLogLines: 100},
	}
}

// Load reads the config file, expands environment variables and verifies the
// result. Unknown keys are rejected to catch malformed input before any
// process spawns.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Verify checks structural validity of the configuration. The roster shape
// (exactly one queen) is the registry's concern and not checked here.
func (c *Config) Verify() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.Swarm.Command == "" {
		return fmt.Errorf("swarm command is required")
	}
	if c.Shutdown.GracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive, got %v", c.Shutdown.GracePeriod)
	}

	seen := map[string]struct{}{}
	for i, svc := range c.Services {
		if svc.ID == "" {
			return fmt.Errorf("service %d: id is required", i+1)
		}
		if svc.Command == "" {
			return fmt.Errorf("service %q: command is required", svc.ID)
		}
		if svc.Port < 0 || svc.Port > 65535 {
			return fmt.Errorf("service %q: port %d out of range", svc.ID, svc.Port)
		}
		if _, dup := seen[svc.ID]; dup {
			return fmt.Errorf("service %q: duplicate id", svc.ID)
		}
		seen[svc.ID] = struct{}{}
	}

	if c.Ready.Wait && c.Ready.Timeout <= 0 {
		return fmt.Errorf("ready timeout must be positive when ready wait is enabled")
	}
	return nil
}

// EnabledServices returns enabled service descriptors sorted by declared
// order, preserving file order on ties.
func (c *Config) EnabledServices() []Service {
	res := []Service{}
	for _, svc := range c.Services {
		if svc.IsEnabled() {
			res = append(res, svc)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Order < res[j].Order })
	return res
}
