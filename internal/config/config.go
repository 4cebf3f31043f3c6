// Package config manages the netmon configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shini4i/netmon/internal/fileutil"
	"github.com/shini4i/netmon/internal/traffic"
)

const (
	// AppName is the application identifier used for XDG paths.
	AppName = "netmon"
	// ConfigFileName is the name of the main configuration file.
	ConfigFileName = "config.json"
	// DefaultSocketPath is where the daemon listens by default.
	DefaultSocketPath = "/run/netmon/netmon.sock"
)

// Config represents the application configuration.
type Config struct {
	SampleIntervalMS    int               `json:"sample_interval_ms"`
	SocketPath          string            `json:"socket_path"`
	SocketGroup         string            `json:"socket_group,omitempty"`
	SysfsRoot           string            `json:"sysfs_root"`
	InterfaceClasses    map[string]string `json:"interface_classes,omitempty"`
	ReachabilityEnabled bool              `json:"reachability_enabled"`
	CellularEnabled     bool              `json:"cellular_enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SampleIntervalMS:    int(traffic.DefaultInterval / time.Millisecond),
		SocketPath:          DefaultSocketPath,
		SysfsRoot:           traffic.DefaultSysfsRoot,
		ReachabilityEnabled: true,
		CellularEnabled:     true,
	}
}

// SampleInterval returns the sampling interval as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMS) * time.Millisecond
}

// ClassOverrides parses InterfaceClasses.
func (c *Config) ClassOverrides() (map[string]traffic.Class, error) {
	if len(c.InterfaceClasses) == 0 {
		return nil, nil
	}
	overrides := make(map[string]traffic.Class, len(c.InterfaceClasses))
	for iface, name := range c.InterfaceClasses {
		class, err := traffic.ParseClass(name)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", iface, err)
		}
		overrides[iface] = class
	}
	return overrides, nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cfg := *c
	if c.InterfaceClasses != nil {
		cfg.InterfaceClasses = make(map[string]string, len(c.InterfaceClasses))
		for k, v := range c.InterfaceClasses {
			cfg.InterfaceClasses[k] = v
		}
	}
	return &cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleInterval() < traffic.MinInterval {
		return fmt.Errorf("sample interval must be at least %d ms", traffic.MinInterval.Milliseconds())
	}
	if !filepath.IsAbs(c.SocketPath) {
		return fmt.Errorf("socket path must be absolute")
	}
	if !filepath.IsAbs(c.SysfsRoot) {
		return fmt.Errorf("sysfs root must be absolute")
	}
	if _, err := c.ClassOverrides(); err != nil {
		return fmt.Errorf("invalid interface class: %w", err)
	}
	return nil
}

// Paths holds the resolved configuration locations.
type Paths struct {
	ConfigDir  string
	ConfigFile string
}

// GetPaths returns the configuration paths following the XDG Base Directory layout.
func GetPaths() (*Paths, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}

	configDir := filepath.Join(configHome, AppName)
	return &Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, ConfigFileName),
	}, nil
}

// PathsForFile returns paths for an explicit config file location.
func PathsForFile(file string) *Paths {
	return &Paths{
		ConfigDir:  filepath.Dir(file),
		ConfigFile: file,
	}
}

// EnsurePaths creates the configuration directory.
func (p *Paths) EnsurePaths() error {
	if err := fileutil.EnsureDir(p.ConfigDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// Load reads the configuration from disk. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to disk atomically.
func Save(path string, cfg *Config) error {
	if err := fileutil.WriteJSON(path, cfg, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Manager provides high-level configuration management.
// It is safe for concurrent use from multiple goroutines.
type Manager struct {
	paths  *Paths       // Immutable after construction
	config *Config      // Protected by mu
	mu     sync.RWMutex // Protects config only
}

// NewManager creates a manager for the XDG config file.
func NewManager() (*Manager, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get config paths: %w", err)
	}
	return NewManagerWithPaths(paths)
}

// Open returns a manager for file, or for the XDG config file when file is
// empty.
func Open(file string) (*Manager, error) {
	if file == "" {
		return NewManager()
	}
	return NewManagerWithPaths(PathsForFile(file))
}

// NewManagerWithPaths creates a manager for the given paths, creating the
// config directory and loading the file if it exists.
func NewManagerWithPaths(paths *Paths) (*Manager, error) {
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	cfg, err := Load(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}

	return &Manager{
		paths:  paths,
		config: cfg,
	}, nil
}

// GetConfig returns a copy of the current configuration.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Clone()
}

// GetConfigFile returns the path of the configuration file.
func (m *Manager) GetConfigFile() string {
	return m.paths.ConfigFile
}

// UpdateField atomically updates the configuration using a mutator function
// and saves it. If validation fails, the original config is preserved.
func (m *Manager) UpdateField(mutator func(cfg *Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.config.Clone()
	mutator(next)
	if err := next.Validate(); err != nil {
		return err
	}

	m.config = next
	return Save(m.paths.ConfigFile, m.config)
}
