package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Default durations, in the string form they take in the config file.
const (
	DefaultLockTimeout    = "10s"
	DefaultFlattenTimeout = "30m"
)

// Config represents the main configuration for chasm: the project this user works
// on and where their local state lives.
type Config struct {
	ProjectName string           `toml:"project_name"`
	ProjectDir  string           `toml:"project_dir"`
	Username    string           `toml:"username"`
	LocalDir    string           `toml:"local_dir"`
	LogDir      string           `toml:"log_dir"`
	LockTimeout string           `toml:"lock_timeout,omitempty"` // how long to wait for a folder's advisory lock
	Install     InstallConfig    `toml:"install"`
	Journal     JournalConfig    `toml:"journal"`
	Filesystem  FilesystemConfig `toml:"filesystem"`
}

// InstallConfig configures the install pipeline.
type InstallConfig struct {
	FlattenTimeout string            `toml:"flatten_timeout,omitempty"`
	Flatteners     []FlattenerConfig `toml:"flatteners"`
}

// FlattenerConfig is an external flattening program. It is run as
// Command... <source> <destination> for files with one of Extensions.
type FlattenerConfig struct {
	Name       string   `toml:"name"`
	Extensions []string `toml:"extensions"`
	Command    []string `toml:"command"`
}

// JournalConfig represents configuration for the local activity journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"` // patterns never checked in from a working copy
}

// NewConfig creates a new Config with the provided values. Logs and the journal
// live under baseDir.
func NewConfig(projectName, projectDir, username, localDir, baseDir string) *Config {
	return &Config{
		ProjectName: projectName,
		ProjectDir:  projectDir,
		Username:    username,
		LocalDir:    localDir,
		LogDir:      filepath.Join(baseDir, "log"),
		LockTimeout: DefaultLockTimeout,
		Install: InstallConfig{
			FlattenTimeout: DefaultFlattenTimeout,
			Flatteners:     DefaultFlatteners(),
		},
		Journal: JournalConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Filesystem: FilesystemConfig{
			Ignore: []string{"*.swp", ".DS_Store"},
		},
	}
}

// DefaultFlatteners returns the Houdini and Maya flatteners, located through the
// HFS and MAYA_LOCATION environment variables.
func DefaultFlatteners() []FlattenerConfig {
	hfs := os.Getenv("HFS")
	if hfs == "" {
		hfs = "/opt/hfs.current"
	}
	maya := os.Getenv("MAYA_LOCATION")
	if maya == "" {
		maya = "/usr/autodesk/maya"
	}
	return []FlattenerConfig{
		{
			Name:       "houdini",
			Extensions: []string{".hip", ".hipnc", ".picnc"},
			Command:    []string{filepath.Join(hfs, "python", "bin", "python"), "installHoudiniFile.py"},
		},
		{
			Name:       "maya",
			Extensions: []string{".ma", ".mb"},
			Command:    []string{filepath.Join(maya, "bin", "mayapy"), "installMayaFile.py"},
		},
	}
}

// Validate checks that the fields the engine depends on are present and well formed.
func (c *Config) Validate() error {
	var errs []error
	if c.ProjectDir == "" {
		errs = append(errs, errors.New("project_dir is required"))
	} else if !filepath.IsAbs(c.ProjectDir) {
		errs = append(errs, fmt.Errorf("project_dir must be absolute: %s", c.ProjectDir))
	}
	if c.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if c.LocalDir == "" {
		errs = append(errs, errors.New("local_dir is required"))
	} else if !filepath.IsAbs(c.LocalDir) {
		errs = append(errs, fmt.Errorf("local_dir must be absolute: %s", c.LocalDir))
	}
	if _, err := c.LockTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.FlattenTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool)
	for i, f := range c.Install.Flatteners {
		switch {
		case f.Name == "":
			errs = append(errs, fmt.Errorf("install.flatteners[%d]: name is required", i))
		case seen[f.Name]:
			errs = append(errs, fmt.Errorf("install.flatteners[%d]: duplicate name %q", i, f.Name))
		}
		seen[f.Name] = true
		if len(f.Command) == 0 {
			errs = append(errs, fmt.Errorf("install.flatteners[%d]: command is required", i))
		}
		if len(f.Extensions) == 0 {
			errs = append(errs, fmt.Errorf("install.flatteners[%d]: at least one extension is required", i))
		}
	}
	return errors.Join(errs...)
}

// LockTimeoutDuration returns lock_timeout, or the default when it is unset.
func (c *Config) LockTimeoutDuration() (time.Duration, error) {
	return parseDuration("lock_timeout", c.LockTimeout, DefaultLockTimeout)
}

// FlattenTimeoutDuration returns install.flatten_timeout, or the default when it is unset.
func (c *Config) FlattenTimeoutDuration() (time.Duration, error) {
	return parseDuration("install.flatten_timeout", c.Install.FlattenTimeout, DefaultFlattenTimeout)
}

func parseDuration(key, value, def string) (time.Duration, error) {
	if value == "" {
		value = def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, value)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. An existing file is never overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
