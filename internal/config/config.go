// Package config loads assetstore settings from defaults, a TOML file,
// ASSETSTORE_* environment variables and command line overrides, in that order
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name
	AppName = "assetstore"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "ASSETSTORE"

	// ProjectFileName is the config file looked up in the project root
	ProjectFileName = ".assetstore.toml"

	// StateDirName holds the journal inside the project root
	StateDirName = ".assetstore"
)

// Config holds every setting the CLI turns into engine configuration
type Config struct {
	ProjectRoot    string        `mapstructure:"project_root"`
	WorkspaceRoot  string        `mapstructure:"workspace_root"`
	User           string        `mapstructure:"user"`
	VersionsToKeep int           `mapstructure:"versions_to_keep"`
	Lock           LockConfig    `mapstructure:"lock"`
	Journal        JournalConfig `mapstructure:"journal"`
	Log            LogConfig     `mapstructure:"log"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

// LockConfig controls the cross-process asset lock
type LockConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// JournalConfig controls the operation journal
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig controls metric export
type MetricsConfig struct {
	// Textfile is written after every command when set
	Textfile string `mapstructure:"textfile"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		ProjectRoot:    ".",
		VersionsToKeep: 5,
		Lock: LockConfig{
			Enabled:    true,
			RetryDelay: 50 * time.Millisecond,
			Timeout:    10 * time.Second,
		},
		Journal: JournalConfig{Enabled: true},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadOptions selects where configuration comes from
type LoadOptions struct {
	// ConfigFile is an explicit config path. It must exist when set.
	ConfigFile string

	// Overrides are applied last, keyed like the TOML file ("lock.enabled")
	Overrides map[string]any

	// HomeDir is used for the default workspace. Empty means os.UserHomeDir.
	HomeDir string
}

// Load resolves the configuration and returns it with the config file used,
// which is empty when none was found
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("project_root", defaults.ProjectRoot)
	v.SetDefault("workspace_root", defaults.WorkspaceRoot)
	v.SetDefault("user", defaults.User)
	v.SetDefault("versions_to_keep", defaults.VersionsToKeep)
	v.SetDefault("lock.enabled", defaults.Lock.Enabled)
	v.SetDefault("lock.retry_delay", defaults.Lock.RetryDelay)
	v.SetDefault("lock.timeout", defaults.Lock.Timeout)
	v.SetDefault("journal.enabled", defaults.Journal.Enabled)
	v.SetDefault("journal.path", defaults.Journal.Path)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.pretty", defaults.Log.Pretty)
	v.SetDefault("metrics.textfile", defaults.Metrics.Textfile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range opts.Overrides {
		v.Set(key, val)
	}

	path := opts.ConfigFile
	if path == "" {
		candidate := filepath.Join(v.GetString("project_root"), ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, "", fmt.Errorf("config file not found: %s", path)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.resolvePaths(opts.HomeDir); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, path, nil
}

func (c *Config) resolvePaths(home string) error {
	root, err := filepath.Abs(c.ProjectRoot)
	if err != nil {
		return err
	}
	c.ProjectRoot = root

	if c.WorkspaceRoot == "" {
		if home == "" {
			if home, err = os.UserHomeDir(); err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
		}
		c.WorkspaceRoot = filepath.Join(home, AppName, "workspace")
	}
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.ProjectRoot, StateDirName, "journal")
	}
	return nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ProjectRoot, validation.Required),
		validation.Field(&c.WorkspaceRoot, validation.Required),
		validation.Field(&c.VersionsToKeep, validation.Min(0)),
		validation.Field(&c.Lock),
		validation.Field(&c.Journal),
		validation.Field(&c.Log),
	)
}

// Validate checks the lock settings
func (l LockConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.RetryDelay, validation.When(l.Enabled, validation.Required, validation.Min(time.Millisecond))),
		validation.Field(&l.Timeout, validation.Min(time.Duration(0))),
	)
}

// Validate checks the journal settings
func (j JournalConfig) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.Path, validation.When(j.Enabled, validation.Required)),
	)
}

// Validate checks the log settings
func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
	)
}

// fileView is the TOML shape of Config, with durations spelled out
type fileView struct {
	ProjectRoot    string `toml:"project_root,omitempty"`
	WorkspaceRoot  string `toml:"workspace_root,omitempty"`
	User           string `toml:"user,omitempty"`
	VersionsToKeep int    `toml:"versions_to_keep"`
	Lock           struct {
		Enabled    bool   `toml:"enabled"`
		RetryDelay string `toml:"retry_delay"`
		Timeout    string `toml:"timeout"`
	} `toml:"lock"`
	Journal struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path,omitempty"`
	} `toml:"journal"`
	Log struct {
		Level  string `toml:"level"`
		Pretty bool   `toml:"pretty"`
	} `toml:"log"`
	Metrics struct {
		Textfile string `toml:"textfile"`
	} `toml:"metrics"`
}

// Render returns the configuration as TOML
func (c *Config) Render() ([]byte, error) {
	view := c.sharedView()
	view.ProjectRoot = c.ProjectRoot
	view.WorkspaceRoot = c.WorkspaceRoot
	view.User = c.User
	view.Journal.Path = c.Journal.Path
	return toml.Marshal(view)
}

// RenderProject returns the settings every user of the project shares.
// The project root, workspace and user are personal and left out, as is a
// journal path that matches the default under the project root.
func (c *Config) RenderProject() ([]byte, error) {
	view := c.sharedView()
	if c.Journal.Path != filepath.Join(c.ProjectRoot, StateDirName, "journal") {
		view.Journal.Path = c.Journal.Path
	}
	return toml.Marshal(view)
}

func (c *Config) sharedView() fileView {
	var view fileView
	view.VersionsToKeep = c.VersionsToKeep
	view.Lock.Enabled = c.Lock.Enabled
	view.Lock.RetryDelay = c.Lock.RetryDelay.String()
	view.Lock.Timeout = c.Lock.Timeout.String()
	view.Journal.Enabled = c.Journal.Enabled
	view.Log.Level = c.Log.Level
	view.Log.Pretty = c.Log.Pretty
	view.Metrics.Textfile = c.Metrics.Textfile
	return view
}

// WriteFile renders the full configuration to path, refusing to overwrite
func (c *Config) WriteFile(path string) error {
	data, err := c.Render()
	if err != nil {
		return err
	}
	return writeNew(path, data)
}

// WriteProjectFile renders the shared settings to path, refusing to overwrite
func (c *Config) WriteProjectFile(path string) error {
	data, err := c.RenderProject()
	if err != nil {
		return err
	}
	return writeNew(path, data)
}

func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
