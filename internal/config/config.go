package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/openmined/sftpsync/internal/utils"
	"github.com/spf13/viper"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".sftpsync")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "sftpsync.log")
	DefaultHistoryPath = filepath.Join(DefaultConfigDir, "history.db")
)

const EnvPrefix = "SFTPSYNC"

const (
	AssumeAsk = ""
	AssumeYes = "yes"
	AssumeNo  = "no"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the persistent and per-invocation settings of the CLI. Flags,
// SFTPSYNC_* environment variables and the JSON file are merged by viper.
type Config struct {
	Exclude      string `json:"exclude,omitempty" mapstructure:"exclude"`
	DryRun       bool   `json:"dry_run,omitempty" mapstructure:"dry_run"`
	SkipOnError  bool   `json:"skip_on_error,omitempty" mapstructure:"skip_on_error"`
	Subdir       string `json:"subdir,omitempty" mapstructure:"subdir"`
	LocalDir     string `json:"local_dir,omitempty" mapstructure:"local_dir"`
	IdentityFile string `json:"identity_file,omitempty" mapstructure:"identity_file"`
	KnownHosts   string `json:"known_hosts,omitempty" mapstructure:"known_hosts"`
	LogLevel     string `json:"log_level,omitempty" mapstructure:"log_level"`
	Assume       string `json:"assume,omitempty" mapstructure:"assume"`
	HistoryDB    string `json:"history_db,omitempty" mapstructure:"history_db"`
	Path         string `json:"-" mapstructure:"-"`
}

// FromViper decodes the merged settings.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

// Validate checks values and normalizes paths. The exclude expression is
// compiled the same way the sync engine compiles it.
func (c *Config) Validate() error {
	if c.Exclude != "" {
		if _, err := regexp.Compile(`^(?:` + c.Exclude + `)`); err != nil {
			return fmt.Errorf("%w: exclude pattern: %v", ErrInvalidConfig, err)
		}
	}

	c.Assume = strings.ToLower(strings.TrimSpace(c.Assume))
	switch c.Assume {
	case AssumeAsk, AssumeYes, AssumeNo:
	default:
		return fmt.Errorf("%w: assume must be yes, no or empty, got %q", ErrInvalidConfig, c.Assume)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Subdir != "" {
		c.Subdir = strings.Trim(filepath.ToSlash(filepath.Clean(c.Subdir)), "/")
		if c.Subdir == "." {
			c.Subdir = ""
		}
		if c.Subdir == ".." || strings.HasPrefix(c.Subdir, "../") {
			return fmt.Errorf("%w: subdir %q escapes the sync root", ErrInvalidConfig, c.Subdir)
		}
	}

	for _, p := range []*string{&c.LocalDir, &c.IdentityFile, &c.KnownHosts, &c.HistoryDB, &c.Path} {
		if *p == "" {
			continue
		}
		resolved, err := utils.ResolvePath(*p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*p = resolved
	}

	if c.HistoryDB == "" {
		c.HistoryDB = DefaultHistoryPath
	}
	return nil
}

// Level returns the slog level, Info when unset.
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// Save writes the persistent part of the config as JSON.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	persisted := *c
	persisted.DryRun = false
	persisted.Subdir = ""
	persisted.LocalDir = ""

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) String() string {
	return fmt.Sprintf("config=%s exclude=%q dry_run=%t skip_on_error=%t subdir=%q assume=%q",
		c.Path, c.Exclude, c.DryRun, c.SkipOnError, c.Subdir, c.Assume)
}
