// Package config resolves RollForge settings from defaults, an optional YAML
// file and ROLLFORGE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	// OnCorruptFail surfaces an unreadable data file and stops.
	OnCorruptFail = "fail"
	// OnCorruptQuarantine moves an unreadable data file aside and starts empty.
	OnCorruptQuarantine = "quarantine"

	ConfigFileName     = "config.yaml"
	CharactersFileName = "characters.json"
	DatabaseFileName   = "characters.db"
	ImagesDirName      = "character_images"
)

// Config is the resolved application configuration.
type Config struct {
	DataDir   string `yaml:"data_dir" env:"ROLLFORGE_DATA_DIR"`
	Backend   string `yaml:"backend" env:"ROLLFORGE_BACKEND"`
	RulesFile string `yaml:"rules_file" env:"ROLLFORGE_RULES_FILE"`
	OnCorrupt string `yaml:"on_corrupt" env:"ROLLFORGE_ON_CORRUPT"`
	AutoSave  bool   `yaml:"autosave" env:"ROLLFORGE_AUTOSAVE"`
	LogLevel  string `yaml:"log_level" env:"ROLLFORGE_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"ROLLFORGE_LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:   DefaultDataDir(),
		Backend:   BackendJSON,
		OnCorrupt: OnCorruptFail,
		AutoSave:  true,
		LogLevel:  "warn",
		LogFormat: "console",
	}
}

// Load resolves configuration. Environment variables override the YAML
// file, which overrides defaults. path may be empty, in which case
// config.yaml in the data directory is read if it exists.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, ConfigFileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := ParseEnv(&cfg); err != nil {
			return Config{}, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	switch c.Backend {
	case BackendJSON, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.Backend))
	}
	switch c.OnCorrupt {
	case OnCorruptFail, OnCorruptQuarantine:
	default:
		errs = append(errs, fmt.Errorf("on_corrupt must be %q or %q, got %q", OnCorruptFail, OnCorruptQuarantine, c.OnCorrupt))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be \"json\" or \"console\", got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// StorePath returns the data file for the configured backend.
func (c Config) StorePath() string {
	if c.Backend == BackendSQLite {
		return filepath.Join(c.DataDir, DatabaseFileName)
	}
	return filepath.Join(c.DataDir, CharactersFileName)
}

// ImagesDir returns the directory portraits are copied into.
func (c Config) ImagesDir() string {
	return filepath.Join(c.DataDir, ImagesDirName)
}

// DefaultDataDir returns the per-user data directory:
// %LOCALAPPDATA%\RollForge\data on Windows, otherwise
// $XDG_DATA_HOME/RollForge/data or ~/.local/share/RollForge/data.
func DefaultDataDir() string {
	return dataDir(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func dataDir(goos string, getenv func(string) string, home func() (string, error)) string {
	homeDir, err := home()
	if err != nil || homeDir == "" {
		homeDir = "."
	}
	if goos == "windows" {
		base := getenv("LOCALAPPDATA")
		if base == "" {
			base = homeDir
		}
		return filepath.Join(base, "RollForge", "data")
	}
	base := getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(base, "RollForge", "data")
}
