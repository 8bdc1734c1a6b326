package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the SQLite file holding configured entries.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	// Level is one of "error", "warn", "info", "debug".
	Level string `mapstructure:"level" yaml:"level"`

	// File receives the log. Interactive views own the terminal, so
	// nothing is logged to it. Empty disables logging.
	File string `mapstructure:"file" yaml:"file"`
}

// ValidatorConfig bounds connection validation attempts.
type ValidatorConfig struct {
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns the per-attempt deadline, falling back to 30s.
func (c ValidatorConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// HealthConfig tunes the credential check run over all entries.
type HealthConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// KeyringConfig selects where account passwords are kept.
type KeyringConfig struct {
	// Backends restricts the keyring backends tried, in order
	// (e.g., "keychain", "secret-service", "file"). Empty means all.
	Backends []string `mapstructure:"backends" yaml:"backends"`

	// FileDir is used by the encrypted file backend.
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Locale    string          `mapstructure:"locale" yaml:"locale"`
	Validator ValidatorConfig `mapstructure:"validator" yaml:"validator"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Keyring   KeyringConfig   `mapstructure:"keyring" yaml:"keyring"`
}

// configDir returns ~/.config/mailflow, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailflow")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailflow/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		Database:  DatabaseConfig{Path: filepath.Join(dir, "mailflow.db")},
		Log:       LogConfig{Level: "info", File: filepath.Join(dir, "mailflow.log")},
		Locale:    "en",
		Validator: ValidatorConfig{TimeoutSec: 30},
		Health:    HealthConfig{Concurrency: 4},
		Keyring:   KeyringConfig{FileDir: filepath.Join(dir, "credentials")},
	}
}

// setDefaults registers defaults on v so missing keys resolve to
// sensible values.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("locale", d.Locale)
	v.SetDefault("validator.timeout_sec", d.Validator.TimeoutSec)
	v.SetDefault("health.concurrency", d.Health.Concurrency)
	v.SetDefault("keyring.file_dir", d.Keyring.FileDir)
}

// NewViper returns a Viper instance reading the YAML file at path with
// defaults applied and MAILFLOW_* environment overrides enabled.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mailflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	return LoadConfigFrom(NewViper(path))
}

// LoadConfigFrom decodes configuration from an already prepared Viper
// instance, e.g. one with command-line flags bound to it.
func LoadConfigFrom(v *viper.Viper) (*AppConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", v.ConfigFileUsed(), err)
	}

	if cfg.Health.Concurrency < 1 {
		cfg.Health.Concurrency = 1
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("log", cfg.Log)
	v.Set("locale", cfg.Locale)
	v.Set("validator", cfg.Validator)
	v.Set("health", cfg.Health)
	v.Set("keyring", cfg.Keyring)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
