// Package config loads and validates the pyrothor configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPackageName is the well-known scanner package artifact name. A file
// with this name in the current directory is reused instead of downloading.
const DefaultPackageName = "Custom.DFIR.Yara.AllRules.zip"

// ThorConfig configures the scanner binary invocation.
type ThorConfig struct {
	LicensePath string   `mapstructure:"license_path" yaml:"license_path"`
	RulesPath   string   `mapstructure:"rules_path" yaml:"rules_path" validate:"required"`
	ConfigPath  string   `mapstructure:"config_path" yaml:"config_path"`
	Flags       []string `mapstructure:"flags" yaml:"flags" validate:"required,min=1"`
}

// ServerConfig configures the Pyro server endpoints used for package download
// and report upload.
type ServerConfig struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint" validate:"required,url"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	PackageName    string `mapstructure:"package_name" yaml:"package_name" validate:"required"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"min=1"`
}

// Timeout returns the request timeout as a duration.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ScanConfig configures scan behavior. The working directory is always
// destroyed after a run.
type ScanConfig struct {
	OutputFormat       string   `mapstructure:"output_format" yaml:"output_format" validate:"oneof=json"`
	TempDir            string   `mapstructure:"temp_dir" yaml:"temp_dir"`
	ExcludePaths       []string `mapstructure:"exclude_paths" yaml:"exclude_paths"`
	ExecTimeoutSeconds int      `mapstructure:"exec_timeout_seconds" yaml:"exec_timeout_seconds" validate:"min=1"`
}

// ExecTimeout returns the child process deadline as a duration.
func (s ScanConfig) ExecTimeout() time.Duration {
	return time.Duration(s.ExecTimeoutSeconds) * time.Second
}

// DatabaseConfig configures the embedded rule store.
type DatabaseConfig struct {
	Path          string `mapstructure:"path" yaml:"path" validate:"required"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days" validate:"min=1"`
}

// Config is the root configuration.
type Config struct {
	Thor     ThorConfig     `mapstructure:"thor" yaml:"thor"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Scanning ScanConfig     `mapstructure:"scanning" yaml:"scanning"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// DefaultConfig returns the built-in defaults, matching the flags THOR Lite
// needs to emit a single JSON report on stdout.
func DefaultConfig() *Config {
	return &Config{
		Thor: ThorConfig{
			LicensePath: "thor-lite-license.lic",
			RulesPath:   "custom-signatures",
			ConfigPath:  "config/thor.yml",
			Flags: []string{
				"--utc",
				"--rfc3339",
				"--nocsv",
				"--nolog",
				"--nothordb",
				"--module", "Filescan",
				"--allhds",
				"--json",
			},
		},
		Server: ServerConfig{
			Endpoint:       "http://localhost:8080",
			PackageName:    DefaultPackageName,
			TimeoutSeconds: 300,
		},
		Scanning: ScanConfig{
			OutputFormat: "json",
			ExcludePaths: []string{
				"/proc",
				"/sys",
				"/dev",
				`C:\Windows\System32`,
			},
			ExecTimeoutSeconds: 3600,
		},
		Database: DatabaseConfig{
			Path:          "yara_rules.db",
			RetentionDays: 90,
		},
	}
}

// Load reads configuration from path, falling back to built-in defaults.
// When the file does not exist the defaults are written to path so operators
// have a starting point to edit, matching long-standing behavior.
// PYROTHOR_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PYROTHOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if os.IsNotExist(err) || errors.As(err, &notFound) {
				cfg := DefaultConfig()
				if saveErr := cfg.Save(path); saveErr != nil {
					return nil, fmt.Errorf("write default config: %w", saveErr)
				}
				if err := cfg.Validate(); err != nil {
					return nil, err
				}
				return cfg, nil
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("thor.license_path", def.Thor.LicensePath)
	v.SetDefault("thor.rules_path", def.Thor.RulesPath)
	v.SetDefault("thor.config_path", def.Thor.ConfigPath)
	v.SetDefault("thor.flags", def.Thor.Flags)

	v.SetDefault("server.endpoint", def.Server.Endpoint)
	v.SetDefault("server.api_key", def.Server.APIKey)
	v.SetDefault("server.package_name", def.Server.PackageName)
	v.SetDefault("server.timeout_seconds", def.Server.TimeoutSeconds)

	v.SetDefault("scanning.output_format", def.Scanning.OutputFormat)
	v.SetDefault("scanning.temp_dir", def.Scanning.TempDir)
	v.SetDefault("scanning.exclude_paths", def.Scanning.ExcludePaths)
	v.SetDefault("scanning.exec_timeout_seconds", def.Scanning.ExecTimeoutSeconds)

	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("database.retention_days", def.Database.RetentionDays)
}

// Validate checks the configuration. A failure here is startup-fatal.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Save writes the configuration to path as YAML, creating parent directories
// if needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
