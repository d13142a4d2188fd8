// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

// Package config loads pakmgr settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/woozymasta/pak"
)

// Config holds pakmgr configuration.
type Config struct {
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	LogOutputDir string `mapstructure:"log_output_dir"`

	// FooterLayout forces footer shape (auto, encrypted, legacy, extended).
	FooterLayout string `mapstructure:"footer_layout"`
	// ByteOrder forces byte order (auto, little, big).
	ByteOrder string `mapstructure:"byte_order"`

	// FileMode is extraction output policy (truncate, create_only).
	FileMode string `mapstructure:"file_mode"`

	Workers          int   `mapstructure:"workers"`
	MaxBufferedBytes int64 `mapstructure:"max_buffered_bytes"`
	BackupKeep       int   `mapstructure:"backup_keep"`

	MemoryMap         bool `mapstructure:"memory_map"`
	PrependMountPoint bool `mapstructure:"prepend_mount_point"`
	NoProgress        bool `mapstructure:"no_progress"`
}

// ErrInvalid means a configuration value is outside its allowed set.
var ErrInvalid = errors.New("invalid configuration")

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":           "log_level",
	"log-format":          "log_format",
	"log-output-dir":      "log_output_dir",
	"footer-layout":       "footer_layout",
	"byte-order":          "byte_order",
	"file-mode":           "file_mode",
	"workers":             "workers",
	"backups":             "backup_keep",
	"mmap":                "memory_map",
	"prepend-mount-point": "prepend_mount_point",
	"no-progress":         "no_progress",
}

// Load reads configuration from cfgFile, or pakmgr.yaml in home or working
// directory when cfgFile is empty. Missing default config file is not an error.
// Precedence: flags set in flags, PAKMGR_ environment variables, file, defaults.
// flags may be nil; flags absent from the set are skipped.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}

			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("footer_layout", "auto")
	v.SetDefault("byte_order", "auto")
	v.SetDefault("file_mode", string(pak.ExtractFileModeTruncate))
	v.SetDefault("workers", 0)
	v.SetDefault("max_buffered_bytes", int64(pak.DefaultMaxBufferedBytes))
	v.SetDefault("backup_keep", 1)
	v.SetDefault("log_output_dir", "")
	v.SetDefault("memory_map", false)
	v.SetDefault("prepend_mount_point", false)
	v.SetDefault("no_progress", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}

		v.AddConfigPath(".")
		v.SetConfigName("pakmgr")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAKMGR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}

	if !slices.Contains([]string{"text", "json"}, c.LogFormat) {
		return fmt.Errorf("%w: log_format %q", ErrInvalid, c.LogFormat)
	}

	if _, ok := pak.ParseFooterLayout(c.FooterLayout); !ok {
		return fmt.Errorf("%w: footer_layout %q", ErrInvalid, c.FooterLayout)
	}

	if !slices.Contains([]string{"", "auto", "little", "big"}, c.ByteOrder) {
		return fmt.Errorf("%w: byte_order %q", ErrInvalid, c.ByteOrder)
	}

	switch pak.ExtractFileMode(c.FileMode) {
	case pak.ExtractFileModeTruncate, pak.ExtractFileModeCreateOnly:
	default:
		return fmt.Errorf("%w: file_mode %q", ErrInvalid, c.FileMode)
	}

	if c.Workers < 0 || c.MaxBufferedBytes < 0 || c.BackupKeep < 0 {
		return fmt.Errorf("%w: workers, max_buffered_bytes and backup_keep must not be negative", ErrInvalid)
	}

	return nil
}

// FooterOptions converts footer overrides to library options.
func (c *Config) FooterOptions() pak.FooterOptions {
	layout, _ := pak.ParseFooterLayout(c.FooterLayout)
	opts := pak.FooterOptions{Layout: layout}

	switch c.ByteOrder {
	case "little":
		opts.ForceByteOrder = true
		opts.ByteOrder = pak.LittleEndian
	case "big":
		opts.ForceByteOrder = true
		opts.ByteOrder = pak.BigEndian
	}

	return opts
}
