package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fwojciec/eka/backend"
	"github.com/fwojciec/eka/chat"
)

// Store kinds accepted by the store setting.
const (
	storeJSON   = "json"
	storeBolt   = "bolt"
	storeSQLite = "sqlite"
)

// Config is the resolved client configuration.
type Config struct {
	BackendURL   string
	Store        string
	DataDir      string
	LogLevel     string
	SaveInterval time.Duration
	Mode         string
}

// fileConfig is the config.toml key mapping.
type fileConfig struct {
	BackendURL   string `toml:"backend_url"`
	Store        string `toml:"store"`
	DataDir      string `toml:"data_dir"`
	LogLevel     string `toml:"log_level"`
	SaveInterval string `toml:"save_interval"`
	Mode         string `toml:"mode"`
}

func defaultConfig(home string) Config {
	return Config{
		BackendURL:   backend.DefaultBaseURL,
		Store:        storeJSON,
		DataDir:      filepath.Join(home, ".eka"),
		LogLevel:     "info",
		SaveInterval: chat.DefaultSaveInterval,
		Mode:         "auto",
	}
}

func defaultConfigPath(home string) string {
	return filepath.Join(home, ".eka", "config.toml")
}

// loadConfig overlays the TOML file at path and then the environment on the
// defaults. A missing file is only an error when the path was given
// explicitly.
func loadConfig(path string, explicit bool, home string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig(home)

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	switch {
	case err == nil:
		if meta.IsDefined("backend_url") {
			cfg.BackendURL = strings.TrimSpace(raw.BackendURL)
		}
		if meta.IsDefined("store") {
			cfg.Store = strings.TrimSpace(raw.Store)
		}
		if meta.IsDefined("data_dir") {
			cfg.DataDir = expandHome(strings.TrimSpace(raw.DataDir), home)
		}
		if meta.IsDefined("log_level") {
			cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
		}
		if meta.IsDefined("save_interval") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.SaveInterval))
			if err != nil {
				return Config{}, fmt.Errorf("config %s: save_interval: %w", path, err)
			}
			cfg.SaveInterval = d
		}
		if meta.IsDefined("mode") {
			cfg.Mode = strings.TrimSpace(raw.Mode)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if v := getenv("EKA_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := getenv("EKA_STORE"); v != "" {
		cfg.Store = v
	}
	if v := getenv("EKA_DATA_DIR"); v != "" {
		cfg.DataDir = expandHome(v, home)
	}
	if v := getenv("EKA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store {
	case storeJSON, storeBolt, storeSQLite:
	default:
		return fmt.Errorf("unknown store %q (want json, bolt or sqlite)", c.Store)
	}
	if c.BackendURL == "" {
		return errors.New("backend_url is empty")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is empty")
	}
	if c.SaveInterval < 0 {
		return fmt.Errorf("save_interval %s is negative", c.SaveInterval)
	}
	return nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}
