package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lotas/mergewin/internal/consolidate"
)

const DefaultPort = 19192

// Config holds runtime settings. The domain lists are compiled into the
// consolidate presets and are not read from here.
type Config struct {
	Port    int    `yaml:"port"`
	Preset  string `yaml:"preset"`
	LogDir  string `yaml:"log_dir"`
	NtfyURL string `yaml:"ntfy_url"`
	CDPURL  string `yaml:"cdp_url"`
	Profile string `yaml:"profile"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:   DefaultPort,
		Preset: consolidate.PresetClassic,
		LogDir: defaultLogDir(),
	}
}

// DefaultPath returns ~/.config/mergewin/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mergewin", "config.yaml")
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "mergewin")
}

// Load layers defaults, the YAML file at path (missing is fine), a .env file
// in the working directory and MERGEWIN_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	cfg.Port = envInt("MERGEWIN_PORT", cfg.Port)
	cfg.Preset = envString("MERGEWIN_PRESET", cfg.Preset)
	cfg.LogDir = envString("MERGEWIN_LOG_DIR", cfg.LogDir)
	cfg.NtfyURL = envString("MERGEWIN_NTFY_URL", cfg.NtfyURL)
	cfg.CDPURL = envString("MERGEWIN_CDP_URL", cfg.CDPURL)
	cfg.Profile = envString("MERGEWIN_PROFILE", cfg.Profile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks port range and preset name.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := consolidate.Preset(c.Preset); err != nil {
		return err
	}
	return nil
}

// Consolidate returns the consolidator configuration for the chosen preset.
func (c *Config) Consolidate() (consolidate.Config, error) {
	return consolidate.Preset(c.Preset)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
