// Package config handles Thursday configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/thursday/config.yaml, /etc/thursday/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "thursday", "config.yaml"))
	}

	paths = append(paths, "/etc/thursday/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Thursday configuration.
type Config struct {
	Listen   ListenConfig  `yaml:"listen"`
	Backend  BackendConfig `yaml:"backend"`
	Memory   MemoryConfig  `yaml:"memory"`
	Weather  WeatherConfig `yaml:"weather"`
	Speech   SpeechConfig  `yaml:"speech"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
}

// ListenConfig defines the HTTP API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// BackendConfig defines the generative backend connection.
type BackendConfig struct {
	// URL is the base URL of the Ollama-compatible completion service.
	URL string `yaml:"url"`
	// Model is the model name passed on every generate request.
	Model string `yaml:"model"`
	// TimeoutSec is the per-request timeout in seconds (default 60).
	TimeoutSec int `yaml:"timeout_sec"`
}

// MemoryConfig defines durable conversation memory settings.
type MemoryConfig struct {
	// Path is the SQLite database file. Defaults to <data_dir>/thursday.db.
	Path string `yaml:"path"`
	// HistoryLimit caps how many recent messages feed each turn's context.
	HistoryLimit int `yaml:"history_limit"`
}

// WeatherConfig defines the geocoding/forecast collaborator endpoints.
// Both default to the public Open-Meteo services; tests point them at
// local fixtures.
type WeatherConfig struct {
	GeocodeURL  string `yaml:"geocode_url"`
	ForecastURL string `yaml:"forecast_url"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

// SpeechConfig defines the external text-to-speech process.
type SpeechConfig struct {
	Enabled bool `yaml:"enabled"`
	// Engine selects the TTS backend: "say" (macOS) or "piper".
	Engine string `yaml:"engine"`
	// Voice is the voice name ("say") or model path ("piper").
	Voice string `yaml:"voice"`
	// OutputDir receives generated WAV files. Defaults to <data_dir>/tts.
	OutputDir string `yaml:"output_dir"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if cfg.Memory.Path == "" {
		cfg.Memory.Path = filepath.Join(cfg.DataDir, "thursday.db")
	}
	if cfg.Speech.OutputDir == "" {
		cfg.Speech.OutputDir = filepath.Join(cfg.DataDir, "tts")
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Backend: BackendConfig{
			URL:        "http://localhost:11434",
			Model:      "qwen2.5:7b-instruct",
			TimeoutSec: 60,
		},
		Memory: MemoryConfig{
			HistoryLimit: 30,
		},
		Weather: WeatherConfig{
			TimeoutSec: 15,
		},
		Speech: SpeechConfig{
			Engine: "say",
		},
		DataDir: "brain",
	}
}
