package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region config-structs
// Config is the complete gatekeeper configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Vision    VisionConfig    `yaml:"vision"`
	Gallery   GalleryConfig   `yaml:"gallery"`
	Recognize RecognizeConfig `yaml:"recognize"`
	Session   SessionConfig   `yaml:"session"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VisionConfig points at the face detection sidecar.
type VisionConfig struct {
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	TimeoutS int    `yaml:"timeout_s"`
}

// GalleryConfig controls rebuild failure handling.
type GalleryConfig struct {
	FailureCeiling int `yaml:"failure_ceiling"` // consecutive failures before backoff kicks in
	BackoffS       int `yaml:"backoff_s"`
}

// RecognizeConfig holds the match acceptance gates.
type RecognizeConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold"`
	MinConfidence     float64 `yaml:"min_confidence"`
}

// SessionConfig controls frame pacing and session lifecycle.
type SessionConfig struct {
	FrameIntervalMS   int `yaml:"frame_interval_ms"`
	FrameBuffer       int `yaml:"frame_buffer"`
	IdleTimeoutS      int `yaml:"idle_timeout_s"`
	DuplicateWindowMS int `yaml:"duplicate_window_ms"`
}

// WatchConfig enables the reference photo directory watcher. An empty
// photo_dir disables it.
type WatchConfig struct {
	PhotoDir   string `yaml:"photo_dir"`
	DebounceMS int    `yaml:"debounce_ms"`
}
// #endregion config-structs

// #region defaults
// Default returns the production defaults.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "boardgate.db"},
		Vision: VisionConfig{
			BaseURL:  "http://127.0.0.1:18081",
			Model:    "arcface-r50",
			TimeoutS: 30,
		},
		Gallery: GalleryConfig{
			FailureCeiling: 3,
			BackoffS:       60,
		},
		Recognize: RecognizeConfig{
			DistanceThreshold: 0.68,
			MinConfidence:     60,
		},
		Session: SessionConfig{
			FrameIntervalMS:   200,
			FrameBuffer:       8,
			IdleTimeoutS:      120,
			DuplicateWindowMS: 2000,
		},
		Watch: WatchConfig{DebounceMS: 500},
	}
}
// #endregion defaults

// #region load
// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
// #endregion load

// #region validate
// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if cfg.Vision.BaseURL == "" {
		return fmt.Errorf("vision.base_url must not be empty")
	}
	if cfg.Vision.TimeoutS <= 0 {
		return fmt.Errorf("vision.timeout_s must be positive")
	}
	if cfg.Recognize.DistanceThreshold <= 0 || cfg.Recognize.DistanceThreshold > 2 {
		return fmt.Errorf("recognize.distance_threshold must be in (0, 2]")
	}
	if cfg.Recognize.MinConfidence < 0 || cfg.Recognize.MinConfidence > 100 {
		return fmt.Errorf("recognize.min_confidence must be in [0, 100]")
	}
	if cfg.Session.FrameBuffer <= 0 {
		return fmt.Errorf("session.frame_buffer must be positive")
	}
	if cfg.Session.FrameIntervalMS < 0 {
		return fmt.Errorf("session.frame_interval_ms must not be negative")
	}
	if cfg.Gallery.FailureCeiling <= 0 {
		return fmt.Errorf("gallery.failure_ceiling must be positive")
	}
	return nil
}
// #endregion validate
