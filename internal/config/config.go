package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains the program configuration
type Config struct {
	PlaylistURL  string `yaml:"playlist_url"`
	Verbose      bool   `yaml:"verbose"`
	OutputDir    string `yaml:"output_dir"`
	AudioFormat  string `yaml:"audio_format"`
	AudioQuality string `yaml:"audio_quality"`

	// ParallelJobs fixes the download worker count. 0 means adaptive
	// sizing based on playlist length.
	ParallelJobs int `yaml:"parallel_jobs"`

	// Info prefetch batching.
	InfoBatchSize    int `yaml:"info_batch_size"`
	InfoBatchWorkers int `yaml:"info_batch_workers"`

	// RecoveryWorkers bounds concurrent recovery attempts. SkipRecovery
	// disables the recovery pass entirely.
	RecoveryWorkers int  `yaml:"recovery_workers"`
	SkipRecovery    bool `yaml:"skip_recovery"`

	// Short-track replacement thresholds, in seconds.
	ShortTrackSec  int `yaml:"short_track_sec"`
	MinFallbackSec int `yaml:"min_fallback_sec"`

	// Fallback search matching.
	RelevanceThreshold      float64 `yaml:"relevance_threshold"`
	MaxCandidateDurationSec int     `yaml:"max_candidate_duration_sec"`
	SearchResults           int     `yaml:"search_results"`

	// ResolvesPerSecond rate-limits metadata lookups against the
	// source. 0 disables the limiter.
	ResolvesPerSecond float64 `yaml:"resolves_per_second"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		AudioFormat:             "mp3",
		AudioQuality:            "192",
		InfoBatchSize:           50,
		InfoBatchWorkers:        3,
		RecoveryWorkers:         4,
		ShortTrackSec:           30,
		MinFallbackSec:          31,
		RelevanceThreshold:      0.30,
		MaxCandidateDurationSec: 600,
		SearchResults:           10,
		ResolvesPerSecond:       2,
		OutputDir:               filepath.Join(homeDir(), "Music"),
	}
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.OutputDir = ExpandHome(cfg.OutputDir)

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./trackfetch.yaml",
		"./trackfetch.yml",
		filepath.Join(home, ".config", "trackfetch", "config.yaml"),
		filepath.Join(home, ".config", "trackfetch", "config.yml"),
		filepath.Join(home, ".trackfetch.yaml"),
		filepath.Join(home, ".trackfetch.yml"),
	}

	for _, path := range locations {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "trackfetch", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "trackfetch", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PlaylistURL == "" {
		return fmt.Errorf("playlist URL cannot be empty")
	}
	if !strings.HasPrefix(c.PlaylistURL, "http://") && !strings.HasPrefix(c.PlaylistURL, "https://") {
		return fmt.Errorf("playlist URL must start with http:// or https://")
	}

	if c.ParallelJobs < 0 {
		return fmt.Errorf("parallel jobs cannot be negative, got %d", c.ParallelJobs)
	}
	if c.ParallelJobs > 10 {
		return fmt.Errorf("parallel jobs cannot exceed 10 (to avoid rate limiting), got %d", c.ParallelJobs)
	}

	validFormats := []string{"mp3", "m4a", "opus", "flac", "wav", "aac"}
	isValid := false
	for _, format := range validFormats {
		if c.AudioFormat == format {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("unsupported audio format '%s', valid formats: %v", c.AudioFormat, validFormats)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		return fmt.Errorf("relevance_threshold must be between 0.0 and 1.0, got %.2f", c.RelevanceThreshold)
	}

	if c.ShortTrackSec < 0 || c.MinFallbackSec < 0 {
		return fmt.Errorf("short track thresholds cannot be negative")
	}
	if c.MinFallbackSec > 0 && c.MinFallbackSec <= c.ShortTrackSec {
		return fmt.Errorf("min_fallback_sec (%d) must exceed short_track_sec (%d)", c.MinFallbackSec, c.ShortTrackSec)
	}

	if c.MaxCandidateDurationSec < 0 {
		return fmt.Errorf("max_candidate_duration_sec cannot be negative, got %d", c.MaxCandidateDurationSec)
	}
	if c.SearchResults < 0 {
		return fmt.Errorf("search_results cannot be negative, got %d", c.SearchResults)
	}
	if c.ResolvesPerSecond < 0 {
		return fmt.Errorf("resolves_per_second cannot be negative, got %.2f", c.ResolvesPerSecond)
	}

	return nil
}
