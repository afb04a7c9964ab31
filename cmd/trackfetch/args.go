package main

import (
	"fmt"
	"os"

	"trackfetch/internal/config"
)

// parseArgs parses command-line arguments and loads configuration.
// Priority: CLI flags > config file > defaults
func parseArgs() (config.Config, bool, string, error) {
	args := os.Args[1:]

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			printUsage()
			os.Exit(0)
		}
		if arg == "--init-config" {
			return config.Config{}, false, "", initConfigFile()
		}
	}

	var configPath string
	var cfg config.Config
	var err error

	for i := 0; i < len(args); i++ {
		if args[i] == "--config" || args[i] == "-c" {
			if i+1 >= len(args) {
				return config.Config{}, false, "", fmt.Errorf("--config requires a path argument")
			}
			configPath = args[i+1]
			break
		}
	}

	cfg, err = config.LoadConfigFile(configPath)
	if err != nil {
		return config.Config{}, false, "", fmt.Errorf("failed to load config: %w", err)
	}
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	single := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--verbose", "-v":
			cfg.Verbose = true

		case "--single", "-s":
			single = true

		case "--no-recovery":
			cfg.SkipRecovery = true

		case "--parallel", "-p":
			if i+1 >= len(args) {
				return config.Config{}, false, "", fmt.Errorf("--parallel requires a number argument")
			}
			i++
			var jobs int
			if _, err := fmt.Sscanf(args[i], "%d", &jobs); err != nil {
				return config.Config{}, false, "", fmt.Errorf("invalid parallel jobs value: %s", args[i])
			}
			cfg.ParallelJobs = jobs

		case "--format", "-f":
			if i+1 >= len(args) {
				return config.Config{}, false, "", fmt.Errorf("--format requires a format name")
			}
			i++
			cfg.AudioFormat = args[i]

		case "--quality", "-q":
			if i+1 >= len(args) {
				return config.Config{}, false, "", fmt.Errorf("--quality requires a bitrate value")
			}
			i++
			cfg.AudioQuality = args[i]

		case "--output", "-o":
			if i+1 >= len(args) {
				return config.Config{}, false, "", fmt.Errorf("--output requires a directory path")
			}
			i++
			cfg.OutputDir = config.ExpandHome(args[i])

		case "--config", "-c":
			i++

		default:
			if len(arg) > 0 && arg[0] == '-' {
				return config.Config{}, false, "", fmt.Errorf("unknown flag: %s", arg)
			}
			cfg.PlaylistURL = arg
		}
	}

	return cfg, single, configPath, nil
}

// initConfigFile creates a new config file with default values
func initConfigFile() error {
	path := config.GetDefaultConfigPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists at: %s\n", path)
		fmt.Println("Delete it first if you want to recreate it.")
		os.Exit(0)
	}

	cfg := config.DefaultConfig()

	if err := config.SaveConfigFile(cfg, path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Printf("Created default config file at: %s\n", path)
	fmt.Println("\nYou can now edit this file to customize your settings.")
	fmt.Println("Available options:")
	fmt.Println("  parallel_jobs: 0-10 (0 picks a pool size based on playlist length)")
	fmt.Println("  audio_format: mp3, m4a, opus, flac, wav, aac")
	fmt.Println("  audio_quality: bitrate for lossy formats (default: 192)")
	fmt.Println("  short_track_sec: tracks at or below this length get a longer-version search")
	fmt.Println("  relevance_threshold: 0.0-1.0 match strictness for fallback search results")
	fmt.Println("  skip_recovery: true/false (skip the retry pass over failed tracks)")
	fmt.Println("  verbose: true/false (enable detailed logging)")

	os.Exit(0)
	return nil
}

// printUsage displays the help message
func printUsage() {
	fmt.Println("trackfetch - Download playlists as tagged audio files, with fallback recovery")
	fmt.Println()
	fmt.Println("Usage: trackfetch [options] <playlist_url>")
	fmt.Println("       trackfetch --single [options] <track_url>")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose              Show detailed output")
	fmt.Println("  -s, --single               Treat the URL as a single track, not a playlist")
	fmt.Println("  -p, --parallel <n>         Number of parallel downloads (1-10, 0 = automatic)")
	fmt.Println("  -f, --format <format>      Audio format: mp3, m4a, opus, flac, etc. (default: mp3)")
	fmt.Println("  -q, --quality <kbps>       Audio bitrate for lossy formats (default: 192)")
	fmt.Println("  -o, --output <dir>         Output directory (default: ~/Music)")
	fmt.Println("      --no-recovery          Skip the retry pass over failed tracks")
	fmt.Println("  -c, --config <path>        Path to config file")
	fmt.Println("  -h, --help                 Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  --init-config              Create a default config file")
	fmt.Println()
	fmt.Println("Config file locations (checked in order):")
	fmt.Println("  ./trackfetch.yaml")
	fmt.Println("  ~/.config/trackfetch/config.yaml")
	fmt.Println("  ~/.trackfetch.yaml")
	fmt.Println()
	fmt.Println("Logging:")
	fmt.Println("  Normal mode: Progress bar shown, detailed logs saved to:")
	fmt.Println("    ~/.local/share/trackfetch/logs/")
	fmt.Println("  Verbose mode: All output to stdout, no progress bar, no file logging")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Download a playlist with defaults (progress bar + file logging)")
	fmt.Println("  trackfetch https://soundcloud.com/artist/sets/playlist")
	fmt.Println()
	fmt.Println("  # Download with verbose output (no progress bar)")
	fmt.Println("  trackfetch -v https://soundcloud.com/artist/sets/playlist")
	fmt.Println()
	fmt.Println("  # Download one track in FLAC")
	fmt.Println("  trackfetch --single -f flac https://soundcloud.com/artist/track")
	fmt.Println()
	fmt.Println("  # Create a config file to persist settings")
	fmt.Println("  trackfetch --init-config")
}
