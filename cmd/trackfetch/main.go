package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trackfetch/internal/backend"
	"trackfetch/internal/config"
	"trackfetch/internal/logger"
	"trackfetch/internal/pipeline"
	"trackfetch/internal/progress"
	"trackfetch/internal/shutdown"
	"trackfetch/pkg/utils"
)

func main() {
	cfg, single, configPath, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}

	sh := shutdown.New()
	sh.Listen()
	defer sh.Wait()

	log := logger.New(cfg.Verbose)
	defer log.Close()

	if !cfg.Verbose {
		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			logFile := filepath.Join(logDir, fmt.Sprintf("trackfetch_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(logFile); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			} else {
				log.Debug("Logging to file: %s", logFile)
			}
		}
	}

	if cfg.Verbose && configPath != "" {
		log.Debug("Loaded configuration from: %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	if err := run(sh, cfg, single, log); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func run(sh *shutdown.Handler, cfg config.Config, single bool, log *logger.Logger) error {
	log.Debug("Checking dependencies...")
	if err := utils.CheckDependencies(); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}

	b := backend.NewYtdlp(log, cfg.ResolvesPerSecond)

	if single {
		file, err := pipeline.RunSingle(sh.Context(), cfg, b, log, cfg.PlaylistURL)
		if err != nil {
			return err
		}
		log.Success("Downloaded %s", file.Path)
		return nil
	}

	var bar *progress.Bar
	hooks := pipeline.Hooks{
		OnExpanded: func(total int) {
			if !cfg.Verbose {
				bar = progress.New(total)
				log.SetProgressBar(true)
			}
		},
		OnTrackDone: func(ok bool) {
			if bar != nil {
				bar.Track(ok)
			}
		},
	}

	result, err := pipeline.RunPlaylist(sh.Context(), cfg, b, log, hooks)

	if bar != nil {
		bar.Finish()
		log.SetProgressBar(false)
	}

	if err != nil {
		return err
	}

	if len(result.Failed) > 0 {
		return nil
	}
	log.Info("=== Process completed successfully ===")
	return nil
}
