package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Supported audio file extensions
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".opus": true,
	".wav":  true,
	".aac":  true,
	".ogg":  true,
	".webm": true,
}

// Cover art extensions yt-dlp writes next to the audio file
var coverExtensions = []string{".jpg", ".jpeg", ".webp", ".png"}

// CheckDependencies verifies that required external commands are installed
func CheckDependencies() error {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return fmt.Errorf("required command 'yt-dlp' not found in PATH. Install with: pip install yt-dlp")
	}

	return nil
}

// IsAudioFile reports whether path has a supported audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// FindExistingAudio looks for an already-downloaded audio file whose base
// name contains (or is contained by) the given title stem, accounting for
// slight naming variations between attempts. Returns "" when none exists.
func FindExistingAudio(dir, titleStem string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	want := strings.ToLower(titleStem)
	if want == "" {
		return ""
	}

	for _, e := range entries {
		if e.IsDir() || !IsAudioFile(e.Name()) {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if strings.Contains(base, want) || strings.Contains(want, base) {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// FindAudioByStem returns the first audio file in dir whose base name
// starts with stem, regardless of extension. Used after a download when
// the tool produced a different container than requested.
func FindAudioByStem(dir, stem string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() || !IsAudioFile(e.Name()) {
			continue
		}
		if strings.HasPrefix(e.Name(), stem) {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// FindCoverArt returns the path of a thumbnail image written next to the
// audio file for the given stem, or "" when none exists.
func FindCoverArt(dir, stem string) string {
	for _, ext := range coverExtensions {
		path := filepath.Join(dir, stem+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// UniqueFilename returns desired if no file with that name exists in dir,
// otherwise appends _2, _3, ... to the base name until it is free.
func UniqueFilename(dir, desired string) string {
	if _, err := os.Stat(filepath.Join(dir, desired)); os.IsNotExist(err) {
		return desired
	}

	ext := filepath.Ext(desired)
	base := strings.TrimSuffix(desired, ext)
	for counter := 2; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", base, counter, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

// ListAudioTitles returns the lowercased base names of all audio files in
// dir. Used to seed duplicate detection from a previous run's output.
func ListAudioTitles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var titles []string
	for _, e := range entries {
		if e.IsDir() || !IsAudioFile(e.Name()) {
			continue
		}
		titles = append(titles, strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))))
	}
	return titles
}
