// Package metadata embeds tags and cover art into acquired audio files.
// Embedding is best-effort: a tagging failure skips tag completeness but
// never fails the acquisition itself.
package metadata

import (
	"fmt"
	"os"

	"go.senan.xyz/taglib"
)

// Tags is the subset of metadata embedded into every acquired file.
type Tags struct {
	Title  string
	Artist string
	Album  string
}

// WriteTags writes the given tags to an audio file. Empty fields are
// left untouched so backend-embedded values survive.
func WriteTags(path string, t Tags) error {
	tags := make(map[string][]string)

	if t.Title != "" {
		tags[taglib.Title] = []string{t.Title}
	}
	if t.Artist != "" {
		tags[taglib.Artist] = []string{t.Artist}
	}
	if t.Album != "" {
		tags[taglib.Album] = []string{t.Album}
	}
	if len(tags) == 0 {
		return nil
	}

	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}

// EmbedCover embeds a cover image file into an audio file.
func EmbedCover(audioPath, coverPath string) error {
	if coverPath == "" {
		return nil
	}
	data, err := os.ReadFile(coverPath)
	if err != nil {
		return fmt.Errorf("failed to read cover %s: %w", coverPath, err)
	}
	return WriteArtwork(audioPath, data)
}

// WriteArtwork embeds artwork image data into an audio file.
func WriteArtwork(path string, imageData []byte) error {
	if len(imageData) == 0 {
		return nil
	}
	if err := taglib.WriteImage(path, imageData); err != nil {
		return fmt.Errorf("failed to write artwork to %s: %w", path, err)
	}
	return nil
}
