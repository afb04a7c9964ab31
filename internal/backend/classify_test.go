package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnclassified},
		{"timeout", errors.New("read timed out"), KindTransient},
		{"connection", errors.New("connection reset by peer"), KindTransient},
		{"rate limit", errors.New("HTTP Error 429: Too Many Requests"), KindTransient},
		{"bad gateway", errors.New("HTTP Error 502"), KindTransient},
		{"not found", errors.New("HTTP Error 404: Not Found"), KindPermanent},
		{"private", errors.New("this track is private"), KindPermanent},
		{"forbidden", errors.New("HTTP Error 403: Forbidden"), KindPermanent},
		{"geo", errors.New("not available in your country"), KindPermanent},
		{"drm", errors.New("this content is DRM protected"), KindPermanent},
		{"mystery", errors.New("something odd happened"), KindUnclassified},
		{"wrapped transient", fmt.Errorf("download failed: %w", errors.New("socket timeout")), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransientWinsOverPermanent(t *testing.T) {
	err := errors.New("connection timeout fetching private track")
	if !IsTransient(err) {
		t.Error("expected transient classification to win")
	}
	if IsPermanent(err) {
		t.Error("IsPermanent should be false for a transient error")
	}
}

func TestParsePlaylistEntries(t *testing.T) {
	stdout := "https://sc.example/t/1\t180\n" +
		"https://sc.example/t/2\tNA\n" +
		"https://sc.example/live\t7200\n" +
		"NA\t90\n" +
		"https://sc.example/t/3\t95.5\n"

	refs := parsePlaylistEntries(stdout)
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d", len(refs))
	}
	// Live streams (>= 1h) and NA locators drop; unknown durations stay.
	if refs[1].URL != "https://sc.example/t/2" {
		t.Errorf("unexpected second reference: %s", refs[1].URL)
	}
	for i, ref := range refs {
		if ref.Index != i+1 {
			t.Errorf("reference %d has index %d", i, ref.Index)
		}
	}
}

func TestParseInfo(t *testing.T) {
	info, ok := parseInfo("Some Song\tSome Artist\t215\thttps://img.example/x.jpg\n")
	if !ok {
		t.Fatal("expected metadata to parse")
	}
	if info.Title != "Some Song" || info.Artist != "Some Artist" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Duration.Seconds() != 215 {
		t.Errorf("duration = %v, want 215s", info.Duration)
	}
	if info.ThumbnailURL != "https://img.example/x.jpg" {
		t.Errorf("thumbnail = %q", info.ThumbnailURL)
	}
}

func TestParseInfoUnknownFields(t *testing.T) {
	info, ok := parseInfo("Untitled\tNA\tNA\tNA\n")
	if !ok {
		t.Fatal("expected metadata to parse")
	}
	if info.Artist != "" {
		t.Errorf("artist should be empty for NA, got %q", info.Artist)
	}
	if info.Duration != 0 {
		t.Errorf("duration should be zero for NA, got %v", info.Duration)
	}
}

func TestParseInfoEmpty(t *testing.T) {
	if _, ok := parseInfo(""); ok {
		t.Error("expected parse failure on empty output")
	}
}
