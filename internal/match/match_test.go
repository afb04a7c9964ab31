package match

import (
	"testing"
	"time"
)

func TestAcceptRejectsNonMusicIndicators(t *testing.T) {
	m := New(0, 0)

	cand := Candidate{
		Title:    "One More Time (Tutorial) - How To Mix",
		Uploader: "MixAcademy",
		Duration: 200 * time.Second,
	}
	if m.Accept("Daft Punk - One More Time", cand) {
		t.Error("expected rejection: non-music indicator in candidate title")
	}

	cand = Candidate{
		Title:    "Short Song",
		Uploader: "Reaction Central",
		Duration: 180 * time.Second,
	}
	if m.Accept("Short Song", cand) {
		t.Error("expected rejection: non-music indicator in uploader")
	}
}

func TestAcceptHighOverlap(t *testing.T) {
	m := New(0, 0)

	cand := Candidate{
		Title:    "Short Song Official Audio",
		Uploader: "ArtistChannel",
		Duration: 180 * time.Second,
	}
	if !m.Accept("Short Song", cand) {
		t.Error("expected acceptance: high token overlap, no indicators, duration under cap")
	}
}

func TestAcceptRejectsLongCandidates(t *testing.T) {
	m := New(0, 0)

	cand := Candidate{
		Title:    "Short Song Extended Club Version",
		Uploader: "ArtistChannel",
		Duration: 45 * time.Minute,
	}
	if m.Accept("Short Song", cand) {
		t.Error("expected rejection: duration above cap suggests a mix or set")
	}
}

func TestAcceptRejectsLowOverlap(t *testing.T) {
	m := New(0, 0)

	cand := Candidate{
		Title:    "Completely Different Thing",
		Uploader: "SomeChannel",
		Duration: 200 * time.Second,
	}
	if m.Accept("Midnight City", cand) {
		t.Error("expected rejection: no token overlap")
	}
}

func TestOverlapIgnoresStopWordsAndShortTokens(t *testing.T) {
	m := New(0, 0)

	// "the" is a stop word and "of" is too short; only "house" and
	// "rising" and "sun" count, all present in the candidate.
	got := m.Overlap("The House of the Rising Sun", "House of the Rising Sun (Remastered)")
	if got < 0.99 {
		t.Errorf("Overlap() = %.2f, want 1.00", got)
	}
}

func TestOverlapEmptyOriginal(t *testing.T) {
	m := New(0, 0)
	if got := m.Overlap("", "anything at all"); got != 0 {
		t.Errorf("Overlap() = %.2f, want 0", got)
	}
}

func TestAcceptCustomThreshold(t *testing.T) {
	// 2 of 4 meaningful tokens overlap: passes 0.30 but not 0.60.
	original := "alpha beta gamma delta"
	cand := Candidate{Title: "alpha beta unrelated words", Uploader: "c", Duration: 100 * time.Second}

	if !New(0.30, 0).Accept(original, cand) {
		t.Error("expected acceptance at threshold 0.30")
	}
	if New(0.60, 0).Accept(original, cand) {
		t.Error("expected rejection at threshold 0.60")
	}
}
