package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"trackfetch/internal/backend"
	"trackfetch/internal/config"
	"trackfetch/internal/logger"
	"trackfetch/internal/track"
)

type fakeBackend struct {
	mu sync.Mutex

	refs           []track.Reference
	infos          map[string]track.Info
	materializeErr map[string]error
	searchResults  map[string][]backend.Candidate

	materializeCalls []string
}

func newFakeBackend(refs []track.Reference) *fakeBackend {
	return &fakeBackend{
		refs:           refs,
		infos:          make(map[string]track.Info),
		materializeErr: make(map[string]error),
		searchResults:  make(map[string][]backend.Candidate),
	}
}

func (f *fakeBackend) ResolvePlaylist(ctx context.Context, url string) ([]track.Reference, error) {
	return f.refs, nil
}

func (f *fakeBackend) Resolve(ctx context.Context, ref track.Reference) (track.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infos[ref.URL], nil
}

func (f *fakeBackend) Materialize(ctx context.Context, ref track.Reference, destDir string, opts backend.MaterializeOptions) (string, error) {
	f.mu.Lock()
	f.materializeCalls = append(f.materializeCalls, ref.URL)
	err := f.materializeErr[ref.URL]
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	path := filepath.Join(destDir, opts.Filename+".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeBackend) Search(ctx context.Context, query string, limit int) ([]backend.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchResults[query], nil
}

func (f *fakeBackend) materializedCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.materializeCalls {
		if call == url {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.PlaylistURL = "https://soundcloud.com/artist/sets/test"
	cfg.OutputDir = t.TempDir()
	cfg.ParallelJobs = 2
	return cfg
}

func TestRunPlaylistEveryReferenceAccounted(t *testing.T) {
	refs := []track.Reference{
		{URL: "sc://1", Index: 1},
		{URL: "sc://2", Index: 2},
		{URL: "sc://3", Index: 3},
		{URL: "sc://4", Index: 4},
		{URL: "sc://5", Index: 5},
	}
	fb := newFakeBackend(refs)
	fb.infos["sc://1"] = track.Info{Title: "Alpha Song", Duration: 100 * time.Second}
	fb.infos["sc://2"] = track.Info{Title: "Beta Song", Duration: 100 * time.Second}
	fb.infos["sc://3"] = track.Info{Title: "Gamma Song", Duration: 100 * time.Second}
	fb.infos["sc://4"] = track.Info{Title: "Rescue Song", Duration: 100 * time.Second}
	fb.infos["sc://5"] = track.Info{Title: "Dead Song", Duration: 100 * time.Second}

	// sc://4 fails everywhere except the "official" search variant,
	// which only the recovery pass tries. sc://5 fails for good.
	fb.materializeErr["sc://4"] = errTest("connection timeout")
	fb.materializeErr["sc://5"] = errTest("Video unavailable: 404 Not Found")
	fb.searchResults["Rescue Song official"] = []backend.Candidate{
		{URL: "yt://rescue", Title: "Rescue Song (Official Audio)", Uploader: "Label", Duration: 190 * time.Second},
	}

	var expanded, done int
	var mu sync.Mutex
	hooks := Hooks{
		OnExpanded:  func(total int) { expanded = total },
		OnTrackDone: func(bool) { mu.Lock(); done++; mu.Unlock() },
	}

	cfg := testConfig(t)
	result, err := RunPlaylist(context.Background(), cfg, fb, logger.New(false), hooks)
	if err != nil {
		t.Fatalf("RunPlaylist failed: %v", err)
	}

	if len(result.Files)+len(result.Failed) != len(refs) {
		t.Fatalf("conservation violated: %d files + %d failed != %d refs",
			len(result.Files), len(result.Failed), len(refs))
	}
	if len(result.Files) != 4 || len(result.Failed) != 1 {
		t.Errorf("expected 4 files and 1 failure, got %d/%d", len(result.Files), len(result.Failed))
	}
	if expanded != len(refs) {
		t.Errorf("OnExpanded reported %d, want %d", expanded, len(refs))
	}
	if done != len(refs) {
		t.Errorf("OnTrackDone fired %d times, want %d", done, len(refs))
	}

	rec := result.Failed[0]
	if rec.Title != "Dead Song" || rec.URL != "sc://5" {
		t.Errorf("unexpected terminal failure: %+v", rec)
	}

	// The report exists and carries the record fields.
	data, err := os.ReadFile(result.ReportPath)
	if err != nil {
		t.Fatalf("failure report missing: %v", err)
	}
	for _, want := range []string{"Title: Dead Song", "URL: sc://5", "Reason: "} {
		if !strings.Contains(string(data), want) {
			t.Errorf("report missing %q:\n%s", want, data)
		}
	}

	// Every acquired file is really on disk.
	for _, f := range result.Files {
		if _, err := os.Stat(f.Path); err != nil {
			t.Errorf("file for %s missing on disk: %v", f.Ref.URL, err)
		}
	}
}

func TestRunPlaylistDuplicateTitlesDownloadOnce(t *testing.T) {
	refs := []track.Reference{
		{URL: "sc://1", Index: 1},
		{URL: "sc://2", Index: 2},
	}
	fb := newFakeBackend(refs)
	fb.infos["sc://1"] = track.Info{Title: "Same Song", Duration: 100 * time.Second}
	fb.infos["sc://2"] = track.Info{Title: "Same Song", Duration: 100 * time.Second}

	cfg := testConfig(t)
	cfg.ParallelJobs = 1

	result, err := RunPlaylist(context.Background(), cfg, fb, logger.New(false), Hooks{})
	if err != nil {
		t.Fatalf("RunPlaylist failed: %v", err)
	}

	if len(result.Files) != 2 || len(result.Failed) != 0 {
		t.Fatalf("both references should be satisfied, got %d/%d", len(result.Files), len(result.Failed))
	}
	if n := fb.materializedCount("sc://1") + fb.materializedCount("sc://2"); n != 1 {
		t.Errorf("duplicate title downloaded %d times, want 1", n)
	}
}

func TestRunPlaylistSkipRecovery(t *testing.T) {
	refs := []track.Reference{{URL: "sc://1", Index: 1}}
	fb := newFakeBackend(refs)
	fb.infos["sc://1"] = track.Info{Title: "Alpha Song"}
	fb.materializeErr["sc://1"] = errTest("connection timeout")

	cfg := testConfig(t)
	cfg.SkipRecovery = true

	result, err := RunPlaylist(context.Background(), cfg, fb, logger.New(false), Hooks{})
	if err != nil {
		t.Fatalf("RunPlaylist failed: %v", err)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected 1 failure without recovery, got %d", len(result.Failed))
	}
	// Only the initial attempt ran, no retry strategies.
	if n := fb.materializedCount("sc://1"); n != 1 {
		t.Errorf("primary source hit %d times, want 1", n)
	}
}

func TestRunPlaylistEmpty(t *testing.T) {
	fb := newFakeBackend(nil)
	cfg := testConfig(t)

	if _, err := RunPlaylist(context.Background(), cfg, fb, logger.New(false), Hooks{}); err == nil {
		t.Fatal("empty playlist must be an error")
	}
}

func TestRunSingle(t *testing.T) {
	fb := newFakeBackend(nil)
	fb.infos["sc://solo"] = track.Info{Title: "Solo Song", Duration: 150 * time.Second}

	cfg := testConfig(t)
	file, err := RunSingle(context.Background(), cfg, fb, logger.New(false), "sc://solo")
	if err != nil {
		t.Fatalf("RunSingle failed: %v", err)
	}
	if file.Path != filepath.Join(cfg.OutputDir, "Solo Song.mp3") {
		t.Errorf("unexpected path %s", file.Path)
	}
	if _, err := os.Stat(file.Path); err != nil {
		t.Errorf("file missing on disk: %v", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
