package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/errors"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/metadata"
	"github.com/ytshelf/ytshelf-go/internal/source"
	"github.com/ytshelf/ytshelf-go/internal/ytdlp"
)

// fakeDownloader writes a minimal mp3 into the staging directory, or
// fails with a scripted error.
type fakeDownloader struct {
	mu       sync.Mutex
	calls    int
	err      error
	failOnce bool
	onCall   func(call int)
}

func (d *fakeDownloader) Download(ctx context.Context, videoID string, opts ytdlp.DownloadOptions) (string, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()

	if d.onCall != nil {
		d.onCall(call)
	}
	if d.err != nil {
		if !d.failOnce || call == 1 {
			return "", d.err
		}
	}

	path := filepath.Join(opts.TargetDir, "Artist - Song - "+videoID+"."+opts.AudioFormat)
	if err := os.WriteFile(path, []byte("\xff\xfbaudio-frames"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (d *fakeDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Library.BaseFolder = t.TempDir()
	cfg.Library.UnsortedFolderName = "Unsorted Songs"
	cfg.Library.RecordFileName = ".downloaded_videos.txt"
	cfg.Library.EmbedArtwork = false
	cfg.Downloader.AudioFormat = "mp3"
	cfg.Downloader.TimeoutDownload = 5
	cfg.Downloader.MaxRetries = 3
	cfg.Sync.ParallelLimit = 2
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, dl Downloader) (*Engine, *library.Ledger) {
	t.Helper()
	ledger, err := library.OpenLedger(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}
	resolver := library.NewResolver(cfg.Library.BaseFolder, cfg.Library.UnsortedFolderName, cfg.Downloader.AudioFormat)
	tagger := metadata.NewManager(&metadata.Config{EmbedArtwork: false})
	return NewEngine(cfg, ledger, resolver, dl, nil, tagger, zap.NewNop()), ledger
}

func TestAcquireDownloadsAndRecords(t *testing.T) {
	cfg := newTestConfig(t)
	dl := &fakeDownloader{}
	engine, ledger := newTestEngine(t, cfg, dl)

	entry := source.Entry{VideoID: "video00001x", Title: "Song", Uploader: "Artist", TrackIndex: 2}
	item, err := engine.Acquire(context.Background(), entry, "Abbey Road")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	wantPath := filepath.Join(cfg.Library.BaseFolder, "Abbey Road", "Artist - Song - video00001x.mp3")
	if item.Path != wantPath {
		t.Errorf("item.Path = %q, want %q", item.Path, wantPath)
	}
	if item.Status != library.StatusDownloaded {
		t.Errorf("item.Status = %q, want %q", item.Status, library.StatusDownloaded)
	}
	if item.Album != "Abbey Road" {
		t.Errorf("item.Album = %q, want %q", item.Album, "Abbey Road")
	}
	if item.Checksum == "" {
		t.Error("item.Checksum is empty")
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("final file missing: %v", err)
	}
	if got := ledger.Lookup("video00001x"); got == nil {
		t.Error("ledger has no record for acquired song")
	}

	// Staging directory is cleaned up
	staging := filepath.Join(cfg.Library.BaseFolder, stagingDirName, "video00001x")
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("staging dir still exists: %v", err)
	}
}

func TestAcquireUnsortedTarget(t *testing.T) {
	cfg := newTestConfig(t)
	dl := &fakeDownloader{}
	engine, _ := newTestEngine(t, cfg, dl)

	entry := source.Entry{VideoID: "video00002x", Title: "Loose Song", Uploader: "Someone"}
	item, err := engine.Acquire(context.Background(), entry, "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	wantDir := filepath.Join(cfg.Library.BaseFolder, "Unsorted Songs")
	if filepath.Dir(item.Path) != wantDir {
		t.Errorf("item.Path dir = %q, want %q", filepath.Dir(item.Path), wantDir)
	}
	if item.Album != "" {
		t.Errorf("item.Album = %q, want empty for unsorted", item.Album)
	}
}

func TestAcquireIdempotent(t *testing.T) {
	cfg := newTestConfig(t)
	dl := &fakeDownloader{}
	engine, _ := newTestEngine(t, cfg, dl)

	entry := source.Entry{VideoID: "video00003x", Title: "Song", Uploader: "Artist"}
	first, err := engine.Acquire(context.Background(), entry, "Album")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	second, err := engine.Acquire(context.Background(), entry, "Album")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	if dl.callCount() != 1 {
		t.Errorf("downloader called %d times, want 1", dl.callCount())
	}
	if second.Path != first.Path {
		t.Errorf("second Path = %q, want %q", second.Path, first.Path)
	}
}

func TestAcquireNotFoundIsNotRetried(t *testing.T) {
	cfg := newTestConfig(t)
	dl := &fakeDownloader{err: errors.NewNotFoundError("video unavailable")}
	engine, ledger := newTestEngine(t, cfg, dl)

	entry := source.Entry{VideoID: "video00004x", Title: "Gone", Uploader: "Artist"}
	_, err := engine.Acquire(context.Background(), entry, "")
	if err == nil {
		t.Fatal("Acquire() error = nil, want not found")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("error type = %v, want not_found", errors.GetErrorType(err))
	}
	if dl.callCount() != 1 {
		t.Errorf("downloader called %d times, want 1", dl.callCount())
	}

	if item := ledger.Lookup("video00004x"); item != nil {
		t.Errorf("failed song is visible via Lookup: %+v", item)
	}
}

func TestAcquireCancelledDuringBackoff(t *testing.T) {
	cfg := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	dl := &fakeDownloader{err: errors.NewTimeoutError("download timed out", nil)}
	dl.onCall = func(call int) {
		// Cancel while the retry loop waits out the first backoff
		cancel()
	}
	engine, _ := newTestEngine(t, cfg, dl)

	entry := source.Entry{VideoID: "video00005x", Title: "Slow", Uploader: "Artist"}
	done := make(chan error, 1)
	go func() {
		_, err := engine.Acquire(ctx, entry, "")
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Acquire() error = nil, want cancellation")
		}
		if dl.callCount() != 1 {
			t.Errorf("downloader called %d times, want 1", dl.callCount())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}

func TestAcquireInvalidEntry(t *testing.T) {
	cfg := newTestConfig(t)
	dl := &fakeDownloader{}
	engine, _ := newTestEngine(t, cfg, dl)

	_, err := engine.Acquire(context.Background(), source.Entry{VideoID: ""}, "")
	if err == nil {
		t.Fatal("Acquire() error = nil, want invalid entry")
	}
	if errors.GetErrorType(err) != errors.ErrTypeInvalidEntry {
		t.Errorf("error type = %v, want invalid_entry", errors.GetErrorType(err))
	}
	if dl.callCount() != 0 {
		t.Errorf("downloader called %d times, want 0", dl.callCount())
	}
}

func TestAcquireConcurrentSameVideo(t *testing.T) {
	cfg := newTestConfig(t)
	dl := &fakeDownloader{}
	engine, _ := newTestEngine(t, cfg, dl)

	entry := source.Entry{VideoID: "video00006x", Title: "Song", Uploader: "Artist"}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Acquire(context.Background(), entry, "Album"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("%d concurrent acquisitions failed", failures.Load())
	}
	if dl.callCount() != 1 {
		t.Errorf("downloader called %d times, want 1", dl.callCount())
	}
}
