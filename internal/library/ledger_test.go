package library

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	ledger, err := OpenLedger(filepath.Join(dir, ".downloaded_videos.txt"))
	if err != nil {
		t.Fatalf("OpenLedger() error: %v", err)
	}
	return ledger, dir
}

func writeSongFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func TestLedgerRecordAndLookup(t *testing.T) {
	ledger, dir := newTestLedger(t)
	path := writeSongFile(t, dir, "Artist - Song - v1.mp3")

	err := ledger.Record(&Item{
		VideoID: "v1",
		Path:    path,
		Artist:  "Artist",
		Title:   "Song",
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	item := ledger.Lookup("v1")
	if item == nil {
		t.Fatal("Lookup() = nil, want item")
	}
	if item.Status != StatusDownloaded {
		t.Errorf("Status = %v, want %v", item.Status, StatusDownloaded)
	}
	if item.Path != path {
		t.Errorf("Path = %q, want %q", item.Path, path)
	}

	if got := ledger.Lookup("missing"); got != nil {
		t.Errorf("Lookup(missing) = %v, want nil", got)
	}
}

func TestLedgerSelfHealingLookup(t *testing.T) {
	ledger, dir := newTestLedger(t)
	path := writeSongFile(t, dir, "Artist - Song - v1.mp3")

	if err := ledger.Record(&Item{VideoID: "v1", Path: path}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	// Delete the backing file out from under the ledger
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	if got := ledger.Lookup("v1"); got != nil {
		t.Errorf("Lookup() after external delete = %v, want nil", got)
	}

	// The demotion must survive a reload
	reloaded, err := OpenLedger(ledger.Path())
	if err != nil {
		t.Fatalf("OpenLedger() error: %v", err)
	}
	if got := reloaded.Lookup("v1"); got != nil {
		t.Errorf("Lookup() after reload = %v, want nil", got)
	}

	items := reloaded.Items()
	if len(items) != 1 {
		t.Fatalf("Items() len = %d, want 1", len(items))
	}
	if items[0].Status != StatusPending {
		t.Errorf("demoted status = %v, want %v", items[0].Status, StatusPending)
	}
}

func TestLedgerPersistenceAcrossReload(t *testing.T) {
	ledger, dir := newTestLedger(t)
	pathA := writeSongFile(t, dir, "Album/A - S1 - v1.mp3")
	pathB := writeSongFile(t, dir, "Unsorted Songs/B - S2 - v2.mp3")

	if err := ledger.Record(&Item{VideoID: "v1", Path: pathA, Album: "Album", TrackIndex: 1}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := ledger.Record(&Item{VideoID: "v2", Path: pathB}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := ledger.MarkFailed("v3"); err != nil {
		t.Fatalf("MarkFailed() error: %v", err)
	}

	reloaded, err := OpenLedger(ledger.Path())
	if err != nil {
		t.Fatalf("OpenLedger() error: %v", err)
	}

	if reloaded.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reloaded.Len())
	}

	item := reloaded.Lookup("v1")
	if item == nil {
		t.Fatal("Lookup(v1) = nil after reload")
	}
	if item.Album != "Album" || item.TrackIndex != 1 {
		t.Errorf("reloaded item = %+v, want album=Album track=1", item)
	}

	if got := reloaded.Lookup("v3"); got != nil {
		t.Errorf("Lookup(v3) = %v, want nil for failed record", got)
	}
}

func TestLedgerRemove(t *testing.T) {
	ledger, dir := newTestLedger(t)
	path := writeSongFile(t, dir, "A - S - v1.mp3")

	if err := ledger.Record(&Item{VideoID: "v1", Path: path}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := ledger.Remove("v1"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if ledger.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ledger.Len())
	}

	// Removing an unknown id is a no-op
	if err := ledger.Remove("v1"); err != nil {
		t.Errorf("Remove() of missing id error: %v", err)
	}
}

func TestLedgerAtMostOneItemPerVideoID(t *testing.T) {
	ledger, dir := newTestLedger(t)
	pathA := writeSongFile(t, dir, "Unsorted Songs/A - S - v1.mp3")
	pathB := writeSongFile(t, dir, "Album/A - S - v1.mp3")

	if err := ledger.Record(&Item{VideoID: "v1", Path: pathA}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := ledger.Record(&Item{VideoID: "v1", Path: pathB, Album: "Album"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	if ledger.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ledger.Len())
	}
	item := ledger.Lookup("v1")
	if item == nil || item.Path != pathB {
		t.Errorf("Lookup() = %+v, want path %q", item, pathB)
	}
}

func TestOpenLedgerLegacyFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".downloaded_videos.txt")
	if err := os.WriteFile(path, []byte("v1\nv2\nv3\n"), 0644); err != nil {
		t.Fatalf("failed to write legacy file: %v", err)
	}

	_, err := OpenLedger(path)
	if err != ErrLegacyFormat {
		t.Errorf("OpenLedger() error = %v, want ErrLegacyFormat", err)
	}
}

func TestOpenLedgerCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".downloaded_videos.txt")
	if err := os.WriteFile(path, []byte("{\"video_id\":\"v1\"}\n{broken\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := OpenLedger(path); err == nil {
		t.Error("OpenLedger() expected error for corrupt record")
	}
}

func TestLedgerNoTempFileLeftBehind(t *testing.T) {
	ledger, dir := newTestLedger(t)
	path := writeSongFile(t, dir, "A - S - v1.mp3")

	if err := ledger.Record(&Item{VideoID: "v1", Path: path}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	if _, err := os.Stat(ledger.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after persist")
	}
}

func TestFileChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("audio data"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	first, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("FileChecksum() error: %v", err)
	}
	second, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("FileChecksum() error: %v", err)
	}
	if first != second {
		t.Errorf("checksum not stable: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(first))
	}

	if err := os.WriteFile(path, []byte("different"), 0644); err != nil {
		t.Fatalf("failed to rewrite file: %v", err)
	}
	changed, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("FileChecksum() error: %v", err)
	}
	if changed == first {
		t.Error("checksum unchanged after file modification")
	}

	if _, err := FileChecksum(filepath.Join(dir, "missing.mp3")); err == nil {
		t.Error("FileChecksum() expected error for missing file")
	}
}
