package playlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/source"
)

func newTestWriter(t *testing.T) (*Writer, *library.Ledger, string) {
	t.Helper()
	base := t.TempDir()
	ledger, err := library.OpenLedger(filepath.Join(base, ".downloaded_videos.txt"))
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}
	resolver := library.NewResolver(base, "Unsorted Songs", "mp3")
	writer := NewWriter(ledger, resolver, filepath.Join(base, "playlists"), "/music", zap.NewNop())
	return writer, ledger, base
}

func record(t *testing.T, ledger *library.Ledger, base, videoID, album, title string) {
	t.Helper()
	dir := album
	if dir == "" {
		dir = "Unsorted Songs"
	}
	path := filepath.Join(base, dir, "Artist - "+title+" - "+videoID+".mp3")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	item := &library.Item{VideoID: videoID, Path: path, Album: album, Artist: "Artist", Title: title}
	if err := ledger.Record(item); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
}

func TestWriteHeadersAndPaths(t *testing.T) {
	writer, ledger, base := newTestWriter(t)
	record(t, ledger, base, "aaaaaaaaaa1", "Abbey Road", "Come Together")

	src := source.Source{
		ID:   "PLtest1",
		Name: "My Mix",
		Kind: source.KindPlaylist,
		Entries: []source.Entry{
			{VideoID: "aaaaaaaaaa1", Title: "Come Together"},
		},
	}

	path, err := writer.Write(src)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if filepath.Base(path) != "PLtest1.m3u" {
		t.Errorf("file name = %q, want PLtest1.m3u", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	want := []string{
		`#GONIC-NAME:"My Mix"`,
		`#GONIC-COMMENT:""`,
		`#GONIC-IS-PUBLIC:"false"`,
		"/music/Abbey Road/Artist - Come Together - aaaaaaaaaa1.mp3",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestWritePreservesDeclaredOrder(t *testing.T) {
	writer, ledger, base := newTestWriter(t)
	// Recorded out of declared order on purpose
	record(t, ledger, base, "ccccccccccc", "", "Third")
	record(t, ledger, base, "aaaaaaaaaaa", "", "First")
	record(t, ledger, base, "bbbbbbbbbbb", "", "Second")

	src := source.Source{
		ID:   "PLorder",
		Name: "Ordered",
		Entries: []source.Entry{
			{VideoID: "aaaaaaaaaaa"},
			{VideoID: "bbbbbbbbbbb"},
			{VideoID: "ccccccccccc"},
		},
	}

	path, err := writer.Write(src)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")[3:]

	wantOrder := []string{"First", "Second", "Third"}
	if len(lines) != 3 {
		t.Fatalf("got %d path lines, want 3", len(lines))
	}
	for i, title := range wantOrder {
		if !strings.Contains(lines[i], title) {
			t.Errorf("line %d = %q, want song %q", i, lines[i], title)
		}
	}
}

func TestWriteOmitsUnresolvedEntries(t *testing.T) {
	writer, ledger, base := newTestWriter(t)
	record(t, ledger, base, "aaaaaaaaaaa", "", "Present")

	src := source.Source{
		ID:   "PLgaps",
		Name: "Gappy",
		Entries: []source.Entry{
			{VideoID: "aaaaaaaaaaa"},
			{VideoID: "zzzzzzzzzzz"}, // never downloaded
			{VideoID: "not a valid id"},
		},
	}

	path, err := writer.Write(src)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	if len(lines) != 4 {
		t.Errorf("got %d lines, want 3 headers + 1 path: %q", len(lines), lines)
	}
}

func TestWriteIsByteIdenticalWhenUnchanged(t *testing.T) {
	writer, ledger, base := newTestWriter(t)
	record(t, ledger, base, "aaaaaaaaaaa", "Album", "Song")

	src := source.Source{
		ID:      "PLstable",
		Name:    "Stable",
		Entries: []source.Entry{{VideoID: "aaaaaaaaaaa"}},
	}

	path, err := writer.Write(src)
	if err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	first, _ := os.ReadFile(path)

	if _, err := writer.Write(src); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}
	second, _ := os.ReadFile(path)

	if string(first) != string(second) {
		t.Errorf("second write differs:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestWriteReflectsRelocation(t *testing.T) {
	writer, ledger, base := newTestWriter(t)
	record(t, ledger, base, "aaaaaaaaaaa", "", "Wanderer")

	src := source.Source{
		ID:      "PLmoves",
		Name:    "Moves",
		Entries: []source.Entry{{VideoID: "aaaaaaaaaaa"}},
	}
	path, err := writer.Write(src)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	before, _ := os.ReadFile(path)
	if !strings.Contains(string(before), "/music/Unsorted Songs/") {
		t.Fatalf("index before relocation = %q, want unsorted path", before)
	}

	// Simulate a relocation into an album folder
	record(t, ledger, base, "aaaaaaaaaaa", "New Album", "Wanderer")

	if _, err := writer.Write(src); err != nil {
		t.Fatalf("Write() after relocation error = %v", err)
	}
	after, _ := os.ReadFile(path)
	if !strings.Contains(string(after), "/music/New Album/") {
		t.Errorf("index after relocation = %q, want album path", after)
	}
}

func TestWriteAllContinuesPastFailures(t *testing.T) {
	writer, _, _ := newTestWriter(t)

	sources := []source.Source{
		{ID: "PLone", Name: "One"},
		{ID: "PLtwo", Name: "Two"},
	}
	if err := writer.WriteAll(sources); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	for _, src := range sources {
		if _, err := os.Stat(writer.Path(src)); err != nil {
			t.Errorf("index missing for %s: %v", src.Name, err)
		}
	}
}
