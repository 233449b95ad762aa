package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/ytdlp"
)

type fakeMetadataClient struct {
	title    string
	titleErr error
	entries  []ytdlp.RawEntry
	listErr  error
}

func (f *fakeMetadataClient) PlaylistTitle(ctx context.Context, url string, timeout time.Duration) (string, error) {
	return f.title, f.titleErr
}

func (f *fakeMetadataClient) PlaylistEntries(ctx context.Context, url string, timeout time.Duration) ([]ytdlp.RawEntry, error) {
	return f.entries, f.listErr
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Kind
	}{
		{
			name:  "album URL path",
			input: "https://music.youtube.com/album/MPREb_x",
			want:  KindAlbum,
		},
		{
			name:  "album playlist id",
			input: "https://music.youtube.com/playlist?list=OLAK5uy_abc",
			want:  KindAlbum,
		},
		{
			name:  "bare album id",
			input: "OLAK5uy_abc",
			want:  KindAlbum,
		},
		{
			name:  "plain playlist",
			input: "https://www.youtube.com/playlist?list=PLabc",
			want:  KindPlaylist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKind(tt.input); got != tt.want {
				t.Errorf("DetectKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFetcherFetchAlbum(t *testing.T) {
	client := &fakeMetadataClient{
		title: "Album - Abbey Road",
		entries: []ytdlp.RawEntry{
			{Index: 1, Title: "Come Together", Uploader: "The Beatles", ID: "v1"},
			{Index: 2, Title: "Something", Uploader: "The Beatles", ID: "v2"},
		},
	}
	f := NewFetcher(client, time.Minute, nil)

	src, err := f.Fetch(context.Background(), config.SourceConfig{
		URL: "https://music.youtube.com/playlist?list=OLAK5uy_abc",
	})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if src.Kind != KindAlbum {
		t.Errorf("Kind = %v, want %v", src.Kind, KindAlbum)
	}
	if src.ID != "OLAK5uy_abc" {
		t.Errorf("ID = %q, want OLAK5uy_abc", src.ID)
	}
	if src.Name != "Abbey Road" {
		t.Errorf("Name = %q, want Abbey Road (prefix stripped)", src.Name)
	}
	if len(src.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(src.Entries))
	}
	if src.Entries[0].TrackIndex != 1 || src.Entries[1].TrackIndex != 2 {
		t.Errorf("track indexes = %d,%d, want 1,2", src.Entries[0].TrackIndex, src.Entries[1].TrackIndex)
	}
	if src.Entries[0].ThumbnailURL == "" {
		t.Error("ThumbnailURL not populated")
	}
}

func TestFetcherFetchPlaylistDropsTrackIndex(t *testing.T) {
	client := &fakeMetadataClient{
		title: "Driving Songs",
		entries: []ytdlp.RawEntry{
			{Index: 1, Title: "Song A", Uploader: "A", ID: "v1"},
		},
	}
	f := NewFetcher(client, time.Minute, nil)

	src, err := f.Fetch(context.Background(), config.SourceConfig{
		URL: "https://www.youtube.com/playlist?list=PLabc",
	})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if src.Kind != KindPlaylist {
		t.Errorf("Kind = %v, want %v", src.Kind, KindPlaylist)
	}
	if src.Entries[0].TrackIndex != 0 {
		t.Errorf("TrackIndex = %d, want 0 for playlist entries", src.Entries[0].TrackIndex)
	}
}

func TestFetcherConfiguredNameWins(t *testing.T) {
	client := &fakeMetadataClient{
		titleErr: fmt.Errorf("should not be called"),
		entries:  []ytdlp.RawEntry{{Index: 1, Title: "S", Uploader: "A", ID: "v1"}},
	}
	f := NewFetcher(client, time.Minute, nil)

	src, err := f.Fetch(context.Background(), config.SourceConfig{
		URL:  "https://www.youtube.com/playlist?list=PLabc",
		Name: "My: Mix?",
	})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if src.Name != "My Mix" {
		t.Errorf("Name = %q, want sanitized configured name", src.Name)
	}
}

func TestFetcherTitleError(t *testing.T) {
	client := &fakeMetadataClient{titleErr: fmt.Errorf("timed out")}
	f := NewFetcher(client, time.Minute, nil)

	if _, err := f.Fetch(context.Background(), config.SourceConfig{URL: "PLabc"}); err == nil {
		t.Error("Fetch() expected error when title fetch fails")
	}
}
