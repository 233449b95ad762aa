package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/ytdlp"
)

// thumbnailURLFormat is the predictable thumbnail location for a video id
const thumbnailURLFormat = "https://i.ytimg.com/vi/%s/hqdefault.jpg"

// MetadataClient lists playlist metadata without downloading media
type MetadataClient interface {
	PlaylistTitle(ctx context.Context, playlistURL string, timeout time.Duration) (string, error)
	PlaylistEntries(ctx context.Context, playlistURL string, timeout time.Duration) ([]ytdlp.RawEntry, error)
}

// Fetcher resolves configured source references into sources with their
// entry lists.
type Fetcher struct {
	client  MetadataClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewFetcher creates a fetcher. timeout bounds each metadata invocation.
func NewFetcher(client MetadataClient, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch resolves one configured source: kind detection, display name and
// the entry list in declared order. A name set in the configuration
// overrides the fetched playlist title.
func (f *Fetcher) Fetch(ctx context.Context, cfg config.SourceConfig) (*Source, error) {
	id := library.ExtractPlaylistID(cfg.URL)
	kind := DetectKind(cfg.URL)

	name := cfg.Name
	if name == "" {
		title, err := f.client.PlaylistTitle(ctx, cfg.URL, f.timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch title for source %s: %w", id, err)
		}
		name = library.CleanSourceName(title)
	} else {
		name = library.SanitizeName(name)
	}
	if name == "" {
		name = id
	}

	raw, err := f.client.PlaylistEntries(ctx, cfg.URL, f.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for source %s: %w", id, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		entry := Entry{
			VideoID:      r.ID,
			Title:        r.Title,
			Uploader:     r.Uploader,
			ThumbnailURL: fmt.Sprintf(thumbnailURLFormat, r.ID),
		}
		if kind == KindAlbum {
			entry.TrackIndex = r.Index
		}
		entries = append(entries, entry)
	}

	f.logger.Info("fetched source",
		zap.String("source", name),
		zap.String("kind", string(kind)),
		zap.Int("entries", len(entries)))

	return &Source{
		ID:      id,
		URL:     cfg.URL,
		Name:    name,
		Kind:    kind,
		Entries: entries,
	}, nil
}
