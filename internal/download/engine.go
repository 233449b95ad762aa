package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/errors"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/metadata"
	"github.com/ytshelf/ytshelf-go/internal/monitoring"
	"github.com/ytshelf/ytshelf-go/internal/source"
	"github.com/ytshelf/ytshelf-go/internal/ytdlp"
)

// stagingDirName is the work directory for in-flight downloads, kept
// under the base folder so the final move is a same-filesystem rename.
const stagingDirName = ".staging"

// Downloader fetches the audio for one video into a staging directory
// and returns the path of the produced file.
type Downloader interface {
	Download(ctx context.Context, videoID string, opts ytdlp.DownloadOptions) (string, error)
}

// ArtworkSource retrieves cover image data for a video
type ArtworkSource interface {
	Fetch(ctx context.Context, videoID, thumbnailURL string) ([]byte, string, error)
}

// Engine acquires songs: it drives the external downloader with retry
// and timeout enforcement, embeds tags and cover art, moves the file to
// its canonical path and records it in the ledger. Acquire is
// idempotent per video id and safe for concurrent use.
type Engine struct {
	cfg        *config.Config
	ledger     *library.Ledger
	resolver   *library.Resolver
	downloader Downloader
	artwork    ArtworkSource
	tagger     *metadata.Manager
	locks      *keyedMutex
	logger     *zap.Logger
}

// NewEngine creates an acquisition engine. artworkSource may be nil to
// disable cover embedding.
func NewEngine(
	cfg *config.Config,
	ledger *library.Ledger,
	resolver *library.Resolver,
	downloader Downloader,
	artworkSource ArtworkSource,
	tagger *metadata.Manager,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		ledger:     ledger,
		resolver:   resolver,
		downloader: downloader,
		artwork:    artworkSource,
		tagger:     tagger,
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// Acquire downloads one song into the given album (empty string means
// unsorted). A song already recorded as downloaded is returned as-is
// without touching the network; transient failures are retried up to
// the configured attempt count.
func (e *Engine) Acquire(ctx context.Context, entry source.Entry, targetAlbum string) (*library.Item, error) {
	videoID, err := library.ResolveIdentity(entry.VideoID)
	if err != nil {
		return nil, err
	}

	e.locks.Lock(videoID)
	defer e.locks.Unlock(videoID)

	// Idempotence: the ledger is the sole source of "already downloaded"
	if item := e.ledger.Lookup(videoID); item != nil {
		return item, nil
	}

	format := e.cfg.Downloader.AudioFormat
	monitoring.RecordDownloadStart(format)
	start := time.Now()

	item, err := e.acquire(ctx, videoID, entry, targetAlbum)
	if err != nil {
		monitoring.RecordDownloadFailed(format, string(errors.GetErrorType(err)))
		if markErr := e.ledger.MarkFailed(videoID); markErr != nil {
			e.logger.Warn("failed to record acquisition failure",
				zap.String("video_id", videoID), zap.Error(markErr))
		}
		return nil, err
	}

	monitoring.RecordDownloadComplete(format, time.Since(start))
	monitoring.UpdateLedgerRecords(e.ledger.Len())
	return item, nil
}

// acquire performs the download, tag, move, record sequence
func (e *Engine) acquire(ctx context.Context, videoID string, entry source.Entry, targetAlbum string) (*library.Item, error) {
	stagingDir, err := e.makeStagingDir(videoID)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stagingDir)

	var audioPath string
	retryCfg := errors.RetryConfig{
		MaxAttempts:    e.cfg.Downloader.MaxRetries,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		ShouldRetry:    errors.IsRetryable,
		OnAttempt: func(attempt int) {
			if attempt > 1 {
				monitoring.RecordRetry()
				e.logger.Info("retrying download",
					zap.String("video_id", videoID),
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", e.cfg.Downloader.MaxRetries))
			}
		},
	}

	err = errors.Retry(ctx, retryCfg, func() error {
		path, dlErr := e.downloader.Download(ctx, videoID, ytdlp.DownloadOptions{
			TargetDir:   stagingDir,
			AudioFormat: e.cfg.Downloader.AudioFormat,
			Timeout:     e.cfg.DownloadTimeout(),
		})
		if dlErr != nil {
			return dlErr
		}
		audioPath = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	albumTag := targetAlbum
	if albumTag == "" {
		albumTag = e.cfg.Library.UnsortedFolderName
	}

	meta := &metadata.TrackMetadata{
		Title:       entry.Title,
		Artist:      entry.Uploader,
		Album:       albumTag,
		TrackNumber: entry.TrackIndex,
	}

	if e.artwork != nil && e.cfg.Library.EmbedArtwork {
		data, mime, artErr := e.artwork.Fetch(ctx, videoID, entry.ThumbnailURL)
		if artErr != nil {
			// Cover art is best effort, the song is still usable without it
			e.logger.Warn("failed to fetch cover art",
				zap.String("video_id", videoID), zap.Error(artErr))
		} else {
			meta.ArtworkData = data
			meta.ArtworkMIME = mime
		}
	}

	if err := e.tagger.ApplyMetadata(audioPath, meta); err != nil {
		return nil, errors.NewToolFailureError(
			fmt.Sprintf("failed to tag %s", videoID), err)
	}

	finalPath := e.resolver.SongPath(targetAlbum, entry.Uploader, entry.Title, videoID)
	if err := errors.RetryOnce(ctx, time.Second, func() error {
		return library.MoveFile(audioPath, finalPath)
	}); err != nil {
		return nil, errors.NewFilesystemError(
			fmt.Sprintf("failed to move %s into the library", videoID), err)
	}

	checksum, err := library.FileChecksum(finalPath)
	if err != nil {
		e.logger.Warn("failed to checksum file",
			zap.String("path", finalPath), zap.Error(err))
	}

	item := &library.Item{
		VideoID:    videoID,
		Path:       finalPath,
		Album:      targetAlbum,
		Artist:     entry.Uploader,
		Title:      entry.Title,
		TrackIndex: entry.TrackIndex,
		Checksum:   checksum,
	}
	if err := e.ledger.Record(item); err != nil {
		return nil, errors.NewFilesystemError(
			fmt.Sprintf("failed to record %s in the ledger", videoID), err)
	}

	e.logger.Info("acquired song",
		zap.String("video_id", videoID),
		zap.String("album", albumTag),
		zap.String("path", finalPath))

	return e.ledger.Lookup(videoID), nil
}

// makeStagingDir creates a per-video work directory under the base folder
func (e *Engine) makeStagingDir(videoID string) (string, error) {
	dir := filepath.Join(e.cfg.Library.BaseFolder, stagingDirName, videoID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewFilesystemError("failed to create staging directory", err)
	}
	return dir, nil
}
