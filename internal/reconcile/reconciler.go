package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/download"
	"github.com/ytshelf/ytshelf-go/internal/errors"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/metadata"
	"github.com/ytshelf/ytshelf-go/internal/monitoring"
	"github.com/ytshelf/ytshelf-go/internal/source"
)

// ItemError describes one entry that could not be reconciled
type ItemError struct {
	SourceName string `json:"source_name"`
	VideoID    string `json:"video_id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

// Result aggregates the counters of one reconciliation pass
type Result struct {
	Processed  int         `json:"processed"`
	Downloaded int         `json:"downloaded"`
	Relocated  int         `json:"relocated"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	Errors     []ItemError `json:"errors,omitempty"`
}

// Merge adds the counters of other into r
func (r *Result) Merge(other Result) {
	r.Processed += other.Processed
	r.Downloaded += other.Downloaded
	r.Relocated += other.Relocated
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// Reconciler drives the two reconciliation passes over the configured
// sources. Albums run first and own placement: an album source claims
// its songs into the album folder, relocating files previously parked
// in the unsorted folder. Playlists run second and only fill gaps, new
// songs land unsorted.
//
// A Reconciler carries per-run claim state; create a fresh one for each
// run.
type Reconciler struct {
	cfg      *config.Config
	ledger   *library.Ledger
	resolver *library.Resolver
	pool     *download.Pool
	tagger   *metadata.Manager
	logger   *zap.Logger

	// OnProgress, when set, is called once per finished entry of a
	// source with 1-based position and the source's entry count.
	OnProgress func(sourceName, songTitle string, current, total int)

	// claims maps video id to the album that placed it this run.
	// First source in declared order wins; playlists claim "".
	claims map[string]string
}

// NewReconciler creates a reconciler for one run
func NewReconciler(
	cfg *config.Config,
	ledger *library.Ledger,
	resolver *library.Resolver,
	pool *download.Pool,
	tagger *metadata.Manager,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:      cfg,
		ledger:   ledger,
		resolver: resolver,
		pool:     pool,
		tagger:   tagger,
		logger:   logger,
		claims:   make(map[string]string),
	}
}

// ReconcileAlbums runs the album pass over the given sources, ignoring
// non-album ones. Filesystem errors abort the pass; everything else is
// recorded per entry and the pass continues.
func (r *Reconciler) ReconcileAlbums(ctx context.Context, sources []source.Source) (Result, error) {
	var result Result

	for _, src := range sources {
		if src.Kind != source.KindAlbum {
			continue
		}
		if err := r.reconcileAlbumSource(ctx, src, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (r *Reconciler) reconcileAlbumSource(ctx context.Context, src source.Source, result *Result) error {
	album := src.Name
	total := len(src.Entries)
	completed := 0

	var jobs []download.Job

	for _, entry := range src.Entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("album pass cancelled: %w", err)
		}

		result.Processed++
		monitoring.RecordEntryProcessed("albums")

		videoID, err := library.ResolveIdentity(entry.VideoID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, newItemError(src.Name, entry, err))
			r.logger.Warn("skipping unresolvable entry",
				zap.String("source", src.Name), zap.String("raw_id", entry.VideoID))
			r.notifyDone(src.Name, entry.Title, &completed, total)
			continue
		}
		entry.VideoID = videoID

		// A song two album sources both list belongs to whichever
		// source comes first in the configuration
		if _, claimed := r.claims[videoID]; claimed {
			result.Skipped++
			r.notifyDone(src.Name, entry.Title, &completed, total)
			continue
		}
		r.claims[videoID] = album

		item := r.ledger.Lookup(videoID)
		if item == nil {
			jobs = append(jobs, download.Job{SourceName: src.Name, Entry: entry, TargetAlbum: album})
			continue
		}

		wantPath := r.resolver.SongPath(album, item.Artist, item.Title, videoID)
		if item.Path == wantPath {
			if err := r.fixTrackIndex(item, entry.TrackIndex); err != nil {
				return err
			}
			result.Skipped++
			r.notifyDone(src.Name, entry.Title, &completed, total)
			continue
		}

		if err := r.relocate(ctx, item, album, entry.TrackIndex, wantPath); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, newItemError(src.Name, entry, err))
			if errors.IsFilesystem(err) {
				return err
			}
			r.notifyDone(src.Name, entry.Title, &completed, total)
			continue
		}
		result.Relocated++
		r.notifyDone(src.Name, entry.Title, &completed, total)
	}

	return r.acquireJobs(ctx, src, jobs, result, &completed, total)
}

// ReconcilePlaylists runs the playlist pass over the given sources,
// ignoring album ones. A song already anywhere in the library is left
// where it is; missing songs are acquired into the unsorted folder.
func (r *Reconciler) ReconcilePlaylists(ctx context.Context, sources []source.Source) (Result, error) {
	var result Result

	for _, src := range sources {
		if src.Kind != source.KindPlaylist {
			continue
		}
		if err := r.reconcilePlaylistSource(ctx, src, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (r *Reconciler) reconcilePlaylistSource(ctx context.Context, src source.Source, result *Result) error {
	total := len(src.Entries)
	completed := 0

	var jobs []download.Job

	for _, entry := range src.Entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("playlist pass cancelled: %w", err)
		}

		result.Processed++
		monitoring.RecordEntryProcessed("playlists")

		videoID, err := library.ResolveIdentity(entry.VideoID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, newItemError(src.Name, entry, err))
			r.logger.Warn("skipping unresolvable entry",
				zap.String("source", src.Name), zap.String("raw_id", entry.VideoID))
			r.notifyDone(src.Name, entry.Title, &completed, total)
			continue
		}
		entry.VideoID = videoID

		// Placement is settled already: either the ledger has the song
		// (any folder counts) or an earlier source scheduled it this run
		if r.ledger.Lookup(videoID) != nil {
			result.Skipped++
			r.notifyDone(src.Name, entry.Title, &completed, total)
			continue
		}
		if _, claimed := r.claims[videoID]; claimed {
			result.Skipped++
			r.notifyDone(src.Name, entry.Title, &completed, total)
			continue
		}
		r.claims[videoID] = ""

		jobs = append(jobs, download.Job{SourceName: src.Name, Entry: entry, TargetAlbum: ""})
	}

	return r.acquireJobs(ctx, src, jobs, result, &completed, total)
}

// acquireJobs runs the collected downloads for one source on the pool
// and folds the outcomes into the pass result.
func (r *Reconciler) acquireJobs(ctx context.Context, src source.Source, jobs []download.Job, result *Result, completed *int, total int) error {
	if len(jobs) == 0 {
		return nil
	}

	var fsErr error
	r.pool.Process(ctx, jobs, func(res download.JobResult) {
		if res.Err != nil {
			result.Failed++
			result.Errors = append(result.Errors, newItemError(src.Name, res.Job.Entry, res.Err))
			if fsErr == nil && errors.IsFilesystem(res.Err) {
				fsErr = res.Err
			}
		} else {
			result.Downloaded++
		}
		r.notifyDone(src.Name, res.Job.Entry.Title, completed, total)
	})
	if fsErr != nil {
		return fsErr
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reconciliation cancelled: %w", err)
	}
	return nil
}

// relocate moves a downloaded song into its album folder and rewrites
// its tags and ledger record to match.
func (r *Reconciler) relocate(ctx context.Context, item *library.Item, album string, trackIndex int, wantPath string) error {
	oldPath := item.Path
	if err := errors.RetryOnce(ctx, time.Second, func() error {
		return library.MoveFile(oldPath, wantPath)
	}); err != nil {
		return errors.NewFilesystemError(
			fmt.Sprintf("failed to relocate %s", item.VideoID), err)
	}

	if err := r.tagger.RetagAlbum(wantPath, album, trackIndex); err != nil {
		// The file is in place, a stale album tag is not worth failing over
		r.logger.Warn("failed to retag relocated song",
			zap.String("video_id", item.VideoID), zap.Error(err))
	}

	updated := item.Clone()
	updated.Path = wantPath
	updated.Album = album
	updated.TrackIndex = trackIndex
	if err := r.ledger.Record(updated); err != nil {
		return errors.NewFilesystemError(
			fmt.Sprintf("failed to update ledger for %s", item.VideoID), err)
	}

	if err := library.RemoveDirIfEmpty(filepath.Dir(oldPath)); err != nil {
		r.logger.Warn("failed to prune empty folder",
			zap.String("dir", filepath.Dir(oldPath)), zap.Error(err))
	}

	monitoring.RecordRelocation()
	r.logger.Info("relocated song",
		zap.String("video_id", item.VideoID),
		zap.String("from", oldPath),
		zap.String("to", wantPath))
	return nil
}

// fixTrackIndex repairs a track number that drifted from the album's
// declared order without moving the file.
func (r *Reconciler) fixTrackIndex(item *library.Item, trackIndex int) error {
	if trackIndex <= 0 || item.TrackIndex == trackIndex {
		return nil
	}

	if err := r.tagger.RetagAlbum(item.Path, item.Album, trackIndex); err != nil {
		r.logger.Warn("failed to update track number",
			zap.String("video_id", item.VideoID), zap.Error(err))
		return nil
	}

	updated := item.Clone()
	updated.TrackIndex = trackIndex
	if err := r.ledger.Record(updated); err != nil {
		return errors.NewFilesystemError(
			fmt.Sprintf("failed to update ledger for %s", item.VideoID), err)
	}
	return nil
}

// notifyDone marks one more entry of the source as handled and reports it
func (r *Reconciler) notifyDone(sourceName, songTitle string, completed *int, total int) {
	*completed++
	if r.OnProgress != nil {
		r.OnProgress(sourceName, songTitle, *completed, total)
	}
}

func newItemError(sourceName string, entry source.Entry, err error) ItemError {
	return ItemError{
		SourceName: sourceName,
		VideoID:    entry.VideoID,
		Title:      entry.Title,
		Type:       string(errors.GetErrorType(err)),
		Message:    err.Error(),
	}
}
