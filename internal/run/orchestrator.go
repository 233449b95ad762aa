package run

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/artwork"
	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/download"
	"github.com/ytshelf/ytshelf-go/internal/errors"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/metadata"
	"github.com/ytshelf/ytshelf-go/internal/monitoring"
	"github.com/ytshelf/ytshelf-go/internal/playlist"
	"github.com/ytshelf/ytshelf-go/internal/progress"
	"github.com/ytshelf/ytshelf-go/internal/reconcile"
	"github.com/ytshelf/ytshelf-go/internal/source"
	"github.com/ytshelf/ytshelf-go/internal/store"
)

// Download modes, aliased from config for callers of this package
const (
	ModeBoth          = config.ModeBoth
	ModeAlbumsOnly    = config.ModeAlbumsOnly
	ModePlaylistsOnly = config.ModePlaylistsOnly
)

// Summary is the persisted outcome of one run
type Summary struct {
	ID                 string                `json:"id"`
	Status             Status                `json:"status"`
	TriggerType        string                `json:"trigger_type"`
	StartedAt          time.Time             `json:"started_at"`
	CompletedAt        time.Time             `json:"completed_at"`
	PlaylistsProcessed int                   `json:"playlists_processed"`
	SongsDownloaded    int                   `json:"songs_downloaded"`
	SongsRelocated     int                   `json:"songs_relocated"`
	SongsSkipped       int                   `json:"songs_skipped"`
	SongsFailed        int                   `json:"songs_failed"`
	Errors             []reconcile.ItemError `json:"errors,omitempty"`
}

// SourceFetcher resolves a configured source into its entries
type SourceFetcher interface {
	Fetch(ctx context.Context, cfg config.SourceConfig) (*source.Source, error)
}

// Orchestrator sequences a full reconciliation run: fetch sources, run
// the album and playlist passes per the configured mode, write album
// covers and playlist indexes, persist the summary. One run at a time.
type Orchestrator struct {
	cfg      *config.Config
	ledger   *library.Ledger
	resolver *library.Resolver
	fetcher  SourceFetcher
	acquirer download.Acquirer
	tagger   *metadata.Manager
	artwork  download.ArtworkSource
	writer   *playlist.Writer
	broker   *progress.Broker
	runs     *store.RunStore
	logger   *zap.Logger

	state *State

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewOrchestrator wires a run orchestrator. runs and artworkSource may
// be nil to disable history persistence and album covers.
func NewOrchestrator(
	cfg *config.Config,
	ledger *library.Ledger,
	resolver *library.Resolver,
	fetcher SourceFetcher,
	acquirer download.Acquirer,
	tagger *metadata.Manager,
	artworkSource download.ArtworkSource,
	writer *playlist.Writer,
	broker *progress.Broker,
	runs *store.RunStore,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		ledger:   ledger,
		resolver: resolver,
		fetcher:  fetcher,
		acquirer: acquirer,
		tagger:   tagger,
		artwork:  artworkSource,
		writer:   writer,
		broker:   broker,
		runs:     runs,
		logger:   logger,
		state:    NewState(),
	}
}

// State returns the orchestrator's run state
func (o *Orchestrator) State() *State {
	return o.state
}

// Stop requests cooperative cancellation of the run in flight. In-
// flight acquisitions finish; no new entries start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Run executes one full reconciliation run and returns its summary.
// A second Run while one is in flight fails with AlreadyRunning.
func (o *Orchestrator) Run(ctx context.Context, trigger string) (*Summary, error) {
	if err := o.state.Begin(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
	}()

	summary := &Summary{
		ID:          uuid.NewString(),
		Status:      StatusRunning,
		TriggerType: trigger,
		StartedAt:   time.Now().UTC(),
	}

	monitoring.RecordRunStart()
	o.broker.PublishStatus(true)
	o.logger.Info("run started",
		zap.String("run_id", summary.ID),
		zap.String("trigger", trigger),
		zap.String("mode", o.cfg.Sync.DownloadMode))

	if o.runs != nil {
		record := &store.RunRecord{
			ID:          summary.ID,
			Status:      store.RunStatusRunning,
			TriggerType: trigger,
			StartedAt:   summary.StartedAt,
		}
		if err := o.runs.Add(record); err != nil {
			o.logger.Warn("failed to record run start", zap.Error(err))
		}
	}

	result, runErr := o.execute(runCtx, summary)
	o.finish(summary, result, runErr)

	if runErr != nil && summary.Status == StatusFailed {
		return summary, runErr
	}
	return summary, nil
}

// execute performs the run body and returns the merged pass results
func (o *Orchestrator) execute(ctx context.Context, summary *Summary) (reconcile.Result, error) {
	var result reconcile.Result

	sources, fetchErrs := o.fetchSources(ctx)
	result.Errors = append(result.Errors, fetchErrs...)
	result.Failed += len(fetchErrs)
	summary.PlaylistsProcessed = len(sources)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("run cancelled: %w", err)
	}

	reconciler := reconcile.NewReconciler(
		o.cfg, o.ledger, o.resolver,
		download.NewPool(o.cfg.Sync.ParallelLimit, o.acquirer, o.logger),
		o.tagger, o.logger,
	)
	reconciler.OnProgress = func(sourceName, songTitle string, current, total int) {
		o.broker.PublishProgress(sourceName, sourceName, songTitle, current, total)
	}

	mode := o.cfg.Sync.DownloadMode
	if mode == "" {
		mode = ModeBoth
	}

	if mode == ModeBoth || mode == ModeAlbumsOnly {
		albumResult, err := reconciler.ReconcileAlbums(ctx, sources)
		result.Merge(albumResult)
		if err != nil {
			return result, err
		}
		o.writeAlbumCovers(ctx, sources)
	}

	if mode == ModeBoth || mode == ModePlaylistsOnly {
		playlistResult, err := reconciler.ReconcilePlaylists(ctx, sources)
		result.Merge(playlistResult)
		if err != nil {
			return result, err
		}
	}

	// Indexes reflect final placement, so they come after both passes
	if err := o.writer.WriteAll(sources); err != nil {
		o.logger.Error("failed to write playlist indexes", zap.Error(err))
	}

	return result, nil
}

// fetchSources resolves every configured source, converting per-source
// failures into run errors instead of aborting.
func (o *Orchestrator) fetchSources(ctx context.Context) ([]source.Source, []reconcile.ItemError) {
	var sources []source.Source
	var errs []reconcile.ItemError

	for _, cfgSrc := range o.cfg.Sources {
		if ctx.Err() != nil {
			break
		}
		src, err := o.fetcher.Fetch(ctx, cfgSrc)
		if err != nil {
			o.logger.Error("failed to fetch source",
				zap.String("url", cfgSrc.URL), zap.Error(err))
			errs = append(errs, reconcile.ItemError{
				SourceName: cfgSrc.Name,
				Type:       string(errors.GetErrorType(err)),
				Message:    fmt.Sprintf("failed to fetch %s: %v", cfgSrc.URL, err),
			})
			continue
		}
		sources = append(sources, *src)
	}
	return sources, errs
}

// writeAlbumCovers drops a cover image into each album folder that got
// songs this run. Existing covers are left alone.
func (o *Orchestrator) writeAlbumCovers(ctx context.Context, sources []source.Source) {
	if o.artwork == nil || !o.cfg.Library.SaveAlbumCover {
		return
	}

	filename := o.cfg.Library.AlbumCoverFilename
	if filename == "" {
		filename = "folder.png"
	}

	for _, src := range sources {
		if src.Kind != source.KindAlbum || len(src.Entries) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		folder := o.resolver.AlbumFolder(src.Name)
		if _, err := os.Stat(filepath.Join(folder, filename)); err == nil {
			continue
		}
		if _, err := os.Stat(folder); err != nil {
			// No songs landed, nothing to decorate
			continue
		}

		first := src.Entries[0]
		data, _, err := o.artwork.Fetch(ctx, first.VideoID, first.ThumbnailURL)
		if err != nil {
			o.logger.Warn("failed to fetch album cover",
				zap.String("album", src.Name), zap.Error(err))
			continue
		}
		if err := artwork.WriteAlbumCover(folder, filename, data, o.cfg.Library.ArtworkSize); err != nil {
			o.logger.Warn("failed to write album cover",
				zap.String("album", src.Name), zap.Error(err))
		}
	}
}

// finish settles state, persists the summary and emits the completion
// event.
func (o *Orchestrator) finish(summary *Summary, result reconcile.Result, runErr error) {
	summary.CompletedAt = time.Now().UTC()
	summary.SongsDownloaded = result.Downloaded
	summary.SongsRelocated = result.Relocated
	summary.SongsSkipped = result.Skipped
	summary.SongsFailed = result.Failed
	summary.Errors = result.Errors

	switch {
	case runErr != nil && stderrors.Is(runErr, context.Canceled):
		summary.Status = StatusCancelled
	case runErr != nil:
		summary.Status = StatusFailed
	default:
		summary.Status = StatusCompleted
	}

	summaryPath, err := o.writeSummaryFile(summary)
	if err != nil {
		o.logger.Warn("failed to write run summary", zap.Error(err))
	}

	if o.runs != nil {
		completedAt := summary.CompletedAt
		record := &store.RunRecord{
			ID:                 summary.ID,
			Status:             storeStatus(summary.Status),
			TriggerType:        summary.TriggerType,
			StartedAt:          summary.StartedAt,
			CompletedAt:        &completedAt,
			PlaylistsProcessed: summary.PlaylistsProcessed,
			SongsDownloaded:    summary.SongsDownloaded,
			SongsRelocated:     summary.SongsRelocated,
			SongsSkipped:       summary.SongsSkipped,
			SongsFailed:        summary.SongsFailed,
			SummaryPath:        summaryPath,
		}
		if err := o.runs.Complete(record); err != nil {
			o.logger.Warn("failed to persist run record", zap.Error(err))
		}
		if err := o.runs.AddErrors(summary.ID, toRunErrors(summary)); err != nil {
			o.logger.Warn("failed to persist run errors", zap.Error(err))
		}
	}

	duration := summary.CompletedAt.Sub(summary.StartedAt)
	monitoring.RecordRunComplete(string(summary.Status), summary.TriggerType, duration)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	o.broker.PublishComplete(summary.Status == StatusCompleted, summary.Status == StatusCancelled, errMsg)
	o.broker.PublishStatus(false)

	o.state.Finish(summary.Status)
	o.logger.Info("run finished",
		zap.String("run_id", summary.ID),
		zap.String("status", string(summary.Status)),
		zap.Int("downloaded", summary.SongsDownloaded),
		zap.Int("relocated", summary.SongsRelocated),
		zap.Int("skipped", summary.SongsSkipped),
		zap.Int("failed", summary.SongsFailed),
		zap.Duration("duration", duration))
}

// writeSummaryFile persists the summary as one JSON file per run
func (o *Orchestrator) writeSummaryFile(summary *Summary) (string, error) {
	folder := o.cfg.History.Folder
	if folder == "" {
		return "", nil
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(folder, summary.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func storeStatus(s Status) string {
	switch s {
	case StatusCompleted:
		return store.RunStatusSuccess
	case StatusCancelled:
		return store.RunStatusCancelled
	default:
		return store.RunStatusFailed
	}
}

func toRunErrors(summary *Summary) []store.RunError {
	if len(summary.Errors) == 0 {
		return nil
	}
	errs := make([]store.RunError, 0, len(summary.Errors))
	for _, e := range summary.Errors {
		errs = append(errs, store.RunError{
			RunID:      summary.ID,
			SourceName: e.SourceName,
			VideoID:    e.VideoID,
			Title:      e.Title,
			ErrorType:  e.Type,
			Message:    e.Message,
		})
	}
	return errs
}
