package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/artwork"
	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/download"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/metadata"
	"github.com/ytshelf/ytshelf-go/internal/playlist"
	"github.com/ytshelf/ytshelf-go/internal/progress"
	"github.com/ytshelf/ytshelf-go/internal/run"
	"github.com/ytshelf/ytshelf-go/internal/source"
	"github.com/ytshelf/ytshelf-go/internal/store"
	"github.com/ytshelf/ytshelf-go/internal/ytdlp"
)

func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one full library reconciliation",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Download mode: both, albums_only or playlists_only",
			},
			&cli.StringFlag{
				Name:  "trigger",
				Usage: "Trigger type recorded in history: manual or cron",
				Value: store.TriggerManual,
			},
		},
		Action: r.Run,
	}
}

// Run wires the full pipeline and executes one reconciliation run,
// streaming progress to the terminal.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if mode := cmd.String("mode"); mode != "" {
		if mode != config.ModeBoth && mode != config.ModeAlbumsOnly && mode != config.ModePlaylistsOnly {
			return fmt.Errorf("invalid mode %q", mode)
		}
		cfg.Sync.DownloadMode = mode
	}
	trigger := cmd.String("trigger")
	if trigger != store.TriggerManual && trigger != store.TriggerCron {
		return fmt.Errorf("invalid trigger %q", trigger)
	}

	logger, err := r.newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ledger, err := r.openLedger(cfg, logger)
	if err != nil {
		return err
	}

	resolver := library.NewResolver(
		cfg.Library.BaseFolder, cfg.Library.UnsortedFolderName, cfg.Downloader.AudioFormat)
	client := ytdlp.NewClient(cfg.Downloader.Path, cfg.Downloader.RequestsPerMinute, logger)
	fetcher := source.NewFetcher(client, cfg.MetadataTimeout(), logger)
	artworkFetcher := artwork.NewFetcher(cfg.Library.ArtworkSize, 30*time.Second, logger)
	tagger := metadata.NewManager(&metadata.Config{
		EmbedArtwork: cfg.Library.EmbedArtwork,
		ArtworkSize:  cfg.Library.ArtworkSize,
	})
	engine := download.NewEngine(cfg, ledger, resolver, client, artworkFetcher, tagger, logger)
	writer := playlist.NewWriter(ledger, resolver,
		cfg.Library.M3UFolder, cfg.Library.MusicMountPath, logger)
	broker := progress.NewBroker()
	defer broker.Close()

	var runStore *store.RunStore
	if db, err := store.InitDB(cfg.History.DatabasePath); err != nil {
		logger.Warn("run history disabled", zap.Error(err))
	} else {
		defer db.Close()
		runStore = store.NewRunStore(db)
	}

	orchestrator := run.NewOrchestrator(cfg, ledger, resolver, fetcher, engine,
		tagger, artworkFetcher, writer, broker, runStore, logger)

	// Ctrl-C requests cooperative cancellation: in-flight downloads
	// finish, no new entries start
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.streamEvents(broker.Subscribe("cli"))
	}()

	summary, err := orchestrator.Run(runCtx, trigger)
	broker.Unsubscribe("cli")
	wg.Wait()
	if err != nil {
		return err
	}

	r.printSummary(summary)
	if summary.Status == run.StatusFailed {
		return fmt.Errorf("run %s failed", summary.ID)
	}
	return nil
}

// streamEvents prints progress events until the subscription closes
func (r *Runner) streamEvents(sub *progress.Subscriber) {
	for msg := range sub.Events() {
		switch payload := msg.Payload.(type) {
		case progress.ProgressEvent:
			fmt.Fprintf(r.output, "[%d/%d] %s: %s\n",
				payload.Current, payload.Total, payload.Playlist, payload.Song)
		case progress.CompleteEvent:
			switch {
			case payload.Cancelled:
				fmt.Fprintln(r.output, "Run cancelled")
			case payload.Success:
				fmt.Fprintln(r.output, "Run complete")
			default:
				fmt.Fprintf(r.output, "Run failed: %s\n", payload.Error)
			}
		}
	}
}

func (r *Runner) printSummary(summary *run.Summary) {
	fmt.Fprintf(r.output, "\nRun %s (%s)\n", summary.ID, summary.Status)
	fmt.Fprintf(r.output, "  Sources:    %d\n", summary.PlaylistsProcessed)
	fmt.Fprintf(r.output, "  Downloaded: %d\n", summary.SongsDownloaded)
	fmt.Fprintf(r.output, "  Relocated:  %d\n", summary.SongsRelocated)
	fmt.Fprintf(r.output, "  Skipped:    %d\n", summary.SongsSkipped)
	fmt.Fprintf(r.output, "  Failed:     %d\n", summary.SongsFailed)
	for _, e := range summary.Errors {
		fmt.Fprintf(r.output, "  error [%s] %s: %s\n", e.Type, e.SourceName, e.Message)
	}
}
