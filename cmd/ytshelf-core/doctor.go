package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/monitoring"
	"github.com/ytshelf/ytshelf-go/internal/store"
	"github.com/ytshelf/ytshelf-go/internal/ytdlp"
)

func doctorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "Check the environment: downloader binary, folders, history database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Doctor,
	}
}

// Doctor runs the health checks and prints the report as JSON
func (r *Runner) Doctor(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := r.newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ledgerRecords := 0
	if ledger, err := r.openLedger(cfg, logger); err == nil {
		ledgerRecords = ledger.Len()
	}

	checker := monitoring.NewHealthChecker(appVersion, nil,
		cfg.Downloader.Path, cfg.Library.BaseFolder, cfg.Library.M3UFolder)
	if db, err := store.InitDB(cfg.History.DatabasePath); err == nil {
		defer db.Close()
		checker = monitoring.NewHealthChecker(appVersion, db,
			cfg.Downloader.Path, cfg.Library.BaseFolder, cfg.Library.M3UFolder)
	}

	report := checker.Check(ledgerRecords, 0)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(r.output, string(data))

	if report.Status == monitoring.HealthStatusUnhealthy {
		return fmt.Errorf("environment is unhealthy")
	}
	return nil
}

func updateDownloaderCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "update-downloader",
		Usage:  "Run the downloader binary's self-update",
		Flags:  []cli.Flag{configFlag()},
		Action: r.UpdateDownloader,
	}
}

// UpdateDownloader invokes the external downloader's -U self-update
func (r *Runner) UpdateDownloader(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := r.newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client := ytdlp.NewClient(cfg.Downloader.Path, cfg.Downloader.RequestsPerMinute, logger)

	before, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("downloader is not runnable: %w", err)
	}
	fmt.Fprintf(r.output, "Current version: %s\n", before)

	if err := client.SelfUpdate(ctx, 5*time.Minute); err != nil {
		return fmt.Errorf("self-update failed: %w", err)
	}

	after, err := client.Version(ctx)
	if err != nil {
		logger.Warn("could not read version after update", zap.Error(err))
		fmt.Fprintln(r.output, "Updated")
		return nil
	}
	if after == before {
		fmt.Fprintf(r.output, "Already up to date (%s)\n", after)
	} else {
		fmt.Fprintf(r.output, "Updated: %s -> %s\n", before, after)
	}
	return nil
}
