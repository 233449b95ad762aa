package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ytshelf/ytshelf-go/internal/store"
)

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent reconciliation runs",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of runs to show",
				Value:   10,
			},
			&cli.StringFlag{
				Name:  "run",
				Usage: "Show the recorded failures of one run id",
			},
		},
		Action: r.History,
	}
}

// History lists recent runs, or the failures of one run
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := store.InitDB(cfg.History.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer db.Close()
	runs := store.NewRunStore(db)

	if runID := cmd.String("run"); runID != "" {
		return r.printRunErrors(runs, runID)
	}

	records, err := runs.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(r.output, "No runs recorded yet")
		return nil
	}

	for _, rec := range records {
		duration := "-"
		if rec.CompletedAt != nil {
			duration = rec.CompletedAt.Sub(rec.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(r.output, "%s  %-9s  %-6s  %s  %s  downloaded=%d relocated=%d skipped=%d failed=%d\n",
			rec.ID, rec.Status, rec.TriggerType,
			rec.StartedAt.Format(time.RFC3339), duration,
			rec.SongsDownloaded, rec.SongsRelocated, rec.SongsSkipped, rec.SongsFailed)
	}
	return nil
}

func (r *Runner) printRunErrors(runs *store.RunStore, runID string) error {
	rec, err := runs.GetByID(runID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("run not found: %s", runID)
	}

	errs, err := runs.GetErrors(runID)
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		fmt.Fprintf(r.output, "Run %s has no recorded failures\n", runID)
		return nil
	}

	for _, e := range errs {
		fmt.Fprintf(r.output, "[%s] %s / %s (%s): %s\n",
			e.ErrorType, e.SourceName, e.Title, e.VideoID, e.Message)
	}
	return nil
}
