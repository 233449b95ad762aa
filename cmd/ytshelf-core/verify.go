package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/source"
)

func sourcesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sources",
		Usage:  "List the configured sources and their kinds",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Sources,
	}
}

// Sources prints each configured source with its detected kind
func (r *Runner) Sources(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		fmt.Fprintln(r.output, "No sources configured")
		return nil
	}

	for _, src := range cfg.Sources {
		name := src.Name
		if name == "" {
			name = "(name fetched at run time)"
		}
		fmt.Fprintf(r.output, "%-8s  %-30s  %s\n",
			source.DetectKind(src.URL), name, src.URL)
	}
	return nil
}

func verifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Audit the download ledger against the filesystem",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "checksum",
				Usage: "Also verify file checksums (slow)",
			},
		},
		Action: r.Verify,
	}
}

// Verify walks every ledger record and checks its file still exists,
// optionally re-checksumming. Records whose file vanished are demoted
// so the next run re-acquires them.
func (r *Runner) Verify(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
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

	deepCheck := cmd.Bool("checksum")
	var ok, missing, mismatched, pending int

	for _, item := range ledger.Items() {
		if item.Status != library.StatusDownloaded {
			pending++
			continue
		}

		if _, err := os.Stat(item.Path); err != nil {
			// Lookup demotes the record and persists the ledger
			ledger.Lookup(item.VideoID)
			fmt.Fprintf(r.output, "missing:  %s (%s)\n", item.Path, item.VideoID)
			missing++
			continue
		}

		if deepCheck && item.Checksum != "" {
			sum, err := library.FileChecksum(item.Path)
			if err != nil {
				return fmt.Errorf("failed to checksum %s: %w", item.Path, err)
			}
			if sum != item.Checksum {
				fmt.Fprintf(r.output, "modified: %s (%s)\n", item.Path, item.VideoID)
				mismatched++
				continue
			}
		}
		ok++
	}

	fmt.Fprintf(r.output, "\n%d ok, %d missing (demoted), %d modified, %d pending or failed\n",
		ok, missing, mismatched, pending)
	return nil
}
