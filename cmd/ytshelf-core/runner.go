package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/config"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/migration"
	"github.com/ytshelf/ytshelf-go/internal/monitoring"
)

// Runner holds the command actions and their shared output sink
type Runner struct {
	output io.Writer
}

// NewRunner creates a Runner writing to the given output
func NewRunner(output io.Writer) *Runner {
	if output == nil {
		output = os.Stdout
	}
	return &Runner{output: output}
}

// register returns all top-level commands
func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		runCommand(r),
		historyCommand(r),
		sourcesCommand(r),
		verifyCommand(r),
		updateDownloaderCommand(r),
		doctorCommand(r),
	}
}

// configFlag is shared by every command
func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
	}
}

// loadConfig reads the configuration named by the command's flag,
// falling back to the default location.
func (r *Runner) loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the file logger from configuration
func (r *Runner) newLogger(cfg *config.Config) (*zap.Logger, error) {
	return monitoring.NewLogger(&monitoring.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

// openLedger opens the download ledger, upgrading a legacy record file
// first when one is found.
func (r *Runner) openLedger(cfg *config.Config, logger *zap.Logger) (*library.Ledger, error) {
	ledger, upgraded, err := migration.UpgradeIfNeeded(
		cfg.Library.BaseFolder, cfg.LedgerPath(), cfg.Library.UnsortedFolderName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open download ledger: %w", err)
	}
	if upgraded != nil {
		fmt.Fprintf(r.output, "Upgraded legacy record file: %d records rebuilt, %d unmatched (backup: %s)\n",
			upgraded.Migrated, len(upgraded.Unmatched), upgraded.BackupPath)
	}
	return ledger, nil
}
