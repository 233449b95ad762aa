// Package migration upgrades record files written by earlier releases,
// which stored one bare video id per line, into the JSON-lines ledger.
package migration

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/errors"
	"github.com/ytshelf/ytshelf-go/internal/library"
)

var bareIDLine = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// audio extensions the scanner recognizes
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
}

// Result summarizes one ledger upgrade
type Result struct {
	Migrated   int
	Unmatched  []string
	BackupPath string
}

// Migrator rebuilds rich ledger records from a legacy record file by
// scanning the library tree for the files the ids refer to.
type Migrator struct {
	baseFolder     string
	ledgerPath     string
	unsortedFolder string
	logger         *zap.Logger
}

// NewMigrator creates a migrator for the given library layout
func NewMigrator(baseFolder, ledgerPath, unsortedFolder string, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		baseFolder:     baseFolder,
		ledgerPath:     ledgerPath,
		unsortedFolder: unsortedFolder,
		logger:         logger,
	}
}

// IsLegacyLedger reports whether the file at path uses the legacy
// one-id-per-line format. A missing or empty file is not legacy.
func IsLegacyLedger(path string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	sawID := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !bareIDLine.MatchString(line) {
			return false, nil
		}
		sawID = true
	}
	return sawID, scanner.Err()
}

// Migrate upgrades the legacy record file in place. The original is
// kept next to the new ledger with a .bak suffix. Ids whose file cannot
// be found in the library are recorded as failed so the next run
// re-acquires them.
func (m *Migrator) Migrate() (*Result, error) {
	legacy, err := IsLegacyLedger(m.ledgerPath)
	if err != nil {
		return nil, errors.NewFilesystemError("failed to inspect record file", err)
	}
	if !legacy {
		return nil, errors.NewValidationError("record file is not in the legacy format")
	}

	ids, err := readLegacyIDs(m.ledgerPath)
	if err != nil {
		return nil, errors.NewFilesystemError("failed to read legacy record file", err)
	}

	found, err := m.scanLibrary(ids)
	if err != nil {
		return nil, err
	}

	backupPath := m.ledgerPath + ".bak"
	if err := os.Rename(m.ledgerPath, backupPath); err != nil {
		return nil, errors.NewFilesystemError("failed to back up legacy record file", err)
	}

	ledger, err := library.OpenLedger(m.ledgerPath)
	if err != nil {
		return nil, err
	}

	result := &Result{BackupPath: backupPath}
	for _, id := range ids {
		item, ok := found[id]
		if !ok {
			if err := ledger.MarkFailed(id); err != nil {
				return nil, err
			}
			result.Unmatched = append(result.Unmatched, id)
			continue
		}
		if err := ledger.Record(item); err != nil {
			return nil, err
		}
		result.Migrated++
	}

	m.logger.Info("upgraded legacy record file",
		zap.String("path", m.ledgerPath),
		zap.Int("migrated", result.Migrated),
		zap.Int("unmatched", len(result.Unmatched)))
	return result, nil
}

// readLegacyIDs returns the ids of a legacy record file in order,
// deduplicated.
func readLegacyIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}

// scanLibrary walks the base folder looking for files named
// "{Artist} - {Title} - {id}.{ext}" for the wanted ids.
func (m *Migrator) scanLibrary(ids []string) (map[string]*library.Item, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	found := make(map[string]*library.Item)
	err := filepath.WalkDir(m.baseFolder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Staging holds in-flight partial files, never library songs
			if d.Name() == ".staging" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !audioExtensions[ext] {
			return nil
		}

		artist, title, id, ok := parseSongFileName(d.Name(), ext)
		if !ok || !wanted[id] || found[id] != nil {
			return nil
		}

		item := &library.Item{
			VideoID: id,
			Path:    path,
			Album:   m.albumOf(path),
			Artist:  artist,
			Title:   title,
		}
		if checksum, err := library.FileChecksum(path); err == nil {
			item.Checksum = checksum
		}
		found[id] = item
		return nil
	})
	if err != nil {
		return nil, errors.NewFilesystemError("failed to scan library", err)
	}
	return found, nil
}

// albumOf derives the album from a file's parent folder. Files directly
// under the base folder or in the unsorted folder have no album.
func (m *Migrator) albumOf(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if filepath.Dir(path) == filepath.Clean(m.baseFolder) || dir == m.unsortedFolder {
		return ""
	}
	return dir
}

// parseSongFileName splits "{Artist} - {Title} - {id}.{ext}". Titles
// may themselves contain " - ", so the first and last separators win.
func parseSongFileName(name, ext string) (artist, title, id string, ok bool) {
	stem := strings.TrimSuffix(name, ext)
	parts := strings.Split(stem, " - ")
	if len(parts) < 3 {
		return "", "", "", false
	}

	id = parts[len(parts)-1]
	if !bareIDLine.MatchString(id) {
		return "", "", "", false
	}
	artist = parts[0]
	title = strings.Join(parts[1:len(parts)-1], " - ")
	if artist == "" || title == "" {
		return "", "", "", false
	}
	return artist, title, id, true
}

// UpgradeIfNeeded opens the ledger at path, transparently upgrading a
// legacy record file first. This is the entry point the CLI uses.
func UpgradeIfNeeded(baseFolder, ledgerPath, unsortedFolder string, logger *zap.Logger) (*library.Ledger, *Result, error) {
	ledger, err := library.OpenLedger(ledgerPath)
	if err == nil {
		return ledger, nil, nil
	}
	if err != library.ErrLegacyFormat {
		return nil, nil, err
	}

	migrator := NewMigrator(baseFolder, ledgerPath, unsortedFolder, logger)
	result, merr := migrator.Migrate()
	if merr != nil {
		return nil, nil, fmt.Errorf("legacy record file upgrade failed: %w", merr)
	}

	ledger, err = library.OpenLedger(ledgerPath)
	if err != nil {
		return nil, nil, err
	}
	return ledger, result, nil
}
