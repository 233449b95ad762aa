package playlist

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/errors"
	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/source"
)

// Writer rebuilds M3U index files from the ledger. Each source gets one
// file named by its id; the rebuild is total, never incremental, so the
// index always reflects the current placement of every song.
type Writer struct {
	ledger    *library.Ledger
	resolver  *library.Resolver
	folder    string
	mountPath string
	logger    *zap.Logger
}

// NewWriter creates an index writer targeting folder. mountPath is the
// prefix paths are rewritten under so a media server with a different
// mount sees valid paths.
func NewWriter(ledger *library.Ledger, resolver *library.Resolver, folder, mountPath string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		ledger:    ledger,
		resolver:  resolver,
		folder:    folder,
		mountPath: mountPath,
		logger:    logger,
	}
}

// Path returns the index file path for a source
func (w *Writer) Path(src source.Source) string {
	return filepath.Join(w.folder, src.ID+".m3u")
}

// Write rebuilds the index for one source and returns its path. Entries
// are emitted in declared order; songs the ledger cannot resolve are
// omitted rather than stubbed. The write is atomic and idempotent:
// unchanged library state produces byte-identical output.
func (w *Writer) Write(src source.Source) (string, error) {
	if err := os.MkdirAll(w.folder, 0755); err != nil {
		return "", errors.NewFilesystemError("failed to create index folder", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#GONIC-NAME:\"%s\"\n", src.Name)
	buf.WriteString("#GONIC-COMMENT:\"\"\n")
	buf.WriteString("#GONIC-IS-PUBLIC:\"false\"\n")

	resolved := 0
	for _, entry := range src.Entries {
		videoID, err := library.ResolveIdentity(entry.VideoID)
		if err != nil {
			continue
		}
		item := w.ledger.Lookup(videoID)
		if item == nil {
			continue
		}
		buf.WriteString(w.resolver.MountPath(item.Path, w.mountPath))
		buf.WriteByte('\n')
		resolved++
	}

	path := w.Path(src)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return "", errors.NewFilesystemError(
			fmt.Sprintf("failed to write index for %s", src.Name), err)
	}

	w.logger.Info("wrote playlist index",
		zap.String("source", src.Name),
		zap.String("path", path),
		zap.Int("entries", resolved))
	return path, nil
}

// WriteAll rebuilds the index of every source, continuing past per-file
// failures and returning the first error encountered.
func (w *Writer) WriteAll(sources []source.Source) error {
	var firstErr error
	for _, src := range sources {
		if _, err := w.Write(src); err != nil {
			w.logger.Error("failed to write playlist index",
				zap.String("source", src.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
