package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ytshelf/ytshelf-go/internal/errors"
)

// watchURLPrefix builds the canonical watch URL handed to the downloader
const watchURLPrefix = "https://www.youtube.com/watch?v="

// notFoundMarkers are stderr fragments that mark a video as permanently
// unavailable. These are never retried.
var notFoundMarkers = []string{
	"video unavailable",
	"private video",
	"this video is not available",
	"has been removed",
	"account associated with this video has been terminated",
	"no longer available",
}

// RawEntry is one line of a flat playlist listing as printed by the
// downloader.
type RawEntry struct {
	Index    int
	Title    string
	Uploader string
	ID       string
}

// DownloadOptions controls a single audio download
type DownloadOptions struct {
	// TargetDir is the staging directory the file is written into
	TargetDir string
	// AudioFormat is the extraction format (mp3 or flac)
	AudioFormat string
	// Timeout bounds the whole subprocess invocation
	Timeout time.Duration
}

// Client drives the external downloader binary over subprocess calls.
// All invocations share one rate limiter so repeated runs do not hammer
// the upstream service.
type Client struct {
	binary  string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a client for the downloader binary at path.
// requestsPerMinute of zero disables rate limiting.
func NewClient(path string, requestsPerMinute int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}

	return &Client{
		binary:  path,
		limiter: limiter,
		logger:  logger,
	}
}

// Download fetches the audio for one video into opts.TargetDir and
// returns the path of the produced file. The file name follows the
// "{Artist} - {Title} - {videoID}.{ext}" template; tagging and final
// placement are the caller's job.
func (c *Client) Download(ctx context.Context, videoID string, opts DownloadOptions) (string, error) {
	format := opts.AudioFormat
	if format == "" {
		format = "mp3"
	}

	template := filepath.Join(opts.TargetDir, "%(artist,uploader)s - %(title)s - "+videoID+".%(ext)s")

	args := []string{
		"-o", template,
		"--format", "bestaudio[ext=m4a]/best",
		"--extract-audio",
		"--audio-format", format,
		"--audio-quality", "0",
		"--add-metadata",
		"--no-overwrites",
		"--no-playlist",
		watchURLPrefix + videoID,
	}

	if _, err := c.run(ctx, opts.Timeout, args...); err != nil {
		return "", err
	}

	matches, err := filepath.Glob(filepath.Join(opts.TargetDir, "* - "+videoID+"."+format))
	if err != nil || len(matches) == 0 {
		return "", errors.NewToolFailureError(
			fmt.Sprintf("downloader reported success but produced no %s file for %s", format, videoID), err)
	}

	return matches[0], nil
}

// PlaylistTitle fetches the title of a playlist without downloading
// anything.
func (c *Client) PlaylistTitle(ctx context.Context, playlistURL string, timeout time.Duration) (string, error) {
	out, err := c.run(ctx, timeout,
		"--print", "%(playlist_title)s",
		"--playlist-items", "1",
		"--skip-download",
		playlistURL,
	)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	if title == "" || title == "NA" {
		return "", errors.NewToolFailureError("downloader returned no playlist title", nil)
	}
	return title, nil
}

// PlaylistEntries lists the entries of a playlist in declared order
// using a flat listing, one tab-separated line per entry.
func (c *Client) PlaylistEntries(ctx context.Context, playlistURL string, timeout time.Duration) ([]RawEntry, error) {
	out, err := c.run(ctx, timeout,
		"--flat-playlist",
		"--print", "%(playlist_index)s\t%(title)s\t%(uploader)s\t%(id)s",
		playlistURL,
	)
	if err != nil {
		return nil, err
	}

	return ParseEntries(out), nil
}

// ParseEntries parses the flat-playlist listing output into entries.
// Lines that do not have all four fields are skipped.
func ParseEntries(out string) []RawEntry {
	var entries []RawEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.SplitN(line, "\t", 4)
		if len(fields) != 4 {
			continue
		}

		entry := RawEntry{
			Title:    strings.TrimSpace(fields[1]),
			Uploader: strings.TrimSpace(fields[2]),
			ID:       strings.TrimSpace(fields[3]),
		}
		if entry.ID == "" || entry.ID == "NA" {
			continue
		}
		if idx, err := strconv.Atoi(strings.TrimSpace(fields[0])); err == nil {
			entry.Index = idx
		}
		if entry.Uploader == "NA" {
			entry.Uploader = ""
		}

		entries = append(entries, entry)
	}
	return entries
}

// Version returns the downloader's version string
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, 30*time.Second, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SelfUpdate asks the downloader binary to update itself
func (c *Client) SelfUpdate(ctx context.Context, timeout time.Duration) error {
	_, err := c.run(ctx, timeout, "-U")
	return err
}

// run executes the binary with the given arguments, bounded by timeout,
// and classifies failures into the application error taxonomy.
func (c *Client) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.NewTimeoutError("rate limiter wait aborted", err)
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("invoking downloader",
		zap.String("binary", c.binary),
		zap.Strings("args", args))

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.NewTimeoutError(
			fmt.Sprintf("downloader exceeded %s timeout", timeout), ctx.Err())
	}
	if ctx.Err() == context.Canceled {
		return "", errors.NewTimeoutError("downloader invocation cancelled", ctx.Err())
	}

	return "", ClassifyFailure(stderr.String(), err)
}

// ClassifyFailure maps a failed downloader invocation onto the error
// taxonomy: permanently unavailable videos become NotFound, everything
// else is a retryable tool failure.
func ClassifyFailure(stderr string, cause error) error {
	lowered := strings.ToLower(stderr)
	for _, marker := range notFoundMarkers {
		if strings.Contains(lowered, marker) {
			return errors.NewNotFoundError(firstStderrLine(stderr))
		}
	}

	msg := firstStderrLine(stderr)
	if msg == "" {
		msg = "downloader exited with an error"
	}
	return errors.NewToolFailureError(msg, cause)
}

// firstStderrLine returns the first ERROR line of stderr output, or the
// first non-empty line when there is none.
func firstStderrLine(stderr string) string {
	var fallback string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR") {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}
