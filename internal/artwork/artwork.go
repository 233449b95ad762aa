package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/network"
)

// Fetcher retrieves and normalizes cover images for songs. Covers are
// always square-cropped so album grids render consistently.
type Fetcher struct {
	httpClient *network.Client
	ytClient   *youtube.Client
	size       int
	logger     *zap.Logger
}

// NewFetcher creates a fetcher producing covers of the given pixel size
func NewFetcher(size int, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if size <= 0 {
		size = 1200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		httpClient: network.New(network.Options{Timeout: timeout}, logger),
		ytClient:   &youtube.Client{},
		size:       size,
		logger:     logger,
	}
}

// Fetch downloads the cover image for a video, square-crops and resizes
// it, and returns JPEG data ready for tag embedding. When the known
// thumbnail URL fails, the video metadata is queried for the largest
// available thumbnail.
func (f *Fetcher) Fetch(ctx context.Context, videoID, thumbnailURL string) ([]byte, string, error) {
	var raw []byte
	var err error

	if thumbnailURL != "" {
		raw, err = f.download(ctx, thumbnailURL)
	}
	if raw == nil {
		url, resolveErr := f.resolveThumbnailURL(ctx, videoID)
		if resolveErr != nil {
			if err != nil {
				return nil, "", err
			}
			return nil, "", resolveErr
		}
		raw, err = f.download(ctx, url)
		if err != nil {
			return nil, "", err
		}
	}

	data, err := normalize(raw, f.size, encodeJPEG)
	if err != nil {
		return nil, "", err
	}
	return data, "image/jpeg", nil
}

// resolveThumbnailURL looks up the largest thumbnail the video offers
func (f *Fetcher) resolveThumbnailURL(ctx context.Context, videoID string) (string, error) {
	video, err := f.ytClient.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve thumbnail for %s: %w", videoID, err)
	}

	var best youtube.Thumbnail
	for _, t := range video.Thumbnails {
		if t.Width > best.Width {
			best = t
		}
	}
	if best.URL == "" {
		return "", fmt.Errorf("video %s has no thumbnails", videoID)
	}
	return best.URL, nil
}

// download fetches raw image bytes
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	data, err := f.httpClient.FetchBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to download artwork: %w", err)
	}
	return data, nil
}

// WriteAlbumCover writes the per-album cover file (folder.png by
// convention) from already-fetched cover data. Existing covers are left
// alone; writes are atomic.
func WriteAlbumCover(albumFolder, filename string, data []byte, size int) error {
	coverPath := filepath.Join(albumFolder, filename)
	if _, err := os.Stat(coverPath); err == nil {
		return nil
	}

	normalized, err := normalize(data, size, encodePNG)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(albumFolder, 0755); err != nil {
		return fmt.Errorf("failed to create album folder: %w", err)
	}

	tmpPath := coverPath + ".tmp"
	if err := os.WriteFile(tmpPath, normalized, 0644); err != nil {
		return fmt.Errorf("failed to write cover file: %w", err)
	}
	if err := os.Rename(tmpPath, coverPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace cover file: %w", err)
	}

	return nil
}

// SquareCrop crops an image to a centered square
func SquareCrop(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == h {
		return img
	}

	side := w
	if h < side {
		side = h
	}

	x0 := bounds.Min.X + (w-side)/2
	y0 := bounds.Min.Y + (h-side)/2

	cropped := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(cropped, cropped.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return cropped
}

// normalize decodes, square-crops, resizes and re-encodes image data
func normalize(data []byte, size int, encode func(io.Writer, image.Image) error) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = SquareCrop(img)
	if size > 0 && img.Bounds().Dx() != size {
		img = resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
}

func encodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
