package library

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	unsafeCharPattern  = regexp.MustCompile(`[^\w\s._-]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	albumPrefixPattern = regexp.MustCompile(`^Album - `)
)

// SanitizeName makes a string safe to use as a file or folder name.
// Deterministic: the same input always produces the same output, which
// keeps re-runs idempotent.
func SanitizeName(s string) string {
	s = unsafeCharPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanSourceName normalizes a fetched playlist title into a library
// folder name. Album playlists come back from the downloader with an
// "Album - " prefix that is stripped first.
func CleanSourceName(title string) string {
	return SanitizeName(albumPrefixPattern.ReplaceAllString(title, ""))
}

// Resolver computes canonical on-disk locations for library items.
// File paths are always derived from the stored identity, never the
// other way around.
type Resolver struct {
	BaseFolder     string
	UnsortedFolder string
	Extension      string
}

// NewResolver creates a resolver rooted at baseFolder. The empty album
// name maps to the unsorted folder.
func NewResolver(baseFolder, unsortedFolder, extension string) *Resolver {
	if unsortedFolder == "" {
		unsortedFolder = "Unsorted Songs"
	}
	if extension == "" {
		extension = "mp3"
	}
	return &Resolver{
		BaseFolder:     baseFolder,
		UnsortedFolder: unsortedFolder,
		Extension:      extension,
	}
}

// AlbumFolder returns the directory that holds songs for the given
// album. An empty album name resolves to the unsorted folder.
func (r *Resolver) AlbumFolder(album string) string {
	folder := r.UnsortedFolder
	if album != "" {
		folder = SanitizeName(album)
	}
	return filepath.Join(r.BaseFolder, folder)
}

// SongFileName returns the canonical "{Artist} - {Title} - {videoID}.{ext}"
// file name for a song.
func (r *Resolver) SongFileName(artist, title, videoID string) string {
	artist = SanitizeName(artist)
	if artist == "" {
		artist = "Unknown Artist"
	}
	title = SanitizeName(title)
	if title == "" {
		title = videoID
	}
	return fmt.Sprintf("%s - %s - %s.%s", artist, title, videoID, r.Extension)
}

// SongPath returns the canonical path for a song under the given album
// assignment.
func (r *Resolver) SongPath(album, artist, title, videoID string) string {
	return filepath.Join(r.AlbumFolder(album), r.SongFileName(artist, title, videoID))
}

// MountPath rewrites a library path from the base folder to the mount
// path seen by the media server. Paths outside the base folder are
// returned unchanged.
func (r *Resolver) MountPath(path, mountPath string) string {
	rel, err := filepath.Rel(r.BaseFolder, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.Join(mountPath, rel)
}
