package source

import "strings"

// Kind distinguishes album sources from plain playlists
type Kind string

const (
	// KindAlbum sources claim an album folder; their entries carry track indexes
	KindAlbum Kind = "album"
	// KindPlaylist sources only reference songs, they never own placement
	KindPlaylist Kind = "playlist"
)

// Entry is one track reference inside a source. The video id is the
// natural key; the same id appearing in several sources is the same
// logical song.
type Entry struct {
	VideoID      string
	Title        string
	Uploader     string
	TrackIndex   int // albums only, 0 when unknown
	ThumbnailURL string
}

// Source is a configured album or playlist with its entries in declared
// order.
type Source struct {
	ID      string
	URL     string
	Name    string
	Kind    Kind
	Entries []Entry
}

// DetectKind classifies a source reference. Album references either use
// an /album/ URL or carry the auto-generated album playlist id prefix.
func DetectKind(urlOrID string) Kind {
	if strings.Contains(urlOrID, "/album/") || strings.Contains(urlOrID, "OLAK5uy_") {
		return KindAlbum
	}
	return KindPlaylist
}
