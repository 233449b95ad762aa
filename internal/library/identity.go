package library

import (
	"regexp"
	"strings"

	"github.com/ytshelf/ytshelf-go/internal/errors"
)

var (
	shortLinkPattern  = regexp.MustCompile(`youtu\.be/([^?&/]+)`)
	watchParamPattern = regexp.MustCompile(`[?&]v=([^&]+)`)
	listParamPattern  = regexp.MustCompile(`list=([^&]+)`)
	bareIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// ResolveIdentity canonicalizes a raw source entry into a stable video id.
// Accepts short links, watch URLs and bare ids.
func ResolveIdentity(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.NewInvalidEntryError("entry id is empty")
	}

	if m := shortLinkPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}

	if m := watchParamPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}

	if bareIDPattern.MatchString(s) {
		return s, nil
	}

	return "", errors.NewInvalidEntryError("cannot resolve video id from " + raw)
}

// ExtractPlaylistID pulls the playlist id out of a source URL. Inputs
// without a list parameter are returned as-is, assumed to already be an id.
func ExtractPlaylistID(url string) string {
	s := strings.TrimSpace(url)
	if m := listParamPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
