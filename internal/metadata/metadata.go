package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

// Manager handles tag operations for audio files
type Manager struct {
	config *Config
}

// Config contains metadata configuration
type Config struct {
	EmbedArtwork bool
	ArtworkSize  int
}

// TrackMetadata contains the tags written to a library file
type TrackMetadata struct {
	Title       string
	Artist      string
	Album       string
	TrackNumber int
	Year        int
	ArtworkData []byte
	ArtworkMIME string
}

// NewManager creates a new metadata manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = &Config{
			EmbedArtwork: true,
			ArtworkSize:  1200,
		}
	}
	return &Manager{
		config: config,
	}
}

// ApplyMetadata applies metadata to an audio file (MP3 or FLAC)
func (m *Manager) ApplyMetadata(filePath string, metadata *TrackMetadata) error {
	if metadata == nil {
		return fmt.Errorf("metadata cannot be nil")
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return m.applyMP3Metadata(filePath, metadata)
	case ".flac":
		return m.applyFLACMetadata(filePath, metadata)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
}

// RetagAlbum rewrites only the album assignment and track number of an
// already tagged file, used when a song relocates between albums. All
// other tags, artwork included, are left untouched.
func (m *Manager) RetagAlbum(filePath, album string, trackNumber int) error {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return m.retagMP3Album(filePath, album, trackNumber)
	case ".flac":
		return m.retagFLACAlbum(filePath, album, trackNumber)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
}

// applyMP3Metadata applies metadata to an MP3 file using ID3v2
func (m *Manager) applyMP3Metadata(filePath string, metadata *TrackMetadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)

	if metadata.Title != "" {
		tag.SetTitle(metadata.Title)
	}
	if metadata.Artist != "" {
		tag.SetArtist(metadata.Artist)
	}
	if metadata.Album != "" {
		tag.SetAlbum(metadata.Album)
	}
	if metadata.Year > 0 {
		tag.SetYear(strconv.Itoa(metadata.Year))
	}

	if metadata.TrackNumber > 0 {
		tag.DeleteFrames(tag.CommonID("Track number/Position in set"))
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, strconv.Itoa(metadata.TrackNumber))
	}

	if m.config.EmbedArtwork && len(metadata.ArtworkData) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    metadata.ArtworkMIME,
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     metadata.ArtworkData,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save MP3 metadata: %w", err)
	}

	return nil
}

// retagMP3Album rewrites album and track frames of an MP3 file
func (m *Manager) retagMP3Album(filePath, album string, trackNumber int) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetAlbum(album)

	trackFrame := tag.CommonID("Track number/Position in set")
	tag.DeleteFrames(trackFrame)
	if trackNumber > 0 {
		tag.AddTextFrame(trackFrame, id3v2.EncodingUTF8, strconv.Itoa(trackNumber))
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save MP3 metadata: %w", err)
	}

	return nil
}

// applyFLACMetadata applies metadata to a FLAC file using Vorbis comments
func (m *Manager) applyFLACMetadata(filePath string, metadata *TrackMetadata) error {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	cmt, cmtIdx := findVorbisComment(f)
	if cmt == nil {
		cmt = flacvorbis.New()
	}

	setVorbisField(cmt, "TITLE", metadata.Title)
	setVorbisField(cmt, "ARTIST", metadata.Artist)
	setVorbisField(cmt, "ALBUM", metadata.Album)
	if metadata.Year > 0 {
		setVorbisField(cmt, "DATE", strconv.Itoa(metadata.Year))
	}
	if metadata.TrackNumber > 0 {
		setVorbisField(cmt, "TRACKNUMBER", strconv.Itoa(metadata.TrackNumber))
	}

	res := cmt.Marshal()
	if cmtIdx >= 0 {
		f.Meta[cmtIdx] = &res
	} else {
		f.Meta = append(f.Meta, &res)
	}

	if m.config.EmbedArtwork && len(metadata.ArtworkData) > 0 {
		picture, err := flacpicture.NewFromImageData(
			flacpicture.PictureTypeFrontCover,
			"Front Cover",
			metadata.ArtworkData,
			metadata.ArtworkMIME,
		)
		if err != nil {
			return fmt.Errorf("failed to build FLAC picture: %w", err)
		}
		picBlock := picture.Marshal()

		replaced := false
		for i, block := range f.Meta {
			if block.Type == flac.Picture {
				f.Meta[i] = &picBlock
				replaced = true
				break
			}
		}
		if !replaced {
			f.Meta = append(f.Meta, &picBlock)
		}
	}

	if err := f.Save(filePath); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}

	return nil
}

// retagFLACAlbum rewrites the album and track comments of a FLAC file
func (m *Manager) retagFLACAlbum(filePath, album string, trackNumber int) error {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	cmt, cmtIdx := findVorbisComment(f)
	if cmt == nil {
		cmt = flacvorbis.New()
	}

	setVorbisField(cmt, "ALBUM", album)
	if trackNumber > 0 {
		setVorbisField(cmt, "TRACKNUMBER", strconv.Itoa(trackNumber))
	}

	res := cmt.Marshal()
	if cmtIdx >= 0 {
		f.Meta[cmtIdx] = &res
	} else {
		f.Meta = append(f.Meta, &res)
	}

	if err := f.Save(filePath); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}

	return nil
}

// findVorbisComment returns the parsed Vorbis comment block and its
// index in the metadata list, or (nil, -1) when there is none.
func findVorbisComment(f *flac.File) (*flacvorbis.MetaDataBlockVorbisComment, int) {
	for i, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return nil, -1
			}
			return cmt, i
		}
	}
	return nil, -1
}

// setVorbisField replaces all values of a comment field with one value
func setVorbisField(cmt *flacvorbis.MetaDataBlockVorbisComment, field, value string) {
	if value == "" {
		return
	}

	kept := cmt.Comments[:0]
	prefix := field + "="
	for _, c := range cmt.Comments {
		if !strings.HasPrefix(strings.ToUpper(c), prefix) {
			kept = append(kept, c)
		}
	}
	cmt.Comments = kept
	cmt.Add(field, value)
}

// GetMetadata reads metadata from an audio file
func (m *Manager) GetMetadata(filePath string) (*TrackMetadata, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return m.getMP3Metadata(filePath)
	case ".flac":
		return m.getFLACMetadata(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

// getMP3Metadata reads metadata from an MP3 file
func (m *Manager) getMP3Metadata(filePath string) (*TrackMetadata, error) {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	metadata := &TrackMetadata{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
	}

	if yearStr := tag.Year(); yearStr != "" {
		if year, err := strconv.Atoi(yearStr); err == nil {
			metadata.Year = year
		}
	}

	if frames := tag.GetFrames(tag.CommonID("Track number/Position in set")); len(frames) > 0 {
		if tf, ok := frames[0].(id3v2.TextFrame); ok {
			if trackNum, err := strconv.Atoi(strings.Split(tf.Text, "/")[0]); err == nil {
				metadata.TrackNumber = trackNum
			}
		}
	}

	return metadata, nil
}

// getFLACMetadata reads metadata from a FLAC file
func (m *Manager) getFLACMetadata(filePath string) (*TrackMetadata, error) {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	metadata := &TrackMetadata{}

	cmt, _ := findVorbisComment(f)
	if cmt == nil {
		return metadata, nil
	}

	if titles, err := cmt.Get("TITLE"); err == nil && len(titles) > 0 {
		metadata.Title = titles[0]
	}
	if artists, err := cmt.Get("ARTIST"); err == nil && len(artists) > 0 {
		metadata.Artist = artists[0]
	}
	if albums, err := cmt.Get("ALBUM"); err == nil && len(albums) > 0 {
		metadata.Album = albums[0]
	}
	if dates, err := cmt.Get("DATE"); err == nil && len(dates) > 0 {
		if year, err := strconv.Atoi(dates[0]); err == nil {
			metadata.Year = year
		}
	}
	if trackNums, err := cmt.Get("TRACKNUMBER"); err == nil && len(trackNums) > 0 {
		if trackNum, err := strconv.Atoi(trackNums[0]); err == nil {
			metadata.TrackNumber = trackNum
		}
	}

	return metadata, nil
}

// FileExists checks if a file exists
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
