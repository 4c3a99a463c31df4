// Package tagging writes metadata to downloaded FLAC files: vorbis comments
// and an embedded front-cover picture.
package tagging

import (
	"fmt"
	"strconv"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"

	"github.com/tidalarr/tidalarr/internal/constants"
	"github.com/tidalarr/tidalarr/internal/domain"
)

// TagFile rewrites the metadata blocks of the FLAC file at path from the
// album, track, and stream info. Existing vorbis comments and pictures are
// replaced; audio frames are untouched.
func TagFile(path string, album *domain.Album, track *domain.Track, stream *domain.Stream, lyrics string) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	cmt, err := buildComment(album, track, stream, lyrics)
	if err != nil {
		return err
	}

	// Drop stale comment and picture blocks, keep everything else.
	meta := f.Meta[:0]
	for _, block := range f.Meta {
		if block.Type == flac.VorbisComment || block.Type == flac.Picture {
			continue
		}
		meta = append(meta, block)
	}
	f.Meta = meta

	cmtBlock := cmt.Marshal()
	f.Meta = append(f.Meta, &cmtBlock)

	if len(album.CoverBytes) > 0 {
		cover, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "", album.CoverBytes, constants.MimeTypeJPEG)
		if err != nil {
			return fmt.Errorf("failed to build cover picture block: %w", err)
		}
		coverBlock := cover.Marshal()
		f.Meta = append(f.Meta, &coverBlock)
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}
	return nil
}

func buildComment(album *domain.Album, track *domain.Track, stream *domain.Stream, lyrics string) (*flacvorbis.MetaDataBlockVorbisComment, error) {
	cmt := flacvorbis.New()

	fields := []struct {
		name  string
		value string
	}{
		{flacvorbis.FIELD_TITLE, track.Title},
		{flacvorbis.FIELD_ALBUM, album.Title},
		{flacvorbis.FIELD_ARTIST, track.Artist()},
		{"ALBUMARTIST", album.Artist()},
		{flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(track.TrackNumber)},
		{"TRACKTOTAL", strconv.Itoa(album.NumberOfTracks)},
		{flacvorbis.FIELD_DATE, album.ReleaseDate},
		{flacvorbis.FIELD_ISRC, track.ISRC},
		{"REPLAYGAIN_TRACK_GAIN", replayGain(track.ReplayGain, stream.TrackReplayGain)},
		{"REPLAYGAIN_TRACK_PEAK", peak(track.Peak, stream.TrackPeakAmplitude)},
		{"REPLAYGAIN_ALBUM_GAIN", replayGain(stream.AlbumReplayGain, 0)},
		{"REPLAYGAIN_ALBUM_PEAK", peak(stream.AlbumPeakAmplitude, 0)},
		{"LYRICS", lyrics},
	}

	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if err := cmt.Add(field.name, field.value); err != nil {
			return nil, fmt.Errorf("failed to add %s comment: %w", field.name, err)
		}
	}
	return cmt, nil
}

func replayGain(primary, fallback float64) string {
	gain := primary
	if gain == 0 {
		gain = fallback
	}
	if gain == 0 {
		return ""
	}
	return fmt.Sprintf("%.8f dB", gain)
}

func peak(primary, fallback float64) string {
	p := primary
	if p == 0 {
		p = fallback
	}
	if p == 0 {
		return ""
	}
	return fmt.Sprintf("%.8f", p)
}
