// Package storage is the filesystem sink for downloaded audio: path layout,
// atomic track writes, and cleanup.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tidalarr/tidalarr/internal/constants"
	"github.com/tidalarr/tidalarr/internal/domain"
	"github.com/tidalarr/tidalarr/internal/logger"
	"github.com/tidalarr/tidalarr/internal/tagging"
)

// ErrPermanent marks write failures that retrying cannot fix: bad paths,
// permissions, read-only or full filesystems.
var ErrPermanent = domain.ErrPermanentWrite

// Sink writes tracks under a base downloads directory.
type Sink struct {
	baseDir string
	log     *logger.Logger
}

// NewSink creates a sink rooted at baseDir.
func NewSink(baseDir string, log *logger.Logger) *Sink {
	if log == nil {
		log = logger.Default()
	}
	return &Sink{
		baseDir: baseDir,
		log:     log.WithComponent("storage"),
	}
}

// Sanitize strips characters that are invalid in filesystem paths.
func Sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(constants.InvalidPathChars, r) {
			return -1
		}
		return r
	}, s)

	return strings.TrimRight(mapped, ". ")
}

// AlbumFolder returns the album's folder relative to the downloads dir,
// laid out as "Artist/Album".
func AlbumFolder(album *domain.Album) string {
	return filepath.Join(Sanitize(album.Artist()), Sanitize(album.Title))
}

// TrackFileName returns the file name for a track: "NN - Title.flac".
func TrackFileName(track *domain.Track) string {
	return fmt.Sprintf("%02d - %s%s", track.TrackNumber, Sanitize(track.Title), constants.ExtFLAC)
}

// WriteTrack streams a track to its final location. The audio goes to a temp
// file first, gets tagged there, and is renamed into place only when complete,
// so an interrupted download never leaves a partial file behind. An already
// existing file is kept as-is.
func (s *Sink) WriteTrack(album *domain.Album, track *domain.Track, stream *domain.Stream, lyrics string, r io.Reader) (string, error) {
	folder := filepath.Join(s.baseDir, AlbumFolder(album))
	if err := os.MkdirAll(folder, constants.DirPermissions); err != nil {
		return "", classify("failed to create album folder", err)
	}

	finalPath := filepath.Join(folder, TrackFileName(track))
	if _, err := os.Stat(finalPath); err == nil {
		s.log.Info("File exists, skipping", "path", finalPath)
		return finalPath, nil
	}

	tmp, err := os.CreateTemp(folder, "*"+constants.ExtFLAC+".tmp")
	if err != nil {
		return "", classify("failed to create temp file", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", classify("failed to write track data", err)
	}
	if err := tmp.Close(); err != nil {
		return "", classify("failed to close temp file", err)
	}

	// Tagging failure leaves a playable but untagged file; not worth failing
	// the whole album over.
	if err := tagging.TagFile(tmpPath, album, track, stream, lyrics); err != nil {
		s.log.Warn("Failed to tag track", "track", track.Title, "error", err)
	}

	if err := os.Chmod(tmpPath, constants.FilePermissions); err != nil {
		return "", classify("failed to set file permissions", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", classify("failed to move track into place", err)
	}

	success = true
	s.log.Info("Saved track", "path", finalPath)
	return finalPath, nil
}

// CleanupEmptyDirs removes empty directories under the downloads dir,
// deepest first. Used after imports have moved files away.
func (s *Sink) CleanupEmptyDirs() {
	var dirs []string
	_ = filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == s.baseDir {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})

	// Children sort after parents, so delete in reverse.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err == nil {
			s.log.Info("Deleted empty directory", "path", dirs[i])
		}
	}
}

// classify wraps err, marking it permanent when a retry cannot succeed.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrInvalid) ||
		errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EROFS) ||
		errors.Is(err, syscall.ENAMETOOLONG) {
		return fmt.Errorf("%s: %w: %v", op, ErrPermanent, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
