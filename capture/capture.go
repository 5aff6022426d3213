// Package capture feeds still frames into the analysis engine. The engine
// itself owns no capture pipeline; anything that can hand over an
// image.Image implements Source, whether that is a snapshot directory or a
// camera gateway.
package capture

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/images"
)

// Frame is one still handed to the engine, tagged with where and when it
// was captured.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
	Origin     string
}

// Source yields frames one at a time. Next returns io.EOF once the source
// is drained.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// DirectorySource walks the image files of a snapshot directory in lexical
// order. Snapshot services name files by timestamp, so lexical order is
// capture order.
type DirectorySource struct {
	paths []string
	next  int
}

// NewDirectorySource scans dir for image files. Subdirectories and
// non-image files are skipped.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errdefs.Configuration("reading snapshot directory %s: %v", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	return &DirectorySource{paths: paths}, nil
}

// Len reports how many frames the source will yield in total.
func (s *DirectorySource) Len() int { return len(s.paths) }

// Next decodes the next file. The frame's CapturedAt is the file's
// modification time, which for snapshot directories is the capture time.
func (s *DirectorySource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.paths) {
		return Frame{}, io.EOF
	}

	path := s.paths[s.next]
	s.next++

	img, _, err := images.Open(path)
	if err != nil {
		return Frame{}, err
	}

	captured := time.Now()
	if info, statErr := os.Stat(path); statErr == nil {
		captured = info.ModTime()
	}

	return Frame{Image: img, CapturedAt: captured, Origin: path}, nil
}
