package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// DirStream replays the images of a directory, in name order, as frames.
type DirStream struct {
	closer
	track    *Track
	files    []string
	interval time.Duration
	loop     bool

	mu   sync.Mutex
	next int
	last time.Time
}

// NewDirStream lists dir and returns a stream delivering fps frames per
// second. fps <= 0 delivers frames as fast as they are read.
func NewDirStream(label, dir string, fps int, loop bool) (*DirStream, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image frames in %s", dir)
	}
	slices.Sort(files)

	s := &DirStream{closer: newCloser(), files: files, loop: loop}
	if fps > 0 {
		s.interval = time.Second / time.Duration(fps)
	}
	if label == "" {
		label = filepath.Base(dir)
	}
	s.track = NewTrack(TrackVideo, label, s.close)
	return s, nil
}

func (s *DirStream) Tracks() []*Track { return []*Track{s.track} }

// ReadFrame paces and decodes the next file.
func (s *DirStream) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return nil, ErrStreamClosed
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return nil, io.EOF
		}
		s.next = 0
	}

	if s.interval > 0 && !s.last.IsZero() {
		if wait := time.Until(s.last.Add(s.interval)); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.closed:
				return nil, ErrStreamClosed
			case <-timer.C:
			}
		}
	}

	path := s.files[s.next]
	s.next++
	s.last = time.Now()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
