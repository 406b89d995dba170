// Package camera provides the video sources a scan session acquires and the
// ordered strategies used to acquire them.
//
// A Stream carries one or more Tracks and yields frames. Stopping every track
// releases the underlying device. A Video binds a Stream to a consumer and
// keeps the latest frame available for the decode engine.
package camera

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
)

var (
	// ErrStreamClosed is returned by ReadFrame once the stream's tracks are stopped.
	ErrStreamClosed = errors.New("camera: stream closed")

	// ErrNoSource is returned when no configured source exists at all.
	ErrNoSource = errors.New("camera: no video source configured")
)

// TrackKind is the media kind of a track.
type TrackKind string

const TrackVideo TrackKind = "video"

// Track is a single media track of a stream. Stop is idempotent.
type Track struct {
	kind    TrackKind
	label   string
	stop    func()
	once    sync.Once
	stopped atomic.Bool
}

// NewTrack creates a track whose Stop runs stop exactly once.
func NewTrack(kind TrackKind, label string, stop func()) *Track {
	return &Track{kind: kind, label: label, stop: stop}
}

func (t *Track) Kind() TrackKind { return t.kind }
func (t *Track) Label() string   { return t.label }

// Stop releases the track. Safe to call any number of times.
func (t *Track) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		if t.stop != nil {
			t.stop()
		}
	})
}

// Stopped reports whether Stop has been called.
func (t *Track) Stopped() bool { return t.stopped.Load() }

// Stream is an acquired media stream.
type Stream interface {
	Tracks() []*Track
	// ReadFrame blocks until the next frame is available.
	// It returns io.EOF when a finite source is exhausted.
	ReadFrame(ctx context.Context) (image.Image, error)
}

// StopTracks stops every track of s. A nil stream is ignored.
func StopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// closer is the shared stop plumbing of the concrete streams.
type closer struct {
	once   sync.Once
	closed chan struct{}
}

func newCloser() closer {
	return closer{closed: make(chan struct{})}
}

func (c *closer) close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *closer) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
