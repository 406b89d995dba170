package camera

import (
	"context"
	"image"
)

// ChanStream is fed frames by its owner, for example a websocket client
// uploading camera snapshots.
type ChanStream struct {
	closer
	track  *Track
	frames chan image.Image
}

// NewChanStream creates a stream buffering up to buffer frames.
func NewChanStream(label string, buffer int) *ChanStream {
	if buffer < 1 {
		buffer = 1
	}
	s := &ChanStream{closer: newCloser(), frames: make(chan image.Image, buffer)}
	s.track = NewTrack(TrackVideo, label, s.close)
	return s
}

func (s *ChanStream) Tracks() []*Track { return []*Track{s.track} }

// Push offers a frame. It reports false when the frame was dropped because
// the buffer is full or the stream is closed.
func (s *ChanStream) Push(img image.Image) bool {
	if img == nil || s.isClosed() {
		return false
	}
	select {
	case s.frames <- img:
		return true
	default:
		return false
	}
}

// Close stops the stream's track.
func (s *ChanStream) Close() { s.track.Stop() }

func (s *ChanStream) ReadFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrStreamClosed
	case img := <-s.frames:
		return img, nil
	}
}
