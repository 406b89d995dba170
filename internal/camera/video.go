package camera

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
)

var (
	// ErrNoStream is returned by WaitReady and Play when no stream is bound.
	ErrNoStream = errors.New("camera: no stream bound to video")
	// ErrNotReady is returned by Play before WaitReady succeeded.
	ErrNotReady = errors.New("camera: video not ready")
)

// VideoTarget is the consumer a stream is bound to before decoding starts.
// SetSource, WaitReady and Play must be called in that order.
type VideoTarget interface {
	SetSource(s Stream)
	WaitReady(ctx context.Context) error
	Play() error
	ClearSource()
	// Frame returns the latest frame and its sequence number.
	Frame() (image.Image, uint64)
}

// Video keeps the most recent frame of its bound stream.
type Video struct {
	mu      sync.Mutex
	src     Stream
	frame   image.Image
	seq     uint64
	ready   bool
	playing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ VideoTarget = (*Video)(nil)

// NewVideo returns an empty video target.
func NewVideo() *Video {
	return &Video{}
}

// SetSource binds s, replacing and detaching any previous stream.
func (v *Video) SetSource(s Stream) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detachLocked()
	v.src = s
}

// WaitReady reads the first frame, so that Frame returns something as soon
// as Play is called.
func (v *Video) WaitReady(ctx context.Context) error {
	v.mu.Lock()
	src := v.src
	v.mu.Unlock()
	if src == nil {
		return ErrNoStream
	}

	img, err := src.ReadFrame(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.src != src {
		return ErrNoStream
	}
	v.frame = img
	v.seq++
	v.ready = true
	return nil
}

// Play starts pumping frames from the bound stream.
func (v *Video) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.src == nil {
		return ErrNoStream
	}
	if !v.ready {
		return ErrNotReady
	}
	if v.playing {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.done = make(chan struct{})
	v.playing = true
	go v.pump(ctx, v.src, v.done)
	return nil
}

// ClearSource detaches the stream. It does not stop its tracks.
func (v *Video) ClearSource() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detachLocked()
}

// Frame returns the latest frame and a sequence number that increases with
// every new frame.
func (v *Video) Frame() (image.Image, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame, v.seq
}

// Source returns the bound stream, or nil.
func (v *Video) Source() Stream {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.src
}

// Done is closed when the frame pump exits. It is nil before Play.
func (v *Video) Done() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.done
}

func (v *Video) detachLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.src = nil
	v.frame = nil
	v.ready = false
	v.playing = false
}

func (v *Video) pump(ctx context.Context, src Stream, done chan struct{}) {
	defer close(done)
	for {
		img, err := src.ReadFrame(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, ErrStreamClosed):
			case errors.Is(err, io.EOF):
				slog.Debug("Video source exhausted")
			default:
				slog.Warn("Video source failed", "error", err)
			}
			return
		}

		v.mu.Lock()
		if v.src != src {
			v.mu.Unlock()
			return
		}
		v.frame = img
		v.seq++
		v.mu.Unlock()
	}
}
