package barcode

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrEngineBusy is returned when a decode loop is already attached.
	ErrEngineBusy = errors.New("barcode: engine already decoding")

	// ErrNoDevice is returned by DecodeFromDevice when the engine has no way
	// to open a capture device of its own.
	ErrNoDevice = errors.New("barcode: engine has no device opener")
)

// DefaultInterval is the pause between two decode attempts on a live source.
const DefaultInterval = 100 * time.Millisecond

// FrameSource exposes the most recent frame of a playing video.
// The sequence number increases whenever a new frame arrives.
type FrameSource interface {
	Frame() (image.Image, uint64)
}

// DecodeFunc receives the outcome of every decode attempt, in frame order.
// err is ErrNotFound when the frame held no symbol.
type DecodeFunc func(res Result, err error)

// DeviceOpener opens a capture device chosen by the engine. The returned
// release func is called once the decode loop ends.
type DeviceOpener func(ctx context.Context, deviceID string) (FrameSource, func(), error)

// Engine is the decoder surface the scan session drives.
type Engine interface {
	// DecodeFromVideo decodes src continuously until Reset.
	DecodeFromVideo(src FrameSource, fn DecodeFunc) error
	// DecodeFromDevice opens a device itself and decodes it until Reset.
	DecodeFromDevice(ctx context.Context, deviceID string, fn DecodeFunc) error
	// DecodeImage runs a single exhaustive pass over img.
	DecodeImage(ctx context.Context, img image.Image) ([]Result, error)
	// Reset stops any running loop and releases engine-owned devices.
	// It does not wait for the loop to exit.
	Reset()
}

// EngineOption configures a ContinuousEngine.
type EngineOption func(*ContinuousEngine)

// WithInterval sets the pause between decode attempts.
func WithInterval(d time.Duration) EngineOption {
	return func(e *ContinuousEngine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithOptions sets the backend options used for live frames.
func WithOptions(opts Options) EngineOption {
	return func(e *ContinuousEngine) { e.opts = opts }
}

// WithDeviceOpener enables DecodeFromDevice.
func WithDeviceOpener(open DeviceOpener) EngineOption {
	return func(e *ContinuousEngine) { e.opener = open }
}

// ContinuousEngine polls a FrameSource on a ticker and hands each new frame
// to a Backend.
type ContinuousEngine struct {
	backend  Backend
	opts     Options
	interval time.Duration
	opener   DeviceOpener

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Engine = (*ContinuousEngine)(nil)

// NewEngine creates an engine on top of backend. A nil backend selects the default.
func NewEngine(backend Backend, opts ...EngineOption) *ContinuousEngine {
	if backend == nil {
		backend = NewBackend()
	}
	e := &ContinuousEngine{
		backend:  backend,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DecodeFromVideo starts the decode loop over src.
func (e *ContinuousEngine) DecodeFromVideo(src FrameSource, fn DecodeFunc) error {
	if src == nil {
		return errors.New("barcode: nil frame source")
	}
	ctx, done, err := e.begin()
	if err != nil {
		return err
	}
	go e.loop(ctx, done, src, fn, nil)
	return nil
}

// DecodeFromDevice opens deviceID through the configured opener and starts
// the decode loop over it.
func (e *ContinuousEngine) DecodeFromDevice(ctx context.Context, deviceID string, fn DecodeFunc) error {
	if e.opener == nil {
		return ErrNoDevice
	}
	loopCtx, done, err := e.begin()
	if err != nil {
		return err
	}

	src, release, err := e.opener(ctx, deviceID)
	if err != nil {
		e.abort(done)
		return err
	}
	if loopCtx.Err() != nil {
		// Reset raced the open.
		if release != nil {
			release()
		}
		close(done)
		return context.Canceled
	}

	go e.loop(loopCtx, done, src, fn, release)
	return nil
}

// DecodeImage decodes a still image with every symbol reported.
func (e *ContinuousEngine) DecodeImage(ctx context.Context, img image.Image) ([]Result, error) {
	opts := e.opts
	opts.Multi = true
	opts.TryHarder = true
	return e.backend.Decode(ctx, img, opts)
}

// Reset cancels the running loop, if any.
func (e *ContinuousEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Done returns a channel closed when the current loop has exited.
// It is nil when no loop was ever started.
func (e *ContinuousEngine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *ContinuousEngine) begin() (context.Context, chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil, nil, ErrEngineBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	return ctx, e.done, nil
}

func (e *ContinuousEngine) abort(done chan struct{}) {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()
	close(done)
}

func (e *ContinuousEngine) loop(ctx context.Context, done chan struct{}, src FrameSource, fn DecodeFunc, release func()) {
	defer close(done)
	if release != nil {
		defer release()
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, seq := src.Frame()
		if frame == nil || seq == lastSeq {
			continue
		}
		lastSeq = seq

		results, err := e.backend.Decode(ctx, frame, e.opts)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				slog.Debug("Frame decode failed", "seq", seq, "error", err)
			}
			fn(Result{}, err)
			continue
		}
		for _, r := range results {
			if ctx.Err() != nil {
				return
			}
			fn(r, nil)
		}
	}
}
