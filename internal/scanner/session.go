// Package scanner drives a book barcode scan: it acquires a camera stream
// through the camera fallback chain, attaches a decode engine and turns
// decoded text into canonical ISBN-13 keys for the caller.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/bookscan/internal/barcode"
	"github.com/MeKo-Tech/bookscan/internal/camera"
	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/pdf"
	"github.com/MeKo-Tech/bookscan/internal/utils"
)

// DefaultAcquireTimeout bounds each step of the acquisition chain.
const DefaultAcquireTimeout = 10 * time.Second

// EngineFactory creates the decode engine for one session run or image scan.
type EngineFactory func() barcode.Engine

// Options configures a Session.
type Options struct {
	// Host lists the device APIs present. Ignored when Chain is set.
	Host camera.Host
	// Chain overrides the default modern-then-legacy strategy chain.
	Chain camera.Chain
	// NewEngine creates decode engines. Defaults to a gozxing engine
	// restricted to book symbologies.
	NewEngine EngineFactory
	// Constraints is the preferred stream request.
	Constraints camera.Constraints
	// AcquireTimeout bounds each strategy. Zero disables the bound.
	AcquireTimeout time.Duration
	// DeviceID is passed to the engine when it must pick a device itself.
	DeviceID string
	// Image bounds still images before decoding.
	Image utils.ImageConstraints
	// PDFPages selects the pages of PDF input; empty means all.
	PDFPages string
	// PDFPassword opens encrypted PDF input.
	PDFPassword string

	OnSuccess func(isbn string)
	OnError   func(err error)
}

// DefaultOptions requests the rear camera at 720p.
func DefaultOptions() Options {
	return Options{
		Constraints:    camera.Constraints{FacingMode: camera.FacingEnvironment, Width: 1280, Height: 720},
		AcquireTimeout: DefaultAcquireTimeout,
		Image:          utils.DefaultImageConstraints(),
	}
}

func (o Options) pdfCredentials() *pdf.Credentials {
	if o.PDFPassword == "" {
		return nil
	}
	return &pdf.Credentials{UserPassword: o.PDFPassword, OwnerPassword: o.PDFPassword}
}

// DefaultEngineFactory returns engines decoding book symbologies with the
// default backend.
func DefaultEngineFactory(opts ...barcode.EngineOption) EngineFactory {
	return func() barcode.Engine {
		all := append([]barcode.EngineOption{
			barcode.WithOptions(barcode.Options{Formats: barcode.BookFormats()}),
		}, opts...)
		return barcode.NewEngine(nil, all...)
	}
}

// Session owns one camera stream and one decode engine at a time.
// Start and Stop must not be called concurrently with each other from
// several goroutines; Stop is safe from any goroutine, including handlers.
type Session struct {
	id    string
	opts  Options
	chain camera.Chain

	mu            sync.Mutex
	active        bool
	generation    uint64
	media         camera.Stream
	decoder       barcode.Engine
	target        camera.VideoTarget
	cancelAcquire context.CancelFunc
	onSuccess     func(string)
	onError       func(error)
}

// New creates an inactive session.
func New(opts Options) *Session {
	if opts.NewEngine == nil {
		opts.NewEngine = DefaultEngineFactory()
	}
	if opts.Image == (utils.ImageConstraints{}) {
		opts.Image = utils.DefaultImageConstraints()
	}
	chain := opts.Chain
	if chain == nil {
		chain = camera.DefaultChain(opts.Host)
	}
	return &Session{
		id:        uuid.NewString(),
		opts:      opts,
		chain:     chain,
		onSuccess: opts.OnSuccess,
		onError:   opts.OnError,
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// SetHandlers replaces the success and error handlers.
func (s *Session) SetHandlers(onSuccess func(isbn string), onError func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSuccess = onSuccess
	s.onError = onError
}

// Active reports whether the session is between Start and Stop.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start acquires a stream, binds it to target and attaches a decode engine.
// A nil target gets an internal camera.Video. When no device API is present
// the engine is asked to open a device itself.
func (s *Session) Start(ctx context.Context, target camera.VideoTarget) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.active = true
	s.generation++
	gen := s.generation
	acqCtx, cancel := context.WithCancel(ctx)
	s.cancelAcquire = cancel
	s.mu.Unlock()
	defer cancel()

	sessionsActive.Inc()
	log := slog.With("session", s.id)
	log.Debug("Starting scan session")

	outcome := s.chain.Acquire(acqCtx, s.opts.Constraints, s.opts.AcquireTimeout)
	var err error
	switch outcome.Kind {
	case camera.Acquired:
		err = s.attachStream(acqCtx, gen, outcome.Stream, target)
	case camera.Unavailable:
		err = s.attachDevice(acqCtx, gen)
	default:
		err = s.abort(gen, &DeviceUnavailableError{Err: outcome.Err})
	}

	switch {
	case err == nil:
		s.mu.Lock()
		if s.generation == gen {
			s.cancelAcquire = nil
		}
		s.mu.Unlock()
		log.Info("Scan session started", "source", outcome.Kind.String())
	case errors.Is(err, ErrStopped):
		acquisitionsTotal.WithLabelValues("stopped").Inc()
		log.Debug("Scan session stopped during start")
	default:
		acquisitionsTotal.WithLabelValues("failed").Inc()
		log.Warn("Scan session failed to start", "error", err)
	}
	return err
}

func (s *Session) attachStream(ctx context.Context, gen uint64, stream camera.Stream, target camera.VideoTarget) error {
	if target == nil {
		target = camera.NewVideo()
	}

	s.mu.Lock()
	if !s.currentLocked(gen) {
		s.mu.Unlock()
		camera.StopTracks(stream)
		return ErrStopped
	}
	s.media = stream
	s.target = target
	target.SetSource(stream)
	s.mu.Unlock()

	if err := target.WaitReady(ctx); err != nil {
		return s.abort(gen, &DeviceUnavailableError{Err: fmt.Errorf("wait for first frame: %w", err)})
	}
	if err := target.Play(); err != nil {
		return s.abort(gen, &DeviceUnavailableError{Err: fmt.Errorf("play video: %w", err)})
	}

	engine, err := s.registerEngine(gen)
	if err != nil {
		return err
	}
	if err := engine.DecodeFromVideo(target, s.dispatch(gen)); err != nil {
		return s.abort(gen, fmt.Errorf("attach decoder: %w", err))
	}
	if err := s.confirm(gen, engine); err != nil {
		return err
	}
	acquisitionsTotal.WithLabelValues("stream").Inc()
	return nil
}

func (s *Session) attachDevice(ctx context.Context, gen uint64) error {
	engine, err := s.registerEngine(gen)
	if err != nil {
		return err
	}
	if err := engine.DecodeFromDevice(ctx, s.opts.DeviceID, s.dispatch(gen)); err != nil {
		return s.abort(gen, &DeviceUnavailableError{Err: err})
	}
	if err := s.confirm(gen, engine); err != nil {
		return err
	}
	acquisitionsTotal.WithLabelValues("engine").Inc()
	return nil
}

func (s *Session) registerEngine(gen uint64) (barcode.Engine, error) {
	engine := s.opts.NewEngine()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) {
		return nil, ErrStopped
	}
	s.decoder = engine
	return engine, nil
}

// confirm catches a Stop that ran between registering the engine and the
// engine starting its loop; that Stop's Reset came too early.
func (s *Session) confirm(gen uint64, engine barcode.Engine) error {
	s.mu.Lock()
	current := s.currentLocked(gen)
	s.mu.Unlock()
	if !current {
		engine.Reset()
		return ErrStopped
	}
	return nil
}

// abort releases everything the run identified by gen acquired. When Stop
// already did so it reports ErrStopped instead of cause.
func (s *Session) abort(gen uint64, cause error) error {
	s.mu.Lock()
	if !s.currentLocked(gen) {
		s.mu.Unlock()
		return ErrStopped
	}
	media, decoder, target := s.clearLocked()
	s.mu.Unlock()

	sessionsActive.Dec()
	release(media, decoder, target)
	return cause
}

// Stop tears the session down. It is idempotent and never fails.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	cancel := s.cancelAcquire
	media, decoder, target := s.clearLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sessionsActive.Dec()
	release(media, decoder, target)
	slog.Debug("Scan session stopped", "session", s.id)
}

func (s *Session) currentLocked(gen uint64) bool {
	return s.active && s.generation == gen
}

func (s *Session) clearLocked() (camera.Stream, barcode.Engine, camera.VideoTarget) {
	media, decoder, target := s.media, s.decoder, s.target
	s.active = false
	s.generation++
	s.media = nil
	s.decoder = nil
	s.target = nil
	s.cancelAcquire = nil
	return media, decoder, target
}

func release(media camera.Stream, decoder barcode.Engine, target camera.VideoTarget) {
	if decoder != nil {
		decoder.Reset()
	}
	camera.StopTracks(media)
	if target != nil {
		target.ClearSource()
	}
}

// dispatch routes engine events of run gen to the handlers. Events of an
// older run, or arriving after Stop, are dropped.
func (s *Session) dispatch(gen uint64) barcode.DecodeFunc {
	return func(res barcode.Result, err error) {
		s.mu.Lock()
		live := s.currentLocked(gen)
		onSuccess, onError := s.onSuccess, s.onError
		s.mu.Unlock()
		if !live {
			return
		}

		if err != nil {
			if errors.Is(err, barcode.ErrNotFound) {
				decodeEventsTotal.WithLabelValues("no_symbol").Inc()
				return
			}
			decodeEventsTotal.WithLabelValues("error").Inc()
			if onError != nil {
				onError(&DecodeEngineError{Err: err})
			}
			return
		}

		key, ok := isbn.Extract(res.Value)
		if !ok {
			decodeEventsTotal.WithLabelValues("ignored").Inc()
			slog.Debug("Ignoring non-ISBN barcode", "session", s.id, "text", res.Value, "format", res.Type.String())
			return
		}
		decodeEventsTotal.WithLabelValues("isbn").Inc()
		if onSuccess != nil {
			onSuccess(key)
		}
	}
}
