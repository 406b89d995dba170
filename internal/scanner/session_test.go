package scanner

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/bookscan/internal/barcode"
	"github.com/MeKo-Tech/bookscan/internal/camera"
	"github.com/MeKo-Tech/bookscan/internal/testutil"
)

// fakeEngine captures the decode callback so tests can fire events by hand.
type fakeEngine struct {
	mu          sync.Mutex
	fn          barcode.DecodeFunc
	src         barcode.FrameSource
	resets      int
	deviceID    string
	videoErr    error
	deviceErr   error
	deviceCalls int
}

func (e *fakeEngine) DecodeFromVideo(src barcode.FrameSource, fn barcode.DecodeFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.videoErr != nil {
		return e.videoErr
	}
	e.src, e.fn = src, fn
	return nil
}

func (e *fakeEngine) DecodeFromDevice(_ context.Context, id string, fn barcode.DecodeFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deviceCalls++
	e.deviceID = id
	if e.deviceErr != nil {
		return e.deviceErr
	}
	e.fn = fn
	return nil
}

func (e *fakeEngine) DecodeImage(context.Context, image.Image) ([]barcode.Result, error) {
	return nil, barcode.ErrNotFound
}

func (e *fakeEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
}

func (e *fakeEngine) emit(value string, err error) {
	e.mu.Lock()
	fn := e.fn
	e.mu.Unlock()
	fn(barcode.Result{Type: barcode.FormatEAN13, Value: value}, err)
}

func (e *fakeEngine) resetCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

// devices hands out ready-to-play chan streams and remembers them.
type devices struct {
	mu      sync.Mutex
	streams []*camera.ChanStream
	err     error
}

func (d *devices) GetUserMedia(context.Context, camera.Constraints) (camera.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := camera.NewChanStream("fake", 4)
	s.Push(image.NewGray(image.Rect(0, 0, 4, 4)))
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *devices) last() *camera.ChanStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type blockingDevices struct{ entered chan struct{} }

func (b blockingDevices) GetUserMedia(ctx context.Context, _ camera.Constraints) (camera.Stream, error) {
	close(b.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

type recorder struct {
	mu   sync.Mutex
	keys []string
	errs []error
}

func (r *recorder) success(k string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, k)
}

func (r *recorder) failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...), append([]error(nil), r.errs...)
}

func newTestSession(host camera.Host, engines ...*fakeEngine) (*Session, *recorder) {
	rec := &recorder{}
	var mu sync.Mutex
	next := 0
	opts := DefaultOptions()
	opts.Host = host
	opts.NewEngine = func() barcode.Engine {
		mu.Lock()
		defer mu.Unlock()
		e := engines[next]
		next++
		return e
	}
	opts.OnSuccess = rec.success
	opts.OnError = rec.failure
	return New(opts), rec
}

func TestSession_StopBeforeStartAndTwice(t *testing.T) {
	s, _ := newTestSession(camera.Host{})
	assert.NotPanics(t, s.Stop)
	assert.NotPanics(t, s.Stop)
	assert.False(t, s.Active())
	assert.NotEmpty(t, s.ID())
}

func TestSession_RoutesDecodeEvents(t *testing.T) {
	dev := &devices{}
	engine := &fakeEngine{}
	s, rec := newTestSession(camera.Host{Devices: dev}, engine)
	video := camera.NewVideo()

	require.NoError(t, s.Start(context.Background(), video))
	assert.True(t, s.Active())
	assert.Same(t, video, engine.src)

	engine.emit("978-4-06-131336-1", nil)
	engine.emit("", barcode.ErrNotFound)
	engine.emit("4901234567894", nil)
	engine.emit("4061313363", nil)
	engine.emit("", errors.New("decoder crashed"))
	engine.emit("9784061313361", nil)

	keys, errs := rec.snapshot()
	assert.Equal(t, []string{"9784061313361", "9784061313361", "9784061313361"}, keys)
	require.Len(t, errs, 1)
	var dee *DecodeEngineError
	require.ErrorAs(t, errs[0], &dee)
	assert.EqualError(t, dee.Err, "decoder crashed")

	s.Stop()
}

func TestSession_StopReleasesEverything(t *testing.T) {
	dev := &devices{}
	engine := &fakeEngine{}
	s, rec := newTestSession(camera.Host{Devices: dev}, engine)
	video := camera.NewVideo()

	require.NoError(t, s.Start(context.Background(), video))
	stream := dev.last()
	s.Stop()

	assert.False(t, s.Active())
	assert.Equal(t, 1, engine.resetCount())
	assert.True(t, stream.Tracks()[0].Stopped())
	assert.Nil(t, video.Source())

	s.mu.Lock()
	assert.Nil(t, s.media)
	assert.Nil(t, s.decoder)
	assert.Nil(t, s.target)
	s.mu.Unlock()

	engine.emit("9784061313361", nil)
	engine.emit("", errors.New("late failure"))
	keys, errs := rec.snapshot()
	assert.Empty(t, keys)
	assert.Empty(t, errs)

	s.Stop()
	assert.Equal(t, 1, engine.resetCount())
}

func TestSession_RejectsReentrantStart(t *testing.T) {
	dev := &devices{}
	engine := &fakeEngine{}
	s, _ := newTestSession(camera.Host{Devices: dev}, engine)

	require.NoError(t, s.Start(context.Background(), nil))
	assert.ErrorIs(t, s.Start(context.Background(), nil), ErrAlreadyActive)
	assert.Len(t, dev.streams, 1)
	assert.False(t, dev.last().Tracks()[0].Stopped())
	s.Stop()
}

func TestSession_RestartIgnoresPreviousRun(t *testing.T) {
	dev := &devices{}
	first, second := &fakeEngine{}, &fakeEngine{}
	s, rec := newTestSession(camera.Host{Devices: dev}, first, second)

	require.NoError(t, s.Start(context.Background(), nil))
	s.Stop()
	require.NoError(t, s.Start(context.Background(), nil))

	first.emit("9784061313361", nil)
	second.emit("9780306406157", nil)

	keys, _ := rec.snapshot()
	assert.Equal(t, []string{"9780306406157"}, keys)
	s.Stop()
}

func TestSession_StopFromHandler(t *testing.T) {
	dev := &devices{}
	engine := &fakeEngine{}
	s, _ := newTestSession(camera.Host{Devices: dev}, engine)

	calls := 0
	s.SetHandlers(func(string) {
		calls++
		s.Stop()
	}, nil)

	require.NoError(t, s.Start(context.Background(), nil))
	engine.emit("9784061313361", nil)
	engine.emit("9784061313361", nil)

	assert.Equal(t, 1, calls)
	assert.False(t, s.Active())
}

func TestSession_DeviceFailure(t *testing.T) {
	denied := errors.New("permission denied")
	s, _ := newTestSession(camera.Host{Devices: &devices{err: denied}})

	err := s.Start(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.ErrorIs(t, err, denied)
	var due *DeviceUnavailableError
	assert.ErrorAs(t, err, &due)
	assert.False(t, s.Active())
}

func TestSession_LegacyFallback(t *testing.T) {
	legacyStream := camera.NewChanStream("legacy", 1)
	legacyStream.Push(image.NewGray(image.Rect(0, 0, 2, 2)))
	engine := &fakeEngine{}
	s, rec := newTestSession(camera.Host{Legacy: legacyAPI{stream: legacyStream}}, engine)

	require.NoError(t, s.Start(context.Background(), nil))
	engine.emit("4-06-131336-3", nil)
	keys, _ := rec.snapshot()
	assert.Equal(t, []string{"9784061313361"}, keys)

	s.Stop()
	assert.True(t, legacyStream.Tracks()[0].Stopped())
}

type legacyAPI struct{ stream camera.Stream }

func (l legacyAPI) GetUserMedia(_ camera.Constraints, ok func(camera.Stream), _ func(error)) {
	go ok(l.stream)
}

func TestSession_EngineManagedDevice(t *testing.T) {
	engine := &fakeEngine{}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.DeviceID = "video0"
	opts.NewEngine = func() barcode.Engine { return engine }
	opts.OnSuccess = rec.success
	s := New(opts)

	require.NoError(t, s.Start(context.Background(), nil))
	assert.Equal(t, 1, engine.deviceCalls)
	assert.Equal(t, "video0", engine.deviceID)

	engine.emit("9784061313361", nil)
	keys, _ := rec.snapshot()
	assert.Equal(t, []string{"9784061313361"}, keys)

	s.Stop()
	assert.Equal(t, 1, engine.resetCount())
}

func TestSession_EngineManagedDeviceFailure(t *testing.T) {
	engine := &fakeEngine{deviceErr: barcode.ErrNoDevice}
	s, _ := newTestSession(camera.Host{}, engine)

	err := s.Start(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.ErrorIs(t, err, barcode.ErrNoDevice)
	assert.False(t, s.Active())
	assert.Equal(t, 1, engine.resetCount())
}

func TestSession_AttachFailureReleasesStream(t *testing.T) {
	dev := &devices{}
	engine := &fakeEngine{videoErr: barcode.ErrEngineBusy}
	s, _ := newTestSession(camera.Host{Devices: dev}, engine)
	video := camera.NewVideo()

	err := s.Start(context.Background(), video)
	assert.ErrorIs(t, err, barcode.ErrEngineBusy)
	assert.False(t, s.Active())
	assert.True(t, dev.last().Tracks()[0].Stopped())
	assert.Nil(t, video.Source())
}

func TestSession_StopDuringAcquisition(t *testing.T) {
	entered := make(chan struct{})
	s, _ := newTestSession(camera.Host{Devices: blockingDevices{entered: entered}})

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background(), nil) }()

	<-entered
	s.Stop()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.False(t, s.Active())
}

func TestSession_AcquireTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.Host = camera.Host{Devices: blockingDevices{entered: make(chan struct{})}}
	opts.AcquireTimeout = 20 * time.Millisecond
	s := New(opts)

	err := s.Start(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Active())
}

func TestSession_FirstFrameFailure(t *testing.T) {
	closed := camera.NewChanStream("dead", 1)
	closed.Close()
	s, _ := newTestSession(camera.Host{Legacy: legacyAPI{stream: closed}}, &fakeEngine{})

	err := s.Start(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.ErrorIs(t, err, camera.ErrStreamClosed)
	assert.False(t, s.Active())
}

func TestSession_LiveDirectorySource(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping live decode test in short mode")
	}
	dir := t.TempDir()
	testutil.SaveImage(t, testutil.BlankImage(320, 120), dir, "000.png")
	testutil.SaveImage(t, testutil.EAN13Image(t, testutil.JANCode), dir, "001.png")
	testutil.SaveImage(t, testutil.EAN13Image(t, testutil.BookISBN13), dir, "002.png")

	reg := camera.NewRegistry([]camera.SourceConfig{{Name: "shelf", Dir: dir, FPS: 30, Loop: true}})
	found := make(chan string, 8)
	opts := DefaultOptions()
	opts.Host = camera.Host{Devices: reg}
	opts.NewEngine = DefaultEngineFactory(barcode.WithInterval(5 * time.Millisecond))
	opts.OnSuccess = func(key string) {
		select {
		case found <- key:
		default:
		}
	}
	s := New(opts)

	require.NoError(t, s.Start(context.Background(), nil))
	defer s.Stop()

	select {
	case key := <-found:
		assert.Equal(t, testutil.BookISBN13, key)
	case <-time.After(5 * time.Second):
		t.Fatal("no ISBN decoded from directory source")
	}
}
