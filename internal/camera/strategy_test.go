package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevices struct {
	mu    sync.Mutex
	calls []Constraints
	reply func(c Constraints) (Stream, error)
}

func (f *fakeDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return f.reply(c)
}

type fakeLegacy struct {
	delay  time.Duration
	stream Stream
	err    error
}

func (f *fakeLegacy) GetUserMedia(_ Constraints, onSuccess func(Stream), onError func(error)) {
	go func() {
		time.Sleep(f.delay)
		if f.err != nil {
			onError(f.err)
			return
		}
		onSuccess(f.stream)
	}()
}

var preferred = Constraints{FacingMode: FacingEnvironment, Width: 1280, Height: 720}

func TestModernStrategy(t *testing.T) {
	t.Run("absent API is unavailable", func(t *testing.T) {
		o := ModernStrategy{}.Acquire(context.Background(), preferred)
		assert.Equal(t, Unavailable, o.Kind)
	})

	t.Run("preferred constraints accepted", func(t *testing.T) {
		s := NewChanStream("cam", 1)
		dev := &fakeDevices{reply: func(Constraints) (Stream, error) { return s, nil }}
		o := ModernStrategy{Devices: dev}.Acquire(context.Background(), preferred)
		require.Equal(t, Acquired, o.Kind)
		assert.Same(t, s, o.Stream)
		assert.Equal(t, []Constraints{preferred}, dev.calls)
	})

	t.Run("rejection retries once with minimal constraints", func(t *testing.T) {
		s := NewChanStream("cam", 1)
		dev := &fakeDevices{reply: func(c Constraints) (Stream, error) {
			if !c.Minimal() {
				return nil, &OverconstrainedError{Constraint: "facingMode"}
			}
			return s, nil
		}}
		o := ModernStrategy{Devices: dev}.Acquire(context.Background(), preferred)
		require.Equal(t, Acquired, o.Kind)
		assert.Equal(t, []Constraints{preferred, {}}, dev.calls)
	})

	t.Run("both attempts rejected", func(t *testing.T) {
		denied := errors.New("permission denied")
		dev := &fakeDevices{reply: func(Constraints) (Stream, error) { return nil, denied }}
		o := ModernStrategy{Devices: dev}.Acquire(context.Background(), preferred)
		assert.Equal(t, Failed, o.Kind)
		assert.ErrorIs(t, o.Err, denied)
		assert.Len(t, dev.calls, 2)
	})

	t.Run("minimal request is not retried", func(t *testing.T) {
		dev := &fakeDevices{reply: func(Constraints) (Stream, error) { return nil, errors.New("busy") }}
		o := ModernStrategy{Devices: dev}.Acquire(context.Background(), Constraints{})
		assert.Equal(t, Failed, o.Kind)
		assert.Len(t, dev.calls, 1)
	})
}

func TestLegacyStrategy(t *testing.T) {
	t.Run("absent API is unavailable", func(t *testing.T) {
		o := LegacyStrategy{}.Acquire(context.Background(), preferred)
		assert.Equal(t, Unavailable, o.Kind)
	})

	t.Run("success callback", func(t *testing.T) {
		s := NewChanStream("legacy", 1)
		o := LegacyStrategy{Legacy: &fakeLegacy{stream: s}}.Acquire(context.Background(), preferred)
		require.Equal(t, Acquired, o.Kind)
		assert.Same(t, s, o.Stream)
	})

	t.Run("error callback", func(t *testing.T) {
		denied := errors.New("denied")
		o := LegacyStrategy{Legacy: &fakeLegacy{err: denied}}.Acquire(context.Background(), preferred)
		assert.Equal(t, Failed, o.Kind)
		assert.ErrorIs(t, o.Err, denied)
	})

	t.Run("late stream is stopped after cancellation", func(t *testing.T) {
		s := NewChanStream("late", 1)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		o := LegacyStrategy{Legacy: &fakeLegacy{stream: s, delay: 50 * time.Millisecond}}.Acquire(ctx, preferred)
		assert.Equal(t, Failed, o.Kind)
		assert.ErrorIs(t, o.Err, context.DeadlineExceeded)
		assert.Eventually(t, func() bool { return s.Tracks()[0].Stopped() }, time.Second, 5*time.Millisecond)
	})
}

func TestChain(t *testing.T) {
	t.Run("falls through to legacy only when modern is absent", func(t *testing.T) {
		s := NewChanStream("legacy", 1)
		o := DefaultChain(Host{Legacy: &fakeLegacy{stream: s}}).Acquire(context.Background(), preferred, 0)
		require.Equal(t, Acquired, o.Kind)
		assert.Same(t, s, o.Stream)
	})

	t.Run("present but failing modern API stops the chain", func(t *testing.T) {
		legacy := NewChanStream("legacy", 1)
		dev := &fakeDevices{reply: func(Constraints) (Stream, error) { return nil, errors.New("denied") }}
		o := DefaultChain(Host{Devices: dev, Legacy: &fakeLegacy{stream: legacy}}).Acquire(context.Background(), preferred, 0)
		assert.Equal(t, Failed, o.Kind)
	})

	t.Run("nothing available", func(t *testing.T) {
		o := DefaultChain(Host{}).Acquire(context.Background(), preferred, time.Second)
		assert.Equal(t, Unavailable, o.Kind)
	})

	t.Run("step timeout bounds a hanging strategy", func(t *testing.T) {
		hang := &blockingDevices{}
		start := time.Now()
		o := DefaultChain(Host{Devices: hang}).Acquire(context.Background(), preferred, 20*time.Millisecond)
		assert.Equal(t, Failed, o.Kind)
		assert.ErrorIs(t, o.Err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("canceled context fails before any strategy", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		o := DefaultChain(Host{}).Acquire(ctx, preferred, 0)
		assert.Equal(t, Failed, o.Kind)
		assert.ErrorIs(t, o.Err, context.Canceled)
	})
}

// blockingDevices honors ctx and never returns a stream.
type blockingDevices struct{}

func (blockingDevices) GetUserMedia(ctx context.Context, _ Constraints) (Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "acquired", Acquired.String())
	assert.Equal(t, "unknown", OutcomeKind(7).String())
}
