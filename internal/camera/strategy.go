package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// OutcomeKind classifies the result of one acquisition strategy.
type OutcomeKind int

const (
	// Unavailable means the strategy's API is absent; the next one is tried.
	Unavailable OutcomeKind = iota
	// Failed means the API exists but did not produce a stream.
	Failed
	// Acquired means Stream is ready.
	Acquired
)

func (k OutcomeKind) String() string {
	switch k {
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	case Acquired:
		return "acquired"
	default:
		return "unknown"
	}
}

// Outcome is what a Strategy returns.
type Outcome struct {
	Kind   OutcomeKind
	Stream Stream
	Err    error
}

func unavailable() Outcome      { return Outcome{Kind: Unavailable} }
func failed(err error) Outcome  { return Outcome{Kind: Failed, Err: err} }
func acquired(s Stream) Outcome { return Outcome{Kind: Acquired, Stream: s} }

// Strategy is one way of obtaining a video stream.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, c Constraints) Outcome
}

// ModernStrategy requests a stream through MediaDevices. When the preferred
// constraints are rejected it retries once with the minimal request.
type ModernStrategy struct {
	Devices MediaDevices
}

func (ModernStrategy) Name() string { return "modern" }

func (s ModernStrategy) Acquire(ctx context.Context, c Constraints) Outcome {
	if s.Devices == nil {
		return unavailable()
	}

	stream, err := s.Devices.GetUserMedia(ctx, c)
	if err == nil {
		return acquired(stream)
	}
	if ctx.Err() != nil || c.Minimal() {
		return failed(err)
	}

	slog.Debug("Preferred camera constraints rejected, retrying minimal", "error", err)
	stream, err = s.Devices.GetUserMedia(ctx, Constraints{})
	if err != nil {
		return failed(err)
	}
	return acquired(stream)
}

// LegacyStrategy bridges the callback API to a blocking call.
type LegacyStrategy struct {
	Legacy LegacyMediaDevices
}

func (LegacyStrategy) Name() string { return "legacy" }

func (s LegacyStrategy) Acquire(ctx context.Context, c Constraints) Outcome {
	if s.Legacy == nil {
		return unavailable()
	}

	var (
		mu        sync.Mutex
		abandoned bool
	)
	ch := make(chan Outcome, 1)
	deliver := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			// The caller gave up; a late stream must not leak.
			StopTracks(o.Stream)
			return
		}
		select {
		case ch <- o:
		default:
			StopTracks(o.Stream)
		}
	}

	s.Legacy.GetUserMedia(c,
		func(st Stream) { deliver(acquired(st)) },
		func(err error) { deliver(failed(err)) },
	)

	select {
	case o := <-ch:
		return o
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		mu.Unlock()
		select {
		case o := <-ch:
			return o
		default:
			return failed(ctx.Err())
		}
	}
}

// Chain is an ordered list of strategies. A later strategy is only consulted
// when every earlier one is Unavailable.
type Chain []Strategy

// DefaultChain returns the modern strategy followed by the legacy one.
func DefaultChain(h Host) Chain {
	return Chain{ModernStrategy{Devices: h.Devices}, LegacyStrategy{Legacy: h.Legacy}}
}

// Acquire walks the chain. Each step is bounded by stepTimeout when it is
// positive. When every strategy is unavailable the returned outcome is
// Unavailable.
func (ch Chain) Acquire(ctx context.Context, c Constraints, stepTimeout time.Duration) Outcome {
	for _, s := range ch {
		if err := ctx.Err(); err != nil {
			return failed(err)
		}

		o := ch.step(ctx, s, c, stepTimeout)
		slog.Debug("Camera strategy finished", "strategy", s.Name(), "outcome", o.Kind.String())
		if o.Kind != Unavailable {
			return o
		}
	}
	return unavailable()
}

func (Chain) step(ctx context.Context, s Strategy, c Constraints, timeout time.Duration) Outcome {
	if timeout <= 0 {
		return s.Acquire(ctx, c)
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	o := s.Acquire(stepCtx, c)
	if o.Kind == Failed && errors.Is(o.Err, context.DeadlineExceeded) && ctx.Err() == nil {
		slog.Warn("Camera strategy timed out", "strategy", s.Name(), "timeout", timeout)
	}
	return o
}
