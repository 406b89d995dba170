package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SourceConfig describes one configured video source. Exactly one of URL
// and Dir is expected to be set.
type SourceConfig struct {
	Name   string     `mapstructure:"name" yaml:"name" json:"name"`
	URL    string     `mapstructure:"url" yaml:"url,omitempty" json:"url,omitempty"`
	Dir    string     `mapstructure:"dir" yaml:"dir,omitempty" json:"dir,omitempty"`
	Facing FacingMode `mapstructure:"facing" yaml:"facing,omitempty" json:"facing,omitempty"`
	Width  int        `mapstructure:"width" yaml:"width,omitempty" json:"width,omitempty"`
	Height int        `mapstructure:"height" yaml:"height,omitempty" json:"height,omitempty"`
	FPS    int        `mapstructure:"fps" yaml:"fps,omitempty" json:"fps,omitempty"`
	Loop   bool       `mapstructure:"loop" yaml:"loop,omitempty" json:"loop,omitempty"`
}

// Satisfies reports whether the source meets c. Unknown dimensions are
// assumed to satisfy any resolution.
func (sc SourceConfig) Satisfies(c Constraints) bool {
	if c.FacingMode != FacingAny && sc.Facing != FacingAny && sc.Facing != c.FacingMode {
		return false
	}
	if sc.Width > 0 && c.Width > 0 && sc.Width < c.Width {
		return false
	}
	if sc.Height > 0 && c.Height > 0 && sc.Height < c.Height {
		return false
	}
	return true
}

// Registry resolves constraints against configured sources and opens them.
// It implements MediaDevices; Legacy exposes the callback form.
type Registry struct {
	sources    []SourceConfig
	preferred  string
	httpClient *http.Client
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHTTPClient sets the client used for network cameras.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithPreferred pins matching to the named source. A pinned source that
// fails the constraints is reported as overconstrained rather than replaced
// by another source, so a minimal retry still opens it.
func WithPreferred(name string) RegistryOption {
	return func(r *Registry) { r.preferred = name }
}

// NewRegistry creates a registry over sources.
func NewRegistry(sources []SourceConfig, opts ...RegistryOption) *Registry {
	// No overall timeout: the response body is the live feed.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 10 * time.Second

	r := &Registry{
		sources:    append([]SourceConfig(nil), sources...),
		httpClient: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ MediaDevices = (*Registry)(nil)

// Sources returns a copy of the configured sources.
func (r *Registry) Sources() []SourceConfig {
	return append([]SourceConfig(nil), r.sources...)
}

// Lookup returns the source named name, or the preferred or first source when
// name is empty.
func (r *Registry) Lookup(name string) (SourceConfig, error) {
	if len(r.sources) == 0 {
		return SourceConfig{}, ErrNoSource
	}
	if name == "" {
		name = r.preferred
	}
	if name == "" {
		return r.sources[0], nil
	}
	for _, sc := range r.sources {
		if sc.Name == name {
			return sc, nil
		}
	}
	return SourceConfig{}, fmt.Errorf("camera: unknown source %q", name)
}

// Match returns the pinned source when one is set, otherwise the first
// source satisfying c.
func (r *Registry) Match(c Constraints) (SourceConfig, error) {
	if len(r.sources) == 0 {
		return SourceConfig{}, ErrNoSource
	}
	if r.preferred != "" {
		sc, err := r.Lookup(r.preferred)
		if err != nil {
			return SourceConfig{}, err
		}
		if !sc.Satisfies(c) {
			return SourceConfig{}, &OverconstrainedError{Constraint: rejected(sc, c)}
		}
		return sc, nil
	}
	for _, sc := range r.sources {
		if sc.Satisfies(c) {
			return sc, nil
		}
	}

	constraint := "resolution"
	if c.FacingMode != FacingAny {
		constraint = "facingMode"
	}
	return SourceConfig{}, &OverconstrainedError{Constraint: constraint}
}

// rejected names the constraint sc fails.
func rejected(sc SourceConfig, c Constraints) string {
	if !sc.Satisfies(Constraints{FacingMode: c.FacingMode}) {
		return "facingMode"
	}
	return "resolution"
}

// Open starts the stream described by sc.
func (r *Registry) Open(ctx context.Context, sc SourceConfig) (Stream, error) {
	switch {
	case sc.URL != "":
		return OpenMJPEG(ctx, r.httpClient, sc.Name, sc.URL)
	case sc.Dir != "":
		return NewDirStream(sc.Name, sc.Dir, sc.FPS, sc.Loop)
	default:
		return nil, fmt.Errorf("camera: source %q has neither url nor dir", sc.Name)
	}
}

// GetUserMedia matches c and opens the winning source.
func (r *Registry) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	sc, err := r.Match(c)
	if err != nil {
		return nil, err
	}
	slog.Debug("Opening camera source", "source", sc.Name, "facing", string(c.FacingMode))
	return r.Open(ctx, sc)
}

// Legacy returns the registry behind the callback-based API.
func (r *Registry) Legacy() LegacyMediaDevices {
	return legacyRegistry{r: r}
}

// OpenVideo opens the named source and returns a playing Video, for decoders
// that manage their own device. release stops the stream and detaches it.
func (r *Registry) OpenVideo(ctx context.Context, name string) (*Video, func(), error) {
	sc, err := r.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	stream, err := r.Open(ctx, sc)
	if err != nil {
		return nil, nil, err
	}

	v := NewVideo()
	release := func() {
		StopTracks(stream)
		v.ClearSource()
	}
	v.SetSource(stream)
	if err := v.WaitReady(ctx); err != nil {
		release()
		return nil, nil, fmt.Errorf("wait for first frame: %w", err)
	}
	if err := v.Play(); err != nil {
		release()
		return nil, nil, err
	}
	return v, release, nil
}

type legacyRegistry struct {
	r *Registry
}

func (l legacyRegistry) GetUserMedia(c Constraints, onSuccess func(Stream), onError func(error)) {
	go func() {
		stream, err := l.r.GetUserMedia(context.Background(), c)
		if err != nil {
			onError(err)
			return
		}
		onSuccess(stream)
	}()
}

// IsOverconstrained reports whether err is a constraint rejection.
func IsOverconstrained(err error) bool {
	return errors.Is(err, ErrOverconstrained)
}
