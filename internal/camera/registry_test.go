package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceConfig_Satisfies(t *testing.T) {
	rear := SourceConfig{Name: "rear", Facing: FacingEnvironment, Width: 1920, Height: 1080}
	tests := []struct {
		name string
		c    Constraints
		want bool
	}{
		{"minimal", Constraints{}, true},
		{"facing match", Constraints{FacingMode: FacingEnvironment}, true},
		{"facing mismatch", Constraints{FacingMode: FacingUser}, false},
		{"resolution ok", Constraints{Width: 1280, Height: 720}, true},
		{"too wide", Constraints{Width: 3840}, false},
		{"too tall", Constraints{Height: 2160}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rear.Satisfies(tt.c))
		})
	}

	assert.True(t, SourceConfig{Name: "unknown"}.Satisfies(Constraints{FacingMode: FacingUser, Width: 4000}))
}

func TestRegistry_Match(t *testing.T) {
	front := SourceConfig{Name: "front", Facing: FacingUser, Dir: "/tmp/a"}
	rear := SourceConfig{Name: "rear", Facing: FacingEnvironment, Dir: "/tmp/b", Width: 640, Height: 480}

	r := NewRegistry([]SourceConfig{front, rear})
	sc, err := r.Match(Constraints{FacingMode: FacingEnvironment})
	require.NoError(t, err)
	assert.Equal(t, "rear", sc.Name)

	_, err = r.Match(Constraints{FacingMode: FacingEnvironment, Width: 1280, Height: 720})
	var oc *OverconstrainedError
	require.ErrorAs(t, err, &oc)
	assert.Equal(t, "facingMode", oc.Constraint)
	assert.True(t, IsOverconstrained(err))

	_, err = r.Match(Constraints{Width: 99999})
	require.ErrorAs(t, err, &oc)
	assert.Equal(t, "resolution", oc.Constraint)

	r = NewRegistry([]SourceConfig{front, rear}, WithPreferred("rear"))
	sc, err = r.Match(Constraints{})
	require.NoError(t, err)
	assert.Equal(t, "rear", sc.Name)

	_, err = NewRegistry(nil).Match(Constraints{})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestRegistry_MatchPinnedSource(t *testing.T) {
	front := SourceConfig{Name: "front", Facing: FacingUser, Dir: "/tmp/a", Width: 640, Height: 480}
	rear := SourceConfig{Name: "rear", Facing: FacingEnvironment, Dir: "/tmp/b"}

	tests := []struct {
		name       string
		pinned     string
		c          Constraints
		want       string
		constraint string
		wantErr    bool
	}{
		{name: "pinned satisfies", pinned: "front", c: Constraints{FacingMode: FacingUser}, want: "front"},
		{name: "pinned minimal", pinned: "front", c: Constraints{}, want: "front"},
		{name: "pinned wrong facing", pinned: "front", c: Constraints{FacingMode: FacingEnvironment}, constraint: "facingMode"},
		{name: "pinned too small", pinned: "front", c: Constraints{Width: 1280, Height: 720}, constraint: "resolution"},
		{name: "pinned unknown", pinned: "side", c: Constraints{}, wantErr: true},
		{name: "unpinned picks by facing", c: Constraints{FacingMode: FacingEnvironment}, want: "rear"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry([]SourceConfig{rear, front}, WithPreferred(tt.pinned))
			sc, err := r.Match(tt.c)
			switch {
			case tt.constraint != "":
				var oc *OverconstrainedError
				require.ErrorAs(t, err, &oc)
				assert.Equal(t, tt.constraint, oc.Constraint)
			case tt.wantErr:
				assert.ErrorContains(t, err, "unknown source")
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, sc.Name)
			}
		})
	}
}

func TestRegistry_ModernStrategyOpensPinnedSource(t *testing.T) {
	r := NewRegistry([]SourceConfig{
		{Name: "rear", Facing: FacingEnvironment, Dir: writeFrames(t, 4)},
		{Name: "front", Facing: FacingUser, Dir: writeFrames(t, 6)},
	}, WithPreferred("front"))

	o := ModernStrategy{Devices: r}.Acquire(context.Background(), Constraints{FacingMode: FacingEnvironment})
	require.Equal(t, Acquired, o.Kind)
	defer StopTracks(o.Stream)
	assert.Equal(t, "front", o.Stream.Tracks()[0].Label())

	img, err := o.Stream.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry([]SourceConfig{{Name: "a"}, {Name: "b"}})
	sc, err := r.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "a", sc.Name)

	sc, err = r.Lookup("b")
	require.NoError(t, err)
	assert.Equal(t, "b", sc.Name)

	_, err = r.Lookup("c")
	assert.ErrorContains(t, err, "unknown source")

	assert.Len(t, r.Sources(), 2)
}

func TestRegistry_GetUserMediaOpensDirectory(t *testing.T) {
	dir := writeFrames(t, 4)
	r := NewRegistry([]SourceConfig{{Name: "replay", Dir: dir, Facing: FacingEnvironment}})

	s, err := r.GetUserMedia(context.Background(), Constraints{FacingMode: FacingEnvironment})
	require.NoError(t, err)
	defer StopTracks(s)
	assert.Equal(t, "replay", s.Tracks()[0].Label())

	img, err := s.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = r.Open(context.Background(), SourceConfig{Name: "empty"})
	assert.ErrorContains(t, err, "neither url nor dir")
}

func TestRegistry_Legacy(t *testing.T) {
	r := NewRegistry([]SourceConfig{{Name: "replay", Dir: writeFrames(t, 1)}})

	o := LegacyStrategy{Legacy: r.Legacy()}.Acquire(context.Background(), Constraints{})
	require.Equal(t, Acquired, o.Kind)
	StopTracks(o.Stream)

	o = LegacyStrategy{Legacy: NewRegistry(nil).Legacy()}.Acquire(context.Background(), Constraints{})
	assert.Equal(t, Failed, o.Kind)
	assert.True(t, errors.Is(o.Err, ErrNoSource))
}

func TestRegistry_OpenVideo(t *testing.T) {
	r := NewRegistry([]SourceConfig{{Name: "replay", Dir: writeFrames(t, 1, 2), FPS: 100, Loop: true}})

	v, release, err := r.OpenVideo(context.Background(), "replay")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, seq := v.Frame()
		return seq >= 3
	}, time.Second, 5*time.Millisecond)

	src := v.Source()
	release()
	assert.True(t, src.Tracks()[0].Stopped())
	assert.Nil(t, v.Source())

	_, _, err = r.OpenVideo(context.Background(), "missing")
	assert.Error(t, err)
}

func TestParseFacingMode(t *testing.T) {
	for in, want := range map[string]FacingMode{
		"": FacingAny, "any": FacingAny, "rear": FacingEnvironment,
		"environment": FacingEnvironment, "front": FacingUser, "user": FacingUser,
	} {
		got, err := ParseFacingMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFacingMode("sideways")
	assert.Error(t, err)
}
