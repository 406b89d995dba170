package camera

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gray(w int) image.Image {
	return image.NewGray(image.Rect(0, 0, w, 1))
}

func TestVideo_Lifecycle(t *testing.T) {
	v := NewVideo()
	assert.ErrorIs(t, v.WaitReady(context.Background()), ErrNoStream)
	assert.ErrorIs(t, v.Play(), ErrNoStream)

	s := NewChanStream("test", 4)
	v.SetSource(s)
	assert.ErrorIs(t, v.Play(), ErrNotReady)

	require.True(t, s.Push(gray(1)))
	require.NoError(t, v.WaitReady(context.Background()))

	img, seq := v.Frame()
	require.NotNil(t, img)
	assert.Equal(t, 1, img.Bounds().Dx())
	assert.Equal(t, uint64(1), seq)

	require.NoError(t, v.Play())
	require.NoError(t, v.Play())

	require.True(t, s.Push(gray(2)))
	assert.Eventually(t, func() bool {
		img, seq := v.Frame()
		return seq == 2 && img.Bounds().Dx() == 2
	}, time.Second, time.Millisecond)

	done := v.Done()
	v.ClearSource()
	img, _ = v.Frame()
	assert.Nil(t, img)
	assert.Nil(t, v.Source())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not exit after ClearSource")
	}
	assert.False(t, s.Tracks()[0].Stopped(), "ClearSource must not stop tracks")
}

func TestVideo_WaitReadyHonorsContext(t *testing.T) {
	v := NewVideo()
	v.SetSource(NewChanStream("idle", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, v.WaitReady(ctx), context.DeadlineExceeded)
}

func TestVideo_PumpEndsWhenTracksStop(t *testing.T) {
	v := NewVideo()
	s := NewChanStream("test", 1)
	v.SetSource(s)
	require.True(t, s.Push(gray(1)))
	require.NoError(t, v.WaitReady(context.Background()))
	require.NoError(t, v.Play())

	StopTracks(s)
	select {
	case <-v.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not exit after tracks stopped")
	}
}

func TestChanStream(t *testing.T) {
	s := NewChanStream("buf", 1)
	assert.True(t, s.Push(gray(1)))
	assert.False(t, s.Push(gray(2)), "full buffer drops")
	assert.False(t, s.Push(nil))

	img, err := s.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, img.Bounds().Dx())

	s.Close()
	s.Close()
	assert.True(t, s.Tracks()[0].Stopped())
	assert.False(t, s.Push(gray(1)))
	_, err = s.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestTrack(t *testing.T) {
	calls := 0
	tr := NewTrack(TrackVideo, "lbl", func() { calls++ })
	assert.Equal(t, TrackVideo, tr.Kind())
	assert.Equal(t, "lbl", tr.Label())
	tr.Stop()
	tr.Stop()
	assert.Equal(t, 1, calls)
	assert.True(t, tr.Stopped())

	assert.NotPanics(t, func() { StopTracks(nil) })
}
