package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

// MJPEGStream reads a multipart/x-mixed-replace JPEG feed, the format served
// by network cameras, mjpg-streamer and phone webcam apps.
type MJPEGStream struct {
	closer
	track  *Track
	body   io.ReadCloser
	reader *multipart.Reader
	cancel context.CancelFunc
}

// OpenMJPEG connects to url. ctx bounds the handshake only; the stream lives
// until its track is stopped.
func OpenMJPEG(ctx context.Context, client *http.Client, label, url string) (*MJPEGStream, error) {
	if client == nil {
		client = http.DefaultClient
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stopWatch := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		stopWatch()
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if !stopWatch() || err != nil {
		cancel()
		if resp != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("connect to %s: unexpected status %s", url, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%s is not an MJPEG stream (content type %q)", url, resp.Header.Get("Content-Type"))
	}

	s := &MJPEGStream{
		closer: newCloser(),
		body:   resp.Body,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
		cancel: cancel,
	}
	if label == "" {
		label = url
	}
	s.track = NewTrack(TrackVideo, label, s.shutdown)
	return s, nil
}

func (s *MJPEGStream) Tracks() []*Track { return []*Track{s.track} }

// ReadFrame decodes the next part and returns as soon as its JPEG data is
// complete. ctx is checked between parts; a blocked read is interrupted by
// stopping the track.
func (s *MJPEGStream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrStreamClosed
	}

	part, err := s.reader.NextPart()
	if err != nil {
		if s.isClosed() {
			return nil, ErrStreamClosed
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read mjpeg part: %w", err)
	}
	// The part is not closed here: closing drains it up to the next
	// boundary, which only arrives with the next frame. NextPart skips
	// whatever is left.
	img, err := imaging.Decode(part)
	if s.isClosed() {
		return nil, ErrStreamClosed
	}
	if err != nil {
		return nil, fmt.Errorf("decode mjpeg frame: %w", err)
	}
	return img, nil
}

func (s *MJPEGStream) shutdown() {
	s.close()
	s.cancel()
	_ = s.body.Close()
}
