package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Start on a running session.
	ErrAlreadyActive = errors.New("scanner: session already active")

	// ErrStopped is returned by Start when Stop won the race against acquisition.
	ErrStopped = errors.New("scanner: stopped during start")

	// ErrDeviceUnavailable is matched by every DeviceUnavailableError.
	ErrDeviceUnavailable = errors.New("scanner: no video device available")

	// ErrNoSymbolFound is returned by the still-image path when the image
	// holds no barcode at all.
	ErrNoSymbolFound = errors.New("scanner: no barcode found in image")
)

// DeviceUnavailableError reports that no acquisition strategy produced a stream.
type DeviceUnavailableError struct {
	Err error
}

func (e *DeviceUnavailableError) Error() string {
	if e.Err == nil {
		return ErrDeviceUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDeviceUnavailable, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

func (e *DeviceUnavailableError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

// DecodeEngineError wraps a failure reported by the decode engine.
type DecodeEngineError struct {
	Err error
}

func (e *DecodeEngineError) Error() string {
	return fmt.Sprintf("scanner: decode engine: %v", e.Err)
}

func (e *DecodeEngineError) Unwrap() error { return e.Err }

// InvalidIdentifierError reports a decoded symbol that is not an ISBN.
type InvalidIdentifierError struct {
	Text string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("scanner: barcode %q is not an ISBN", e.Text)
}

// ImageReadError reports that an image file could not be read.
type ImageReadError struct {
	Path string
	Err  error
}

func (e *ImageReadError) Error() string {
	return fmt.Sprintf("scanner: read image %s: %v", e.Path, e.Err)
}

func (e *ImageReadError) Unwrap() error { return e.Err }

// ImageDecodeError reports that image data could not be decoded.
type ImageDecodeError struct {
	Name string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("scanner: decode image %s: %v", e.Name, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }
