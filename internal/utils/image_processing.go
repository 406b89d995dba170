// Package utils holds the image helpers shared by the still-image scan path
// and the HTTP upload endpoint.
package utils

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
// Operation is "read" for I/O failures and "decode" for undecodable data.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ImageConstraints bounds the size of images handed to the decoder.
type ImageConstraints struct {
	MaxDimension int
	MinDimension int
}

// DefaultImageConstraints fits phone photos while keeping bars resolvable.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{
		MaxDimension: 2048,
		MinDimension: 16,
	}
}

// FitImage downscales img so that its longer side is at most MaxDimension,
// preserving aspect ratio. Smaller images are returned unchanged.
func FitImage(img image.Image, constraints ImageConstraints) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < constraints.MinDimension || h < constraints.MinDimension {
		return nil, &ImageProcessingError{
			Operation: "resize",
			Err: fmt.Errorf("image dimensions %dx%d below minimum %d",
				w, h, constraints.MinDimension),
		}
	}
	if constraints.MaxDimension <= 0 || (w <= constraints.MaxDimension && h <= constraints.MaxDimension) {
		return img, nil
	}

	// imaging.Fit keeps the aspect ratio; Lanczos keeps bar edges sharp.
	return imaging.Fit(img, constraints.MaxDimension, constraints.MaxDimension, imaging.Lanczos), nil
}

// Rotate90 rotates img counter-clockwise by 90 degrees.
func Rotate90(img image.Image) image.Image { return imaging.Rotate90(img) }
