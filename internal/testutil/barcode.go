package testutil

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/stretchr/testify/require"
)

// Barcode values used across the test suites.
const (
	// BookISBN13 is a valid Japanese ISBN-13 (978-4-06-131336-1).
	BookISBN13 = "9784061313361"
	// BookISBN10 is the ISBN-10 form of BookISBN13.
	BookISBN10 = "4061313363"
	// JANCode is a valid EAN-13 outside the bookland prefixes.
	JANCode = "4901234567894"
	// PriceCode is the second bar of a Japanese book cover (category and price).
	PriceCode = "1920195016008"
)

// Quiet zone around generated symbols, in pixels.
const quietZone = 40

// GenerateEAN13 renders an EAN-13 symbol on a white canvas with a quiet zone.
func GenerateEAN13(code string, width, height int) (image.Image, error) {
	matrix, err := oned.NewEAN13Writer().Encode(code, gozxing.BarcodeFormat_EAN_13, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", code, err)
	}
	canvas := imaging.New(width+2*quietZone, height+2*quietZone, color.White)
	return imaging.Paste(canvas, matrix, image.Pt(quietZone, quietZone)), nil
}

// GenerateBookCover stacks the given codes vertically, the way Japanese
// book covers print the ISBN above the price code.
func GenerateBookCover(codes ...string) (image.Image, error) {
	const w, h = 320, 120
	canvas := imaging.New(w+2*quietZone, len(codes)*(h+quietZone)+quietZone, color.White)
	for i, code := range codes {
		sym, err := GenerateEAN13(code, w, h)
		if err != nil {
			return nil, err
		}
		canvas = imaging.Paste(canvas, sym, image.Pt(0, i*(h+quietZone)))
	}
	return canvas, nil
}

// BlankImage returns a plain white image.
func BlankImage(width, height int) image.Image {
	return imaging.New(width, height, color.White)
}

// EAN13Image is GenerateEAN13 with default dimensions for tests.
func EAN13Image(t *testing.T, code string) image.Image {
	t.Helper()

	img, err := GenerateEAN13(code, 320, 120)
	require.NoError(t, err)
	return img
}

// SaveImage writes img below dir, picking the encoder from the file extension.
func SaveImage(t *testing.T, img image.Image, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
	return path
}
