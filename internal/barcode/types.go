package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrNotFound is returned when an image holds no decodable symbol.
// Live scanning treats it as the normal per-frame outcome.
var ErrNotFound = errors.New("barcode: no symbol found")

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatCode128
	FormatCode39
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatQR:      "qr",
	FormatCode128: "code128",
	FormatCode39:  "code39",
	FormatEAN8:    "ean8",
	FormatEAN13:   "ean13",
	FormatUPCA:    "upca",
	FormatUPCE:    "upce",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat maps a config name such as "ean13" or "EAN-13" to a Format.
func ParseFormat(s string) (Format, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(s)))
	for f, name := range formatNames {
		if f != FormatUnknown && name == key {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown barcode format %q", s)
}

// ParseFormats parses a list of format names, failing on the first unknown one.
func ParseFormats(names []string) ([]Format, error) {
	out := make([]Format, 0, len(names))
	for _, n := range names {
		f, err := ParseFormat(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// BookFormats are the symbologies printed on book covers.
func BookFormats() []Format {
	return []Format{FormatEAN13, FormatEAN8, FormatUPCA, FormatUPCE}
}

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means all.
	Formats []Format

	// TryHarder enables a slower, more exhaustive search.
	TryHarder bool

	// Multi reports every symbol in the image instead of the first one.
	Multi bool

	// ROI optionally restricts decoding to a sub-rectangle of the image.
	// Zero-sized or out-of-bounds rectangles are ignored.
	ROI image.Rectangle
}

// Point is an integer point in image coordinates.
type Point struct {
	X int
	Y int
}

// Result represents a decoded barcode.
type Result struct {
	Type   Format
	Value  string
	Points []Point         // result points reported by the decoder
	BBox   image.Rectangle // derived from Points
}

// Backend is a pluggable single-image decoder.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

// NewBackend returns the default backend implementation.
func NewBackend() Backend { return &gozxingBackend{} }
