package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/bookscan/internal/barcode"
	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/pdf"
	"github.com/MeKo-Tech/bookscan/internal/utils"
)

// ScanImageFile reads path and resolves the ISBN printed on it.
// It does not touch the live session state.
func (s *Session) ScanImageFile(ctx context.Context, path string) (string, error) {
	data, err := utils.ReadImageFile(path)
	if err != nil {
		imageScansTotal.WithLabelValues("read_error").Inc()
		return "", &ImageReadError{Path: path, Err: errors.Unwrap(err)}
	}
	return s.ScanImage(ctx, filepath.Base(path), data)
}

// ScanImage resolves the ISBN in an encoded image or PDF. name is only used
// in errors and logs.
func (s *Session) ScanImage(ctx context.Context, name string, data []byte) (string, error) {
	imgs, err := DecodeImages(name, data, s.opts.Image, s.opts.PDFPages, s.opts.pdfCredentials())
	if err != nil {
		imageScansTotal.WithLabelValues("decode_error").Inc()
		return "", err
	}

	key, err := Resolve(ctx, s.opts.NewEngine(), imgs)
	imageScansTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		slog.Debug("Image scan failed", "name", name, "error", err)
		return "", err
	}
	slog.Debug("Image scan resolved", "name", name, "isbn", key)
	return key, nil
}

// LoadImage reads and decodes path, applying c.
func LoadImage(path string, c utils.ImageConstraints) ([]image.Image, error) {
	data, err := utils.ReadImageFile(path)
	if err != nil {
		return nil, &ImageReadError{Path: path, Err: errors.Unwrap(err)}
	}
	return DecodeImages(filepath.Base(path), data, c, "", nil)
}

// DecodeImages decodes an encoded image, or the embedded page images of a
// PDF, and fits each one into c. creds may be nil.
func DecodeImages(name string, data []byte, c utils.ImageConstraints, pdfPages string, creds *pdf.Credentials) ([]image.Image, error) {
	var imgs []image.Image
	if utils.IsPDF(data) {
		pages, err := extractPDF(data, pdfPages, creds)
		if err != nil {
			return nil, &ImageDecodeError{Name: name, Err: err}
		}
		imgs = pdf.Flatten(pages)
	} else {
		img, _, err := utils.DecodeImage(data)
		if err != nil {
			return nil, &ImageDecodeError{Name: name, Err: errors.Unwrap(err)}
		}
		imgs = []image.Image{img}
	}

	out := make([]image.Image, 0, len(imgs))
	for _, img := range imgs {
		fitted, err := utils.FitImage(img, c)
		if err != nil {
			slog.Debug("Skipping unusable image", "name", name, "error", err)
			continue
		}
		out = append(out, fitted)
	}
	if len(out) == 0 {
		return nil, &ImageDecodeError{Name: name, Err: errors.New("no usable image")}
	}
	return out, nil
}

func extractPDF(data []byte, pages string, creds *pdf.Credentials) (map[int][]image.Image, error) {
	f, err := os.CreateTemp("", "bookscan-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return pdf.ExtractImages(f.Name(), pages, creds)
}

// Resolve decodes imgs in order and returns the first symbol that is an
// ISBN. An image without any symbol is retried once rotated by 90 degrees.
func Resolve(ctx context.Context, engine barcode.Engine, imgs []image.Image) (string, error) {
	var invalid *InvalidIdentifierError
	for _, img := range imgs {
		key, err := resolveOne(ctx, engine, img)
		if errors.Is(err, ErrNoSymbolFound) {
			key, err = resolveOne(ctx, engine, utils.Rotate90(img))
		}

		var iie *InvalidIdentifierError
		switch {
		case err == nil:
			return key, nil
		case errors.As(err, &iie):
			if invalid == nil {
				invalid = iie
			}
		case errors.Is(err, ErrNoSymbolFound):
		default:
			return "", err
		}
	}
	if invalid != nil {
		return "", invalid
	}
	return "", ErrNoSymbolFound
}

func resolveOne(ctx context.Context, engine barcode.Engine, img image.Image) (string, error) {
	results, err := engine.DecodeImage(ctx, img)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(err, barcode.ErrNotFound) || (err == nil && len(results) == 0) {
		return "", ErrNoSymbolFound
	}
	if err != nil {
		return "", &DecodeEngineError{Err: err}
	}

	for _, r := range results {
		if key, ok := isbn.Extract(r.Value); ok {
			return key, nil
		}
	}
	return "", &InvalidIdentifierError{Text: results[0].Value}
}

func resultLabel(err error) string {
	var iie *InvalidIdentifierError
	switch {
	case err == nil:
		return "isbn"
	case errors.Is(err, ErrNoSymbolFound):
		return "no_symbol"
	case errors.As(err, &iie):
		return "invalid"
	default:
		return "engine_error"
	}
}
