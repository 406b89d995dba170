package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

type gozxingBackend struct{}

func (b *gozxingBackend) Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error) {
	if img == nil {
		return nil, errors.New("barcode: nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !opts.ROI.Empty() {
		if roiImg, ok := subImage(img, opts.ROI); ok {
			img = roiImg
		}
	}

	bitmap, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("barcode: prepare bitmap: %w", err)
	}

	hints := make(map[gozxing.DecodeHintType]interface{})
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	reader := newCompositeReader(opts.Formats)

	if opts.Multi {
		return decodeMultiple(ctx, reader, bitmap, hints)
	}

	r, err := reader.Decode(bitmap, hints)
	if err != nil {
		return nil, mapDecodeError(err)
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return []Result{toResult(r, 0, 0)}, nil
}

// Limits of the multi-symbol search. Regions narrower than
// multiMinDimension cannot hold another symbol.
const (
	multiMaxDepth     = 4
	multiMinDimension = 100
)

// decodeMultiple decodes bitmap, then searches the regions left, right,
// above and below each hit again, keeping the first result per text.
func decodeMultiple(ctx context.Context, reader gozxing.Reader, bitmap *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]Result, error) {
	var out []Result
	seen := make(map[string]bool)

	var search func(bm *gozxing.BinaryBitmap, dx, dy, depth int) error
	search = func(bm *gozxing.BinaryBitmap, dx, dy, depth int) error {
		if depth > multiMaxDepth || ctx.Err() != nil {
			return nil
		}
		r, err := reader.Decode(bm, hints)
		if err != nil || r == nil {
			return err
		}

		res := toResult(r, dx, dy)
		if !seen[res.Value] {
			seen[res.Value] = true
			out = append(out, res)
		}
		if len(res.Points) == 0 {
			return nil
		}

		w, h := bm.GetWidth(), bm.GetHeight()
		box := res.BBox.Sub(image.Pt(dx, dy)).Intersect(image.Rect(0, 0, w, h))
		if box.Empty() {
			return nil
		}
		var regions []image.Rectangle
		if box.Min.X > multiMinDimension {
			regions = append(regions, image.Rect(0, 0, box.Min.X, h))
		}
		if box.Min.Y > multiMinDimension {
			regions = append(regions, image.Rect(0, 0, w, box.Min.Y))
		}
		if box.Max.X < w-multiMinDimension {
			regions = append(regions, image.Rect(box.Max.X, 0, w, h))
		}
		if box.Max.Y < h-multiMinDimension {
			regions = append(regions, image.Rect(0, box.Max.Y, w, h))
		}

		for _, region := range regions {
			sub, err := bm.Crop(region.Min.X, region.Min.Y, region.Dx(), region.Dy())
			if err != nil {
				continue
			}
			_ = search(sub, dx+region.Min.X, dy+region.Min.Y, depth+1)
		}
		return nil
	}

	if err := search(bitmap, 0, 0, 0); err != nil {
		return nil, mapDecodeError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// toResult converts r, shifting its points by the offset of the region it
// was decoded in.
func toResult(r *gozxing.Result, dx, dy int) Result {
	var points []Point
	if pts := r.GetResultPoints(); len(pts) > 0 {
		points = make([]Point, 0, len(pts))
		for _, p := range pts {
			points = append(points, Point{X: int(p.GetX()) + dx, Y: int(p.GetY()) + dy})
		}
	}
	return Result{
		Type:   mapFormatFromZXing(r.GetBarcodeFormat()),
		Value:  r.GetText(),
		Points: points,
		BBox:   rectFromPoints(points),
	}
}

// mapDecodeError folds the gozxing not-found exception into ErrNotFound.
func mapDecodeError(err error) error {
	var nf gozxing.NotFoundException
	if errors.As(err, &nf) {
		return ErrNotFound
	}
	return fmt.Errorf("barcode: decode: %w", err)
}

// compositeReader tries each symbology reader in order and returns the first hit.
type compositeReader struct {
	readers []gozxing.Reader
}

func newCompositeReader(formats []Format) *compositeReader {
	if len(formats) == 0 {
		formats = []Format{FormatEAN13, FormatEAN8, FormatUPCA, FormatUPCE, FormatCode128, FormatCode39, FormatQR}
	}
	c := &compositeReader{}
	for _, f := range formats {
		if r := readerFor(f); r != nil {
			c.readers = append(c.readers, r)
		}
	}
	return c
}

func readerFor(f Format) gozxing.Reader {
	switch f {
	case FormatEAN13:
		return oned.NewEAN13Reader()
	case FormatEAN8:
		return oned.NewEAN8Reader()
	case FormatUPCA:
		return oned.NewUPCAReader()
	case FormatUPCE:
		return oned.NewUPCEReader()
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatCode39:
		return oned.NewCode39Reader()
	case FormatQR:
		return qrcode.NewQRCodeReader()
	default:
		return nil
	}
}

func (c *compositeReader) DecodeWithoutHints(img *gozxing.BinaryBitmap) (*gozxing.Result, error) {
	return c.Decode(img, nil)
}

func (c *compositeReader) Decode(img *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) (*gozxing.Result, error) {
	for _, r := range c.readers {
		res, err := r.Decode(img, hints)
		if err == nil && res != nil {
			return res, nil
		}
	}
	return nil, gozxing.NewNotFoundException("no reader matched")
}

func (c *compositeReader) Reset() {
	for _, r := range c.readers {
		r.Reset()
	}
}

func mapFormatFromZXing(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	default:
		return FormatUnknown
	}
}

func rectFromPoints(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// subImage returns the part of img inside r, copying when img cannot slice itself.
func subImage(img image.Image, r image.Rectangle) (image.Image, bool) {
	rb := r.Intersect(img.Bounds())
	if rb.Empty() {
		return nil, false
	}
	type subImager interface{ SubImage(r image.Rectangle) image.Image }
	if s, ok := img.(subImager); ok {
		return s.SubImage(rb), true
	}
	dst := image.NewRGBA(image.Rect(0, 0, rb.Dx(), rb.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rb.Min, draw.Src)
	return dst, true
}
