package utils

import (
	"image"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFitImage_StaysWithinBounds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("fitted image never exceeds the max dimension", prop.ForAll(
		func(width, height, maxDim int) bool {
			img := image.NewGray(image.Rect(0, 0, width, height))
			out, err := FitImage(img, ImageConstraints{MaxDimension: maxDim, MinDimension: 1})
			if err != nil {
				return false
			}
			b := out.Bounds()
			if width <= maxDim && height <= maxDim {
				return b.Dx() == width && b.Dy() == height
			}
			return b.Dx() <= maxDim && b.Dy() <= maxDim
		},
		gen.IntRange(50, 600),
		gen.IntRange(50, 600),
		gen.IntRange(16, 300),
	))

	properties.Property("small images pass through untouched", prop.ForAll(
		func(width, height int) bool {
			img := image.NewGray(image.Rect(0, 0, width, height))
			out, err := FitImage(img, ImageConstraints{MaxDimension: 256, MinDimension: 1})
			return err == nil && out == image.Image(img)
		},
		gen.IntRange(1, 256),
		gen.IntRange(1, 256),
	))

	properties.TestingRun(t)
}
