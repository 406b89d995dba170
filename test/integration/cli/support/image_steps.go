package support

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MeKo-Tech/bookscan/internal/testutil"
)

// saveFixture writes img as name below the fixture directory and registers
// it for {file:name} substitution.
func (testCtx *TestContext) saveFixture(name string, img image.Image) error {
	path := testCtx.fixturePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create fixture directory: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save fixture %s: %w", name, err)
	}
	testCtx.Files[name] = path
	return nil
}

func (testCtx *TestContext) aBarcodeImage(name, code string) error {
	img, err := testutil.GenerateEAN13(code, 320, 120)
	if err != nil {
		return err
	}
	return testCtx.saveFixture(name, img)
}

func (testCtx *TestContext) aBookCoverWithPriceCode(name, code string) error {
	img, err := testutil.GenerateBookCover(code, testutil.PriceCode)
	if err != nil {
		return err
	}
	return testCtx.saveFixture(name, img)
}

func (testCtx *TestContext) aRotatedBarcodeImage(name, code string) error {
	img, err := testutil.GenerateEAN13(code, 320, 120)
	if err != nil {
		return err
	}
	return testCtx.saveFixture(name, imaging.Rotate90(img))
}

func (testCtx *TestContext) aBlankImage(name string) error {
	return testCtx.saveFixture(name, testutil.BlankImage(400, 300))
}

func (testCtx *TestContext) aFileWithContent(name, content string) error {
	path := testCtx.fixturePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return err
	}
	testCtx.Files[name] = path
	return nil
}

// aPDFWithBarcode embeds a barcode image as the single page of a PDF.
func (testCtx *TestContext) aPDFWithBarcode(name, code string) error {
	imgName := name + ".png"
	if err := testCtx.aBarcodeImage(imgName, code); err != nil {
		return err
	}
	path := testCtx.fixturePath(name)
	if err := api.ImportImagesFile([]string{testCtx.Files[imgName]}, path, nil, nil); err != nil {
		return fmt.Errorf("failed to create PDF %s: %w", name, err)
	}
	testCtx.Files[name] = path
	return nil
}

// aConfigWithReplaySource writes a config whose default source replays the
// named image fixtures in a loop.
func (testCtx *TestContext) aConfigWithReplaySource(name string, frames *godog.Table) error {
	dir := filepath.Join(testCtx.TempDir, "frames-"+name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, row := range frames.Rows {
		src, ok := testCtx.Files[row.Cells[0].Value]
		if !ok {
			return fmt.Errorf("unknown fixture %q", row.Cells[0].Value)
		}
		img, err := imaging.Open(src)
		if err != nil {
			return err
		}
		if err := imaging.Save(img, filepath.Join(dir, fmt.Sprintf("%03d.png", i))); err != nil {
			return err
		}
	}

	cfg := fmt.Sprintf(`scanner:
  decode_interval: 10ms
camera:
  default_source: replay
  sources:
    - name: replay
      dir: %s
      fps: 50
      loop: true
`, dir)
	return testCtx.aFileWithContent(name, cfg)
}

// RegisterImageSteps registers fixture creation steps.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a barcode image "([^"]*)" encoding "([^"]*)"$`, testCtx.aBarcodeImage)
	sc.Step(`^a rotated barcode image "([^"]*)" encoding "([^"]*)"$`, testCtx.aRotatedBarcodeImage)
	sc.Step(`^a book cover "([^"]*)" for ISBN "([^"]*)" with a price code$`, testCtx.aBookCoverWithPriceCode)
	sc.Step(`^a blank image "([^"]*)"$`, testCtx.aBlankImage)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileWithContent)
	sc.Step(`^a PDF "([^"]*)" with a barcode encoding "([^"]*)"$`, testCtx.aPDFWithBarcode)
	sc.Step(`^a config "([^"]*)" replaying the frames:$`, testCtx.aConfigWithReplaySource)
}
