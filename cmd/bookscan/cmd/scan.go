package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/bookscan/internal/batch"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/pdf"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/store"
)

// scanResult is the outcome for one input file.
type scanResult struct {
	File string `json:"file"`
	bookInfo
	Error string `json:"error,omitempty"`
}

var scanCmd = &cobra.Command{
	Use:   "scan <file|dir>...",
	Short: "Read the ISBN barcode from images or PDFs",
	Long: `Decode the book barcode in each file and print its ISBN-13. Directories
are expanded to the images and PDFs they contain; files are scanned in
parallel and reported in input order.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP, HEIC/HEIF and PDF
(embedded page images). An image without any barcode is retried rotated by
90 degrees; the first barcode that is an ISBN wins, so the price code on
Japanese covers is skipped.

Examples:
  bookscan scan cover.jpg
  bookscan scan *.heic --format csv
  bookscan scan ./shelf -r --include '*.jpg' --workers 4
  bookscan scan shelf.pdf --pdf-pages 1-3 --lookup --save`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format, outputFormatText, outputFormatJSON, outputFormatCSV); err != nil {
			return err
		}
		lookup, _ := cmd.Flags().GetBool("lookup")
		save, _ := cmd.Flags().GetBool("save")
		if cmd.Flags().Changed("pdf-pages") {
			cfg.Scanner.PDFPages, _ = cmd.Flags().GetString("pdf-pages")
		}
		if cmd.Flags().Changed("pdf-password") {
			cfg.Scanner.PDFPassword, _ = cmd.Flags().GetString("pdf-password")
		}
		if cmd.Flags().Changed("try-harder") {
			cfg.Scanner.TryHarder, _ = cmd.Flags().GetBool("try-harder")
		}

		opts, err := cfg.ToScannerOptions(cfg.ToRegistry())
		if err != nil {
			return fmt.Errorf("invalid scanner configuration: %w", err)
		}
		session := scanner.New(opts)

		var history *store.BoltStore
		if lookup || save {
			history, err = openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()
		}

		var books metadata.Lookuper
		var prices price.Fetcher
		if lookup {
			books = cfg.ToMetadataClient()
			prices, err = priceFetcher(cfg, history)
			if err != nil {
				return err
			}
		}

		recursive, _ := cmd.Flags().GetBool("recursive")
		include, _ := cmd.Flags().GetStringSlice("include")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		workers, _ := cmd.Flags().GetInt("workers")

		batchResult, err := batch.ProcessBatch(cmd.Context(), session, args, batch.Config{
			Recursive:       recursive,
			IncludePatterns: include,
			ExcludePatterns: exclude,
			Workers:         workers,
		})
		if err != nil {
			return err
		}
		slog.Debug("Files scanned", "count", len(batchResult.Items),
			"workers", batchResult.WorkerCount, "duration", batchResult.Duration)

		results := make([]scanResult, 0, len(batchResult.Items))
		failed := 0
		for _, item := range batchResult.Items {
			res := describeItem(cmd.Context(), item, books, prices)
			if res.Error != "" {
				failed++
			} else if save {
				if _, err := history.Record(store.Scan{
					ISBN: res.ISBN, Source: store.SourceImage, Book: res.Book, Price: res.Price, At: time.Now(),
				}); err != nil {
					return fmt.Errorf("failed to record scan: %w", err)
				}
			}
			results = append(results, res)
		}

		if err := writeScanResults(cmd, format, results); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files had no ISBN", failed, len(results))
		}
		return nil
	},
}

func describeItem(ctx context.Context, item batch.Item, books metadata.Lookuper, prices price.Fetcher) scanResult {
	res := scanResult{File: item.Path}
	if item.Err != nil {
		slog.Debug("Scan failed", "file", item.Path, "error", item.Err)
		res.Error = describeScanError(item.Err)
		return res
	}
	res.bookInfo = enrich(ctx, books, prices, item.ISBN)
	return res
}

func describeScanError(err error) string {
	var readErr *scanner.ImageReadError
	var decodeErr *scanner.ImageDecodeError
	var invalid *scanner.InvalidIdentifierError
	switch {
	case errors.As(err, &readErr):
		return "cannot read file"
	case errors.As(err, &decodeErr) && pdf.IsPasswordError(err):
		return "PDF is password protected"
	case errors.As(err, &decodeErr):
		return "not a supported image"
	case errors.Is(err, scanner.ErrNoSymbolFound):
		return "no barcode found"
	case errors.As(err, &invalid):
		return "barcode " + invalid.Text + " is not an ISBN"
	default:
		return err.Error()
	}
}

func writeScanResults(cmd *cobra.Command, format string, results []scanResult) error {
	out := cmd.OutOrStdout()
	switch format {
	case outputFormatJSON:
		return writeJSON(out, results)
	case outputFormatCSV:
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			var title, amount string
			if r.Book != nil {
				title = r.Book.Title
			}
			if r.Price != nil {
				amount = fmt.Sprint(r.Price.Price)
			}
			rows = append(rows, []string{r.File, r.ISBN, r.ISBN10, title, amount, r.Error})
		}
		return writeCSV(out, []string{"file", "isbn", "isbn10", "title", "price", "error"}, rows)
	default:
		for _, r := range results {
			var line string
			switch {
			case r.Error != "":
				line = fmt.Sprintf("%s: %s", r.File, r.Error)
			case r.Book != nil:
				line = fmt.Sprintf("%s: %s %s", r.File, r.ISBN, r.Book.Title)
			default:
				line = fmt.Sprintf("%s: %s", r.File, r.ISBN)
			}
			if r.Price != nil {
				line += fmt.Sprintf(" [%d %s]", r.Price.Price, r.Price.Currency)
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
		return nil
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json, csv)")
	scanCmd.Flags().Bool("lookup", false, "look up metadata and used price for each ISBN")
	scanCmd.Flags().Bool("save", false, "record every resolved ISBN in the scan history")
	scanCmd.Flags().String("pdf-pages", "", "PDF pages to scan, e.g. 1-3,5 (default all)")
	scanCmd.Flags().String("pdf-password", "", "password for encrypted PDFs")
	scanCmd.Flags().Bool("try-harder", false, "spend more time on hard to read barcodes")
	scanCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	scanCmd.Flags().StringSlice("include", nil, "only scan files matching these patterns (e.g. '*.jpg')")
	scanCmd.Flags().StringSlice("exclude", nil, "skip files matching these patterns")
	scanCmd.Flags().IntP("workers", "w", 0, "parallel scans (default one per CPU)")
}
