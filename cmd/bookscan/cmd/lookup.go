package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/store"
)

// bookInfo is everything known about one ISBN after a lookup.
type bookInfo struct {
	ISBN       string         `json:"isbn"`
	ISBN10     string         `json:"isbn10,omitempty"`
	Book       *metadata.Book `json:"book,omitempty"`
	Price      *price.Quote   `json:"price,omitempty"`
	BookError  string         `json:"book_error,omitempty"`
	PriceError string         `json:"price_error,omitempty"`
}

// enrich looks up metadata and price for key. Either lookup may fail without
// failing the other.
func enrich(ctx context.Context, books metadata.Lookuper, prices price.Fetcher, key string) bookInfo {
	info := bookInfo{ISBN: key}
	info.ISBN10, _ = isbn.Convert13To10(key)

	if books != nil {
		book, err := books.Lookup(ctx, key)
		switch {
		case errors.Is(err, metadata.ErrNotFound):
			info.BookError = "not found"
		case err != nil:
			slog.Warn("Metadata lookup failed", "isbn", key, "error", err)
			info.BookError = err.Error()
		default:
			info.Book = book
		}
	}

	if prices != nil {
		q, err := prices.Fetch(ctx, key)
		switch {
		case errors.Is(err, price.ErrNotFound):
			info.PriceError = "not found"
		case err != nil:
			slog.Warn("Price lookup failed", "isbn", key, "error", err)
			info.PriceError = err.Error()
		default:
			info.Price = q
		}
	}
	return info
}

func printBookInfo(w io.Writer, info bookInfo, tag language.Tag) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ISBN-13:   %s\n", info.ISBN)
	if info.ISBN10 != "" {
		fmt.Fprintf(&b, "ISBN-10:   %s\n", info.ISBN10)
	}
	switch {
	case info.Book != nil:
		title := info.Book.Title
		if info.Book.Subtitle != "" {
			title += ": " + info.Book.Subtitle
		}
		fmt.Fprintf(&b, "Title:     %s\n", title)
		if len(info.Book.Authors) > 0 {
			fmt.Fprintf(&b, "Authors:   %s\n", strings.Join(info.Book.Authors, ", "))
		}
		if info.Book.Publisher != "" {
			fmt.Fprintf(&b, "Publisher: %s\n", info.Book.Publisher)
		}
		if info.Book.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", info.Book.PublishedDate)
		}
		if info.Book.ListPrice != nil {
			fmt.Fprintf(&b, "List:      %s\n", price.Format(info.Book.ListPrice.Amount, info.Book.ListPrice.Currency, tag))
		}
	case info.BookError != "":
		fmt.Fprintf(&b, "Book:      %s\n", info.BookError)
	}
	switch {
	case info.Price != nil:
		fmt.Fprintf(&b, "Price:     %s (%s)\n", price.FormatQuote(info.Price, tag), info.Price.Type)
	case info.PriceError != "":
		fmt.Fprintf(&b, "Price:     %s\n", info.PriceError)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func parseLocale(s string) (language.Tag, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, fmt.Errorf("invalid locale %q: %w", s, err)
	}
	return tag, nil
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <isbn>",
	Short: "Look up book metadata and used price",
	Long: `Look up a book by ISBN-10 or ISBN-13: metadata from Google Books and
the current used price from the storefront. Prices are cached in the
history database for price.cache_ttl.

Examples:
  bookscan lookup 9784061313361
  bookscan lookup 4-06-131336-3 --format json --save`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format, outputFormatText, outputFormatJSON); err != nil {
			return err
		}
		locale, _ := cmd.Flags().GetString("locale")
		tag, err := parseLocale(locale)
		if err != nil {
			return err
		}
		save, _ := cmd.Flags().GetBool("save")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		noPrice, _ := cmd.Flags().GetBool("no-price")

		key, ok := isbn.Extract(args[0])
		if !ok {
			return fmt.Errorf("invalid ISBN: %s", args[0])
		}

		var history *store.BoltStore
		if save || !noCache {
			history, err = openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()
		}

		var prices price.Fetcher
		if !noPrice {
			var cache price.Cache
			if history != nil && !noCache {
				cache = history
			}
			prices, err = priceFetcher(cfg, cache)
			if err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Price.Timeout+cfg.Price.MaxDelay+cfg.Metadata.Timeout)
		defer cancel()

		info := enrich(ctx, cfg.ToMetadataClient(), prices, key)

		if save {
			if _, err := history.Record(store.Scan{
				ISBN: key, Source: store.SourceManual, Book: info.Book, Price: info.Price, At: time.Now(),
			}); err != nil {
				return fmt.Errorf("failed to record lookup: %w", err)
			}
		}

		if format == outputFormatJSON {
			return writeJSON(cmd.OutOrStdout(), info)
		}
		return printBookInfo(cmd.OutOrStdout(), info, tag)
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	lookupCmd.Flags().String("locale", "en", "locale used to format prices")
	lookupCmd.Flags().Bool("save", false, "record the book in the scan history")
	lookupCmd.Flags().Bool("no-cache", false, "bypass the price cache")
	lookupCmd.Flags().Bool("no-price", false, "skip the price lookup")
}
