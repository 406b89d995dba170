package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/bookscan/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show, export and edit the scan history",
	Long: `The scan history keeps one entry per book, keyed by ISBN-13, with the
metadata and price known at the last scan. Entries are written by
scan --save, watch --save, lookup --save and the server.`,
}

var historyListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List recorded books, most recently scanned first",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format, outputFormatText, outputFormatTable, outputFormatJSON); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		history, err := openStore(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()

		records, err := history.List()
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}

		out := cmd.OutOrStdout()
		if format == outputFormatJSON {
			return writeJSON(out, records)
		}
		if len(records) == 0 {
			_, err := fmt.Fprintln(cmd.ErrOrStderr(), "History is empty")
			return err
		}
		return writeRows(out,
			[]string{"ISBN", "TITLE", "PRICE", "SOURCE", "COUNT", "LAST SCANNED"},
			historyRows(records),
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			format == outputFormatTable)
	},
}

func historyRows(records []*store.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		var title, amount string
		if r.Book != nil {
			title = r.Book.Title
		}
		if r.Price != nil {
			amount = fmt.Sprintf("%d %s", r.Price.Price, r.Price.Currency)
		}
		rows = append(rows, []string{
			r.ISBN, title, amount, r.Source, strconv.Itoa(r.Count), r.LastScanned.Local().Format(time.DateTime),
		})
	}
	return rows
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the history as CSV or JSON",
	Long: `Export the full history. Without --output the export is written to stdout.

Examples:
  bookscan history export > books.csv
  bookscan history export --format json --output books.json`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format, outputFormatCSV, outputFormatJSON); err != nil {
			return err
		}
		outputFile, _ := cmd.Flags().GetString("output")

		history, err := openStore(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()

		var w io.Writer = cmd.OutOrStdout()
		if outputFile != "" {
			f, err := os.Create(outputFile) //nolint:gosec // G304: user-chosen output path
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outputFile, err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}

		if format == outputFormatJSON {
			err = history.ExportJSON(w)
		} else {
			err = history.ExportCSV(w)
		}
		if err != nil {
			return fmt.Errorf("failed to export history: %w", err)
		}
		if outputFile != "" {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "History exported to %s\n", outputFile)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:          "delete <isbn>...",
	Short:        "Remove books from the history",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openStore(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()

		var errs []error
		for _, code := range args {
			if err := history.Delete(code); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					err = fmt.Errorf("%s: not in history", code)
				}
				errs = append(errs, err)
				continue
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", code)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyExportCmd, historyDeleteCmd)

	historyListCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, table, json)")
	historyListCmd.Flags().IntP("limit", "n", 0, "show at most this many books (default all)")

	historyExportCmd.Flags().StringP("format", "f", outputFormatCSV, "export format (csv, json)")
	historyExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
}
