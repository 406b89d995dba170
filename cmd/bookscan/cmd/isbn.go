package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/bookscan/internal/isbn"
)

// isbnResult describes one code given to the isbn command.
type isbnResult struct {
	Input  string `json:"input"`
	Format string `json:"format"`
	Valid  bool   `json:"valid"`
	ISBN13 string `json:"isbn13,omitempty"`
	ISBN10 string `json:"isbn10,omitempty"`
}

func inspectISBN(raw string) isbnResult {
	cleaned := isbn.Normalize(raw)
	res := isbnResult{Input: raw, Format: isbn.Classify(cleaned).String()}
	switch isbn.Classify(cleaned) {
	case isbn.FormatISBN13:
		res.Valid = isbn.Validate13(cleaned)
		res.ISBN13 = cleaned
		res.ISBN10, _ = isbn.Convert13To10(cleaned)
	case isbn.FormatISBN10:
		res.Valid = isbn.Validate10(cleaned)
		res.ISBN13 = isbn.Convert10To13(cleaned)
		res.ISBN10 = cleaned
	}
	return res
}

var isbnCmd = &cobra.Command{
	Use:   "isbn <code>...",
	Short: "Validate and convert ISBNs",
	Long: `Classify each code as ISBN-10 or ISBN-13, verify its check digit and
print both forms. Hyphens and spaces are ignored.

The command fails when any code is not a valid ISBN.

Examples:
  bookscan isbn 978-4-06-131336-1
  bookscan isbn 4061313363 9784061313361 --format json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format, outputFormatText, outputFormatTable, outputFormatJSON, outputFormatCSV); err != nil {
			return err
		}

		results := make([]isbnResult, 0, len(args))
		invalid := 0
		for _, arg := range args {
			res := inspectISBN(arg)
			if !res.Valid {
				invalid++
			}
			results = append(results, res)
		}

		out := cmd.OutOrStdout()
		headers := []string{"INPUT", "FORMAT", "VALID", "ISBN-13", "ISBN-10"}
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			rows = append(rows, []string{r.Input, r.Format, strconv.FormatBool(r.Valid), r.ISBN13, r.ISBN10})
		}

		var err error
		switch format {
		case outputFormatJSON:
			err = writeJSON(out, results)
		case outputFormatCSV:
			err = writeCSV(out, headers, rows)
		default:
			err = writeRows(out, headers, rows, nil, format == outputFormatTable)
		}
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}

		if invalid > 0 {
			return fmt.Errorf("%d of %d codes are not valid ISBNs", invalid, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(isbnCmd)
	isbnCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, table, json, csv)")
}
