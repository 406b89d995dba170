package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/bookscan/internal/testutil"
)

func TestInspectISBN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want isbnResult
	}{
		{
			name: "hyphenated ISBN-13",
			in:   "978-4-06-131336-1",
			want: isbnResult{Input: "978-4-06-131336-1", Format: "ISBN-13", Valid: true, ISBN13: testutil.BookISBN13, ISBN10: testutil.BookISBN10},
		},
		{
			name: "ISBN-10",
			in:   testutil.BookISBN10,
			want: isbnResult{Input: testutil.BookISBN10, Format: "ISBN-10", Valid: true, ISBN13: testutil.BookISBN13, ISBN10: testutil.BookISBN10},
		},
		{
			name: "ISBN-10 with X check",
			in:   "0-8044-2957-X",
			want: isbnResult{Input: "0-8044-2957-X", Format: "ISBN-10", Valid: true, ISBN13: "9780804429573", ISBN10: "080442957X"},
		},
		{
			name: "bad ISBN-13 check digit",
			in:   "9784061313362",
			want: isbnResult{Input: "9784061313362", Format: "ISBN-13", ISBN13: "9784061313362", ISBN10: testutil.BookISBN10},
		},
		{
			name: "979 has no ISBN-10",
			in:   "9791032305690",
			want: isbnResult{Input: "9791032305690", Format: "ISBN-13", Valid: true, ISBN13: "9791032305690"},
		},
		{
			name: "JAN code",
			in:   testutil.JANCode,
			want: isbnResult{Input: testutil.JANCode, Format: "invalid"},
		},
		{
			name: "lowercase x",
			in:   "080442957x",
			want: isbnResult{Input: "080442957x", Format: "invalid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inspectISBN(tt.in))
		})
	}
}

func TestISBNCommand(t *testing.T) {
	stdout, _, err := executeCommand(t, "isbn", "978-4-06-131336-1", testutil.BookISBN10)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "978-4-06-131336-1\tISBN-13\ttrue\t9784061313361\t4061313363", lines[0])
	assert.Equal(t, "4061313363\tISBN-10\ttrue\t9784061313361\t4061313363", lines[1])
}

func TestISBNCommandJSON(t *testing.T) {
	stdout, _, err := executeCommand(t, "isbn", "--format", "json", testutil.BookISBN13)
	require.NoError(t, err)

	var results []isbnResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 1)
	assert.True(t, results[0].Valid)
	assert.Equal(t, testutil.BookISBN10, results[0].ISBN10)
}

func TestISBNCommandCSV(t *testing.T) {
	stdout, _, err := executeCommand(t, "isbn", "-f", "csv", testutil.BookISBN13)
	require.NoError(t, err)
	assert.Equal(t, "INPUT,FORMAT,VALID,ISBN-13,ISBN-10\n9784061313361,ISBN-13,true,9784061313361,4061313363\n", stdout)
}

func TestISBNCommandTable(t *testing.T) {
	stdout, _, err := executeCommand(t, "isbn", "--format", "table", testutil.BookISBN13)
	require.NoError(t, err)
	assert.Contains(t, stdout, "╭")
	assert.Contains(t, stdout, "ISBN-13")
}

func TestISBNCommandErrors(t *testing.T) {
	t.Run("invalid code", func(t *testing.T) {
		stdout, _, err := executeCommand(t, "isbn", testutil.BookISBN13, testutil.JANCode)
		require.Error(t, err)
		assert.Equal(t, "1 of 2 codes are not valid ISBNs", err.Error())
		assert.Contains(t, stdout, testutil.JANCode+"\tinvalid\tfalse")
	})

	t.Run("no arguments", func(t *testing.T) {
		_, _, err := executeCommand(t, "isbn")
		require.Error(t, err)
	})

	t.Run("bad format", func(t *testing.T) {
		_, _, err := executeCommand(t, "isbn", "--format", "xml", testutil.BookISBN13)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output format: xml")
	})
}
