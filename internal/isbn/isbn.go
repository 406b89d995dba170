// Package isbn extracts, validates and converts book identifiers.
//
// Every function is pure: no state is shared between calls and nothing
// touches I/O. The canonical key produced by Extract is always a 13 digit
// Bookland EAN (978/979 prefix).
package isbn

import (
	"strings"
	"unicode"
)

// Format classifies a cleaned identifier by shape.
type Format int

const (
	FormatInvalid Format = iota
	FormatISBN13
	FormatISBN10
)

func (f Format) String() string {
	switch f {
	case FormatISBN13:
		return "ISBN-13"
	case FormatISBN10:
		return "ISBN-10"
	default:
		return "invalid"
	}
}

const booklandPrefix = "978"

// Normalize removes hyphens and whitespace. No other character is touched.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// Classify reports the shape of raw after normalization.
// ISBN-13 shape is 13 digits starting with 978 or 979; ISBN-10 shape is
// 9 digits followed by a digit or 'X'. Checksums are not consulted.
func Classify(raw string) Format {
	s := Normalize(raw)
	switch {
	case len(s) == 13 && allDigits(s) && (strings.HasPrefix(s, "978") || strings.HasPrefix(s, "979")):
		return FormatISBN13
	case len(s) == 10 && allDigits(s[:9]) && (isDigit(s[9]) || s[9] == 'X'):
		return FormatISBN10
	default:
		return FormatInvalid
	}
}

// IsShape reports whether raw looks like an ISBN-10 or ISBN-13 once
// separators are removed. It gates lookups; it is not a checksum test.
func IsShape(raw string) bool {
	return Classify(raw) != FormatInvalid
}

// Extract turns decoded barcode text into a canonical 13 digit key.
// ISBN-13 shaped input is returned as-is, without checksum verification.
// ISBN-10 shaped input is converted with Convert10To13.
func Extract(raw string) (string, bool) {
	s := Normalize(raw)
	switch Classify(s) {
	case FormatISBN13:
		return s, true
	case FormatISBN10:
		return Convert10To13(s), true
	default:
		return "", false
	}
}

// Convert10To13 prefixes the first nine digits with 978 and appends a
// fresh EAN-13 check digit. The input check character is ignored.
// It returns "" when fewer than nine leading digits are present.
func Convert10To13(isbn10 string) string {
	if len(isbn10) < 9 || !allDigits(isbn10[:9]) {
		return ""
	}
	body := booklandPrefix + isbn10[:9]
	return body + string(eanCheckDigit(body))
}

// Convert13To10 reverses Convert10To13 for 978-prefixed keys.
// 979 keys have no ISBN-10 form.
func Convert13To10(isbn13 string) (string, bool) {
	s := Normalize(isbn13)
	if len(s) != 13 || !allDigits(s) || !strings.HasPrefix(s, booklandPrefix) {
		return "", false
	}
	body := s[3:12]
	return body + string(isbn10CheckChar(body)), true
}

// Validate13 reports whether s is exactly 13 digits with a correct EAN-13
// check digit.
func Validate13(s string) bool {
	if len(s) != 13 || !allDigits(s) {
		return false
	}
	return eanCheckDigit(s[:12]) == s[12]
}

// Validate10 reports whether s is an ISBN-10 with a correct mod-11 check
// character. Only an uppercase 'X' stands for ten.
func Validate10(s string) bool {
	if len(s) != 10 || !allDigits(s[:9]) {
		return false
	}
	last := s[9]
	if !isDigit(last) && last != 'X' {
		return false
	}
	return isbn10CheckChar(s[:9]) == last
}

// eanCheckDigit weights even positions by 1 and odd positions by 3.
func eanCheckDigit(digits string) byte {
	sum := 0
	for i := range len(digits) {
		d := int(digits[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += 3 * d
		}
	}
	return byte('0' + (10-sum%10)%10)
}

func isbn10CheckChar(digits string) byte {
	sum := 0
	for i := range 9 {
		sum += int(digits[i]-'0') * (10 - i)
	}
	r := sum % 11
	expected := 0
	if r != 0 {
		expected = 11 - r
	}
	if expected == 10 {
		return 'X'
	}
	return byte('0' + expected)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func allDigits(s string) bool {
	for i := range len(s) {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
