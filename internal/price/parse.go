package price

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"golang.org/x/text/width"
)

var digitsRe = regexp.MustCompile(`\d+`)

// ParsePrice reads a yen amount such as "￥1,234" or "¥ 980". Full-width
// characters are narrowed first. Only the first run of digits counts.
func ParsePrice(text string) (int, bool) {
	s := width.Narrow.String(strings.TrimSpace(text))
	s = strings.NewReplacer("¥", "", "\\", "", ",", "").Replace(s)

	m := digitsRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Format renders an amount with its ISO code and grouped digits, for
// example "JPY 1,234". Unknown codes are printed as given.
func Format(amount float64, code string, tag language.Tag) string {
	p := message.NewPrinter(tag)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return p.Sprintf("%s %v", code, number.Decimal(amount, number.Scale(2)))
	}
	scale, _ := currency.Standard.Rounding(unit)
	return p.Sprintf("%s %v", unit.String(), number.Decimal(amount, number.Scale(scale)))
}

// FormatQuote renders the price of q, followed by the converted price when
// there is one.
func FormatQuote(q *Quote, tag language.Tag) string {
	if q == nil {
		return ""
	}
	s := Format(float64(q.Price), q.Currency, tag)
	if q.ConvertedCurrency != "" {
		s += " (" + Format(q.Converted, q.ConvertedCurrency, tag) + ")"
	}
	return s
}
