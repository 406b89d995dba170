package isbn

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func digitsToString(ds []int) string {
	var b strings.Builder
	for _, d := range ds {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

func genBody() gopter.Gen {
	return gen.SliceOfN(9, gen.IntRange(0, 9))
}

func TestConvert10To13_ProducesValidBookland(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("conversion yields 978 prefix and a valid checksum", prop.ForAll(
		func(body []int, check int) bool {
			checkChar := byte('0' + check)
			if check == 10 {
				checkChar = 'X'
			}
			out := Convert10To13(digitsToString(body) + string(checkChar))
			return len(out) == 13 && strings.HasPrefix(out, "978") && Validate13(out)
		},
		genBody(),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestValidate13_DetectsSingleDigitMutation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("changing one digit breaks validation", prop.ForAll(
		func(body []int, pos, delta int) bool {
			valid := []byte(Convert10To13(digitsToString(body) + "0"))
			if !Validate13(string(valid)) {
				return false
			}
			d := int(valid[pos] - '0')
			valid[pos] = byte('0' + (d+delta)%10)
			return !Validate13(string(valid))
		},
		genBody(),
		gen.IntRange(0, 12),
		gen.IntRange(1, 9),
	))

	properties.TestingRun(t)
}

func TestValidate10_DetectsSingleDigitMutation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("changing one body digit breaks validation", prop.ForAll(
		func(body []int, pos, delta int) bool {
			isbn10, ok := Convert13To10(Convert10To13(digitsToString(body) + "0"))
			if !ok || !Validate10(isbn10) {
				return false
			}
			mutated := []byte(isbn10)
			d := int(mutated[pos] - '0')
			mutated[pos] = byte('0' + (d+delta)%10)
			return !Validate10(string(mutated))
		},
		genBody(),
		gen.IntRange(0, 8),
		gen.IntRange(1, 9),
	))

	properties.TestingRun(t)
}

func TestExtract_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("extracting an extracted key returns it unchanged", prop.ForAll(
		func(body []int, hyphenAt int) bool {
			raw := digitsToString(body) + "X"
			raw = raw[:hyphenAt] + "-" + raw[hyphenAt:]
			first, ok := Extract(raw)
			if !ok {
				return false
			}
			second, ok := Extract(first)
			return ok && first == second
		},
		genBody(),
		gen.IntRange(0, 10),
	))

	properties.Property("arbitrary text never yields a non-bookland key", prop.ForAll(
		func(raw string) bool {
			key, ok := Extract(raw)
			if !ok {
				return key == ""
			}
			return len(key) == 13 && (strings.HasPrefix(key, "978") || strings.HasPrefix(key, "979"))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestConvert13To10_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("13 to 10 conversion yields a valid ISBN-10 with the same body", prop.ForAll(
		func(body []int) bool {
			b := digitsToString(body)
			isbn10, ok := Convert13To10(Convert10To13(b + "0"))
			if !ok {
				return false
			}
			return Validate10(isbn10) && isbn10[:9] == b && Convert10To13(isbn10) == Convert10To13(b+"0")
		},
		genBody(),
	))

	properties.TestingRun(t)
}
