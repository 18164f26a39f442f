package emit

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"roboblocks/internal/program"
)

// formatNumber renders f the way the editor prints a numeric field:
// shortest round-trip digits, no trailing ".0", exponent form only outside
// [1e-6, 1e21).
func formatNumber(f float64) string {
	switch {
	case f == 0:
		return "0"
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		if exp == "" {
			exp = "0"
		}
		return mant + "e" + sign + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// numberText renders a number field. Values that do not parse as numbers
// pass through untouched.
func numberText(v program.FieldValue) string {
	switch v.Kind {
	case program.FieldNumber:
		if f, err := v.Number.Float64(); err == nil {
			return formatNumber(f)
		}
		return v.Number.String()
	case program.FieldText:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64); err == nil {
			return formatNumber(f)
		}
		return v.Text
	default:
		return "0"
	}
}

var plainNumber = regexp.MustCompile(`^\s*-?\d+(\.\d+)?\s*$`)

func isNumber(s string) bool { return plainNumber.MatchString(s) }
