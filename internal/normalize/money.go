package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// DollarsToCents converts a dollar amount to int64 cents.
// Uses math.Round to avoid truncation bias.
func DollarsToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// PercentToBasisPoints converts a percentage to basis points.
// e.g. 12.34% → 1234 bps.
func PercentToBasisPoints(v float64) int32 {
	return int32(math.Round(v * 100))
}

// ParseMoney extracts a dollar amount from strings like "$1,234.50" and
// returns it in cents. ok is false when no number is present.
func ParseMoney(s string) (cents int64, ok bool) {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return DollarsToCents(f), true
}

// AnyToCents converts a JSON-decoded number or money string to cents.
func AnyToCents(v any) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return DollarsToCents(x), true
	case int:
		return int64(x) * 100, true
	case int64:
		return x * 100, true
	case string:
		return ParseMoney(x)
	}
	return 0, false
}

// ParseRate parses a rate written as "20%", "20", or "0.2" into basis points.
// Values at or below 1 are read as fractions.
func ParseRate(v any) (int32, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		f = x
	case int:
		f = float64(x)
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(x), "%"))
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rate %q: %w", x, err)
		}
		f = parsed
		if strings.HasSuffix(strings.TrimSpace(x), "%") {
			return percentInRange(f, v)
		}
	default:
		return 0, fmt.Errorf("unsupported rate type %T", v)
	}
	if f <= 1 {
		f *= 100
	}
	return percentInRange(f, v)
}

func percentInRange(pct float64, orig any) (int32, error) {
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("rate %v out of range", orig)
	}
	return PercentToBasisPoints(pct), nil
}

// ApplyBasisPoints returns round(amount * bps / 10000), rounding half up.
func ApplyBasisPoints(amount int64, bps int32) int64 {
	return (amount*int64(bps) + 5000) / 10000
}

// FormatCents renders cents as a dollar string, e.g. 123450 → "$1,234.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}

// FormatBasisPoints renders basis points as a percentage, e.g. 2000 → "20%".
func FormatBasisPoints(bps int32) string {
	if bps%100 == 0 {
		return fmt.Sprintf("%d%%", bps/100)
	}
	return strconv.FormatFloat(float64(bps)/100, 'f', -1, 64) + "%"
}
