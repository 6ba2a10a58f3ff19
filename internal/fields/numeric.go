package fields

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// DefaultCurrencySymbols are stripped before numeric parsing. Longer tokens first.
var DefaultCurrencySymbols = []string{"INR", "Rs.", "Rs", "₹", "$", "€", "£", "¥"}

// NumberNormalizer converts currency-formatted text into float64.
type NumberNormalizer struct {
	symbols []string
}

func NewNumberNormalizer(symbols []string) NumberNormalizer {
	if symbols == nil {
		symbols = DefaultCurrencySymbols
	}
	return NumberNormalizer{symbols: symbols}
}

// Normalize strips currency glyphs, thousands separators and whitespace.
// It returns 0 and ok=false when what remains is not a number.
func (n NumberNormalizer) Normalize(raw string) (float64, bool) {
	s := raw
	for _, sym := range n.symbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
