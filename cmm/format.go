package cmm

import (
	"strconv"
	"strings"
)

// FormatNumber writes v with at most precision decimals, trimming
// trailing zeros and the point. Negative zero prints as "0".
func FormatNumber(v float64, precision int) string {
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
