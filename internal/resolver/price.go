package resolver

import (
	"regexp"
	"strconv"
	"strings"
)

var priceRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// NormalizePrice turns the first numeric-looking substring of s into an
// integer string. Thousands separators are removed and cents are truncated.
// It returns "" when s holds no number.
func NormalizePrice(s string) string {
	m := priceRe.FindString(s)
	if m == "" {
		return ""
	}
	m = strings.ReplaceAll(m, ",", "")
	if i := strings.IndexByte(m, '.'); i >= 0 {
		m = m[:i]
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
