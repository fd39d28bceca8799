package inventory

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	vinExact = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)
	vinFind  = regexp.MustCompile(`\b([A-HJ-NPR-Z0-9]{17})\b`)
)

// Record represents one vehicle as extracted from a detail page
type Record struct {
	Date  string `json:"date"`
	Year  string `json:"year"`
	Make  string `json:"make"`
	Model string `json:"model"`
	VIN   string `json:"vin"`
	Price string `json:"price,omitempty"`
	URL   string `json:"url"`
}

// PriceValue parses the record price. The second result is false when the
// price is empty or not an integer.
func (r Record) PriceValue() (int64, bool) {
	p := strings.TrimSpace(r.Price)
	if p == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(p, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// PriceChange represents a price difference for a VIN present in both snapshots
type PriceChange struct {
	VIN      string `json:"vin"`
	OldPrice int64  `json:"old_price"`
	NewPrice int64  `json:"new_price"`
	Delta    int64  `json:"delta"`
	Year     string `json:"year"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	URL      string `json:"url"`
}

// Delta holds the result of comparing two snapshots
type Delta struct {
	Added        []Record
	Removed      []Record
	PriceChanges []PriceChange
}

// RollupGroup aggregates the VINs sharing a (year, make, model) key
type RollupGroup struct {
	Year  string
	Make  string
	Model string
	Count int
	VINs  []string
}

// JoinedVINs returns the group VINs joined for tabular output
func (g RollupGroup) JoinedVINs() string {
	return strings.Join(g.VINs, ", ")
}

// IsVIN reports whether s is exactly one VIN.
func IsVIN(s string) bool {
	return vinExact.MatchString(s)
}

// FindVIN returns the first word-bounded VIN in text, or "".
func FindVIN(text string) string {
	m := vinFind.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
