package inventory

import (
	"sort"
)

type groupKey struct {
	year, make, model string
}

// Rollup groups records by (year, make, model). Each group lists its
// distinct VINs in ascending order and groups are sorted by key.
func Rollup(records []Record) []RollupGroup {
	sets := make(map[groupKey]map[string]struct{})
	for _, r := range records {
		k := groupKey{r.Year, r.Make, r.Model}
		set, ok := sets[k]
		if !ok {
			set = make(map[string]struct{})
			sets[k] = set
		}
		set[r.VIN] = struct{}{}
	}

	groups := make([]RollupGroup, 0, len(sets))
	for k, set := range sets {
		vins := make([]string, 0, len(set))
		for vin := range set {
			vins = append(vins, vin)
		}
		sort.Strings(vins)
		groups = append(groups, RollupGroup{
			Year:  k.year,
			Make:  k.make,
			Model: k.model,
			Count: len(vins),
			VINs:  vins,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Make != b.Make {
			return a.Make < b.Make
		}
		return a.Model < b.Model
	})

	return groups
}
