package inventory

// Diff compares the current snapshot against the previous one. A nil
// previous snapshot means every current record is new.
//
// Price changes are only reported for VINs present in both snapshots whose
// prices parse on both sides; anything else is skipped silently since price
// is best-effort data.
func Diff(previous, current *Snapshot) Delta {
	delta := Delta{
		Added:        []Record{},
		Removed:      []Record{},
		PriceChanges: []PriceChange{},
	}

	if previous == nil {
		delta.Added = append(delta.Added, current.Records()...)
		return delta
	}

	for _, rec := range current.Records() {
		old, ok := previous.Get(rec.VIN)
		if !ok {
			delta.Added = append(delta.Added, rec)
			continue
		}

		oldPrice, okOld := old.PriceValue()
		newPrice, okNew := rec.PriceValue()
		if !okOld || !okNew || oldPrice == newPrice {
			continue
		}
		delta.PriceChanges = append(delta.PriceChanges, PriceChange{
			VIN:      rec.VIN,
			OldPrice: oldPrice,
			NewPrice: newPrice,
			Delta:    newPrice - oldPrice,
			Year:     rec.Year,
			Make:     rec.Make,
			Model:    rec.Model,
			URL:      rec.URL,
		})
	}

	for _, rec := range previous.Records() {
		if !current.Has(rec.VIN) {
			delta.Removed = append(delta.Removed, rec)
		}
	}

	return delta
}
