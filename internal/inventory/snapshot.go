package inventory

// Snapshot is one run's VIN-keyed record set. It keeps insertion order so
// that persisted files are reproducible.
type Snapshot struct {
	date    string
	order   []string
	records map[string]Record
}

// NewSnapshot builds a snapshot from records. Records without a VIN are
// dropped and the first record wins for a repeated VIN.
func NewSnapshot(date string, records []Record) *Snapshot {
	s := &Snapshot{
		date:    date,
		order:   make([]string, 0, len(records)),
		records: make(map[string]Record, len(records)),
	}
	for _, r := range records {
		if r.VIN == "" {
			continue
		}
		if _, exists := s.records[r.VIN]; exists {
			continue
		}
		s.records[r.VIN] = r
		s.order = append(s.order, r.VIN)
	}
	return s
}

// Date returns the snapshot date
func (s *Snapshot) Date() string {
	return s.date
}

// Len returns the number of unique VINs
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Has reports whether the VIN is in the snapshot
func (s *Snapshot) Has(vin string) bool {
	if s == nil {
		return false
	}
	_, ok := s.records[vin]
	return ok
}

// Get returns the record for a VIN
func (s *Snapshot) Get(vin string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	r, ok := s.records[vin]
	return r, ok
}

// VINs returns the VINs in insertion order
func (s *Snapshot) VINs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Records returns the records in insertion order
func (s *Snapshot) Records() []Record {
	if s == nil {
		return nil
	}
	out := make([]Record, 0, len(s.order))
	for _, vin := range s.order {
		out = append(out, s.records[vin])
	}
	return out
}
