package inventory

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(vin, price string) Record {
	return Record{
		Date:  "2024-05-01",
		Year:  "2019",
		Make:  "HONDA",
		Model: "ACCORD",
		VIN:   vin,
		Price: price,
		URL:   "https://dealer.example/inventory/honda/accord/" + vin,
	}
}

func TestDiffPriceChangeAndAddition(t *testing.T) {
	prev := NewSnapshot("2024-04-30", []Record{rec("1HGCM82633A004352", "15000")})
	curr := NewSnapshot("2024-05-01", []Record{
		rec("1HGCM82633A004352", "14500"),
		rec("1FTFW1ET1EFA00001", "30000"),
	})

	delta := Diff(prev, curr)

	require.Len(t, delta.Added, 1)
	assert.Equal(t, "1FTFW1ET1EFA00001", delta.Added[0].VIN)
	assert.Empty(t, delta.Removed)

	want := []PriceChange{{
		VIN:      "1HGCM82633A004352",
		OldPrice: 15000,
		NewPrice: 14500,
		Delta:    -500,
		Year:     "2019",
		Make:     "HONDA",
		Model:    "ACCORD",
		URL:      "https://dealer.example/inventory/honda/accord/1HGCM82633A004352",
	}}
	if diff := cmp.Diff(want, delta.PriceChanges); diff != "" {
		t.Errorf("price changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffWithoutPreviousSnapshot(t *testing.T) {
	curr := NewSnapshot("2024-05-01", []Record{
		rec("1HGCM82633A004352", "14500"),
		rec("1FTFW1ET1EFA00001", ""),
	})

	delta := Diff(nil, curr)

	assert.Equal(t, curr.Records(), delta.Added)
	assert.Empty(t, delta.Removed)
	assert.Empty(t, delta.PriceChanges)
}

func TestDiffRemovedAndDisjoint(t *testing.T) {
	prev := NewSnapshot("2024-04-30", []Record{
		rec("1HGCM82633A004352", "15000"),
		rec("2T1BURHE0JC000002", "12000"),
	})
	curr := NewSnapshot("2024-05-01", []Record{
		rec("1HGCM82633A004352", "15000"),
		rec("1FTFW1ET1EFA00001", "30000"),
	})

	delta := Diff(prev, curr)

	require.Len(t, delta.Removed, 1)
	assert.Equal(t, "2T1BURHE0JC000002", delta.Removed[0].VIN)
	assert.Empty(t, delta.PriceChanges, "unchanged price must not be reported")

	added := map[string]bool{}
	for _, r := range delta.Added {
		added[r.VIN] = true
	}
	for _, r := range delta.Removed {
		assert.False(t, added[r.VIN], "VIN %s is both added and removed", r.VIN)
	}

	// added plus the carried-over VINs rebuild the current snapshot
	rebuilt := map[string]bool{}
	for vin := range added {
		rebuilt[vin] = true
	}
	for _, vin := range curr.VINs() {
		if prev.Has(vin) {
			rebuilt[vin] = true
		}
	}
	assert.Len(t, rebuilt, curr.Len())
	for _, vin := range curr.VINs() {
		assert.True(t, rebuilt[vin])
	}

	// symmetric for removed and previous
	kept := map[string]bool{}
	for _, r := range delta.Removed {
		kept[r.VIN] = true
	}
	for _, vin := range prev.VINs() {
		if curr.Has(vin) {
			kept[vin] = true
		}
	}
	assert.Len(t, kept, prev.Len())
}

func TestDiffSkipsUnparseablePrices(t *testing.T) {
	prev := NewSnapshot("2024-04-30", []Record{
		rec("1HGCM82633A004352", "call for price"),
		rec("1FTFW1ET1EFA00001", ""),
		rec("2T1BURHE0JC000002", "12000"),
	})
	curr := NewSnapshot("2024-05-01", []Record{
		rec("1HGCM82633A004352", "14500"),
		rec("1FTFW1ET1EFA00001", "30000"),
		rec("2T1BURHE0JC000002", "12500"),
	})

	delta := Diff(prev, curr)

	require.Len(t, delta.PriceChanges, 1)
	pc := delta.PriceChanges[0]
	assert.Equal(t, "2T1BURHE0JC000002", pc.VIN)
	assert.Equal(t, pc.NewPrice-pc.OldPrice, pc.Delta)
	assert.Equal(t, int64(500), pc.Delta)
}

func TestNewSnapshotDedupesByVIN(t *testing.T) {
	first := rec("1HGCM82633A004352", "15000")
	second := rec("1HGCM82633A004352", "9999")
	noVIN := rec("", "100")

	snap := NewSnapshot("2024-05-01", []Record{first, noVIN, second})

	assert.Equal(t, 1, snap.Len())
	got, ok := snap.Get("1HGCM82633A004352")
	require.True(t, ok)
	assert.Equal(t, "15000", got.Price, "first-seen record must win")

	again := NewSnapshot("2024-05-01", []Record{first, noVIN, second})
	assert.Equal(t, snap.Records(), again.Records())
}

func TestVINHelpers(t *testing.T) {
	assert.True(t, IsVIN("1HGCM82633A004352"))
	assert.False(t, IsVIN("1HGCM82633A00435"), "too short")
	assert.False(t, IsVIN("1HGCM82633A00435O"), "contains O")
	assert.False(t, IsVIN("1hgcm82633a004352"), "lower case")

	assert.Equal(t, "1HGCM82633A004352", FindVIN("Stock 12 VIN: 1HGCM82633A004352 Miles 1000"))
	assert.Equal(t, "", FindVIN("VIN1HGCM82633A004352X"), "not word bounded")
	assert.Equal(t, "", FindVIN("no vin here"))
}

func TestRecordPriceValue(t *testing.T) {
	v, ok := Record{Price: "14500"}.PriceValue()
	assert.True(t, ok)
	assert.Equal(t, int64(14500), v)

	_, ok = Record{Price: ""}.PriceValue()
	assert.False(t, ok)

	_, ok = Record{Price: "14,500"}.PriceValue()
	assert.False(t, ok)
}
