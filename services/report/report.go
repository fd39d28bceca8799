package report

import (
	"fmt"
	"io"
	"strconv"

	"sjsage522/inventorywatch/internal/inventory"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary is the outcome of one run
type Summary struct {
	Date         string
	Pages        int
	UniqueVINs   int
	PriceChanges int
}

// Line renders the one-line run summary
func (s Summary) Line() string {
	return fmt.Sprintf("pages scraped: %d, unique VINs: %d, price changes: %d", s.Pages, s.UniqueVINs, s.PriceChanges)
}

// Groups renders rollup groups as a table under a title
func Groups(w io.Writer, title string, groups []inventory.RollupGroup) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s (%d groups)", title, len(groups)))
	t.AppendHeader(table.Row{"Year", "Make", "Model", "Count", "VINs"})

	total := 0
	for _, g := range groups {
		t.AppendRow(table.Row{g.Year, g.Make, g.Model, g.Count, g.JoinedVINs()})
		total += g.Count
	}
	t.AppendFooter(table.Row{"", "", "Total", total, ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// PriceChanges renders price changes as a table
func PriceChanges(w io.Writer, changes []inventory.PriceChange) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Price changes (%d)", len(changes)))
	t.AppendHeader(table.Row{"VIN", "Year", "Make", "Model", "Old", "New", "Delta"})

	for _, c := range changes {
		delta := strconv.FormatInt(c.Delta, 10)
		if c.Delta > 0 {
			delta = "+" + delta
		}
		t.AppendRow(table.Row{c.VIN, c.Year, c.Make, c.Model, c.OldPrice, c.NewPrice, delta})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// Run renders the full report of a run: added and removed groups, then
// price changes
func Run(w io.Writer, added, removed []inventory.RollupGroup, changes []inventory.PriceChange) {
	Groups(w, "Added", added)
	Groups(w, "Removed", removed)
	PriceChanges(w, changes)
}
