package resolver

import (
	"sjsage522/inventorywatch/helpers"
	"sjsage522/inventorywatch/internal/inventory"
)

// DefaultInventoryPath is the path prefix shared by listing and detail pages
const DefaultInventoryPath = "/inventory/"

// Input is everything captured for one detail page
type Input struct {
	// HTML is the rendered markup
	HTML string
	// Text is supplementary client-rendered body text
	Text string
	// URLHint is the navigated URL
	URLHint string
	// Background lists VIN-shaped strings seen in JSON responses while the
	// page loaded, in observation order
	Background []string
	// Date stamps the resulting record
	Date string
}

// Claims reports VINs already assigned to another record in the current run
type Claims interface {
	Claimed(vin string) bool
}

// Result is a resolved record together with the source of each field
type Result struct {
	Record      inventory.Record
	VINSource   Source
	YearSource  Source
	MakeSource  Source
	ModelSource Source
	PriceSource Source
}

// Resolver extracts vehicle records from detail pages. It performs no I/O
// and returns the same record for the same input and claims.
type Resolver struct {
	inventoryPath string
}

// New creates a resolver for sites whose vehicle URLs live under inventoryPath
func New(inventoryPath string) *Resolver {
	if inventoryPath == "" {
		inventoryPath = DefaultInventoryPath
	}
	return &Resolver{inventoryPath: helpers.NormalizePrefix(inventoryPath)}
}

// Resolve returns the best-effort record for a page. The VIN is empty when no
// source yielded one.
func (r *Resolver) Resolve(in Input, claims Claims) inventory.Record {
	return r.ResolveDetailed(in, claims).Record
}

// ResolveDetailed is Resolve with the winning source of every field
func (r *Resolver) ResolveDetailed(in Input, claims Claims) Result {
	p := newPage(in, claims, r.inventoryPath)

	var res Result
	var vin, year, mk, model, price string
	vin, res.VINSource = firstOf(p, vinChain)
	year, res.YearSource = firstOf(p, yearChain)
	mk, res.MakeSource = firstOf(p, makeChain)
	model, res.ModelSource = firstOf(p, modelChain)
	price, res.PriceSource = firstOf(p, priceChain)

	res.Record = inventory.Record{
		Date:  in.Date,
		Year:  year,
		Make:  mk,
		Model: model,
		VIN:   vin,
		Price: price,
		URL:   p.url,
	}
	return res
}
