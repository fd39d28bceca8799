package crawler

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"sjsage522/inventorywatch/internal/browser"
	"sjsage522/inventorywatch/internal/inventory"
)

// Observations collects VINs seen in background JSON responses. It is fed
// from the session's event goroutines, so every method is safe for
// concurrent use. Adding a VIN twice is a no-op.
type Observations struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewObservations creates an empty observation set
func NewObservations() *Observations {
	return &Observations{seen: make(map[string]struct{})}
}

// Add records a VIN and reports whether it was new
func (o *Observations) Add(vin string) bool {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if !inventory.IsVIN(vin) {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.seen[vin]; ok {
		return false
	}
	o.seen[vin] = struct{}{}
	o.order = append(o.order, vin)
	return true
}

// Observe is a browser.Session response callback. Non-JSON and malformed
// bodies are ignored.
func (o *Observations) Observe(resp browser.Response) {
	if !resp.IsJSON() || len(resp.Body) == 0 {
		return
	}
	for _, vin := range VINsInJSON(resp.Body) {
		o.Add(vin)
	}
}

// Reset forgets every observation. Called before each detail page.
func (o *Observations) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = make(map[string]struct{})
	o.order = nil
}

// Snapshot returns the observed VINs in the order they were first seen
func (o *Observations) Snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Len returns the number of distinct observed VINs
func (o *Observations) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

// VINsInJSON returns every VIN-shaped string value in a JSON document, in
// sorted-key depth-first order. It returns nil for malformed input.
func VINsInJSON(body []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	var out []string
	collectVINs(v, &out)
	return out
}

func collectVINs(v interface{}, out *[]string) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectVINs(t[k], out)
		}
	case []interface{}:
		for _, item := range t {
			collectVINs(item, out)
		}
	case string:
		if s := strings.ToUpper(strings.TrimSpace(t)); inventory.IsVIN(s) {
			*out = append(*out, s)
		}
	}
}

// claimSet tracks VINs already assigned to a record during one crawl
type claimSet struct {
	mu   sync.Mutex
	vins map[string]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{vins: make(map[string]struct{})}
}

// Claimed implements resolver.Claims
func (c *claimSet) Claimed(vin string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.vins[vin]
	return ok
}

// Claim marks vin as assigned and reports whether it was free
func (c *claimSet) Claim(vin string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.vins[vin]; ok {
		return false
	}
	c.vins[vin] = struct{}{}
	return true
}
