package resolver

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"sjsage522/inventorywatch/helpers"
	"sjsage522/inventorywatch/internal/inventory"
)

var (
	yearRe       = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	labelTokRe   = regexp.MustCompile(`^[A-Z0-9-]+$`)
	dollarRe     = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	makeLabelRe  = regexp.MustCompile(`\bMAKE\b[\s:#-]*`)
	modelLabelRe = regexp.MustCompile(`\bMODEL\b[\s:#-]*`)

	// Named JSON-LD fields checked before the generic walk
	vinFields = []string{"vin", "vehicleIdentificationNumber", "sku"}

	// Words that end a labelled value in the SPECIFICATIONS block
	stopLabels = map[string]bool{
		"YEAR": true, "MAKE": true, "MODEL": true, "TRIM": true, "VIN": true,
		"STOCK": true, "MILEAGE": true, "MILES": true, "ODOMETER": true,
		"ENGINE": true, "TRANSMISSION": true, "DRIVETRAIN": true, "DRIVE": true,
		"EXTERIOR": true, "INTERIOR": true, "COLOR": true, "BODY": true,
		"FUEL": true, "DOORS": true, "PRICE": true, "CONDITION": true,
		"TYPE": true, "STYLE": true, "SPECIFICATIONS": true,
	}
)

// VIN extractors

func structuredVIN(p *page) string {
	for _, block := range p.structured {
		if vin := walkVIN(block); vin != "" {
			return vin
		}
	}
	return ""
}

func walkVIN(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := sortedKeys(t)
		for _, field := range vinFields {
			for _, k := range keys {
				if !strings.EqualFold(k, field) {
					continue
				}
				if s, ok := t[k].(string); ok {
					if vin := strings.ToUpper(strings.TrimSpace(s)); inventory.IsVIN(vin) {
						return vin
					}
				}
			}
		}
		for _, k := range keys {
			if vin := walkVIN(t[k]); vin != "" {
				return vin
			}
		}
	case []interface{}:
		for _, item := range t {
			if vin := walkVIN(item); vin != "" {
				return vin
			}
		}
	case string:
		if s := strings.TrimSpace(t); inventory.IsVIN(s) {
			return s
		}
	}
	return ""
}

func backgroundVIN(p *page) string {
	for _, v := range p.background {
		vin := strings.ToUpper(strings.TrimSpace(v))
		if !inventory.IsVIN(vin) {
			continue
		}
		if p.claims != nil && p.claims.Claimed(vin) {
			continue
		}
		return vin
	}
	return ""
}

func textVIN(p *page) string {
	return inventory.FindVIN(p.text)
}

// Year extractors

func titleYear(p *page) string {
	return yearRe.FindString(strings.ToUpper(p.title))
}

func specYear(p *page) string {
	return yearRe.FindString(p.specBlock)
}

// Make and model extractors

func urlSegments(p *page) []string {
	parts, ok := helpers.InventoryTail(p.url, p.inventoryPath)
	if !ok || len(parts) < 2 {
		return nil
	}
	return parts
}

func urlMake(p *page) string {
	if parts := urlSegments(p); parts != nil {
		return strings.ToUpper(strings.TrimSpace(parts[0]))
	}
	return ""
}

func urlModel(p *page) string {
	if parts := urlSegments(p); parts != nil {
		return strings.ToUpper(strings.TrimSpace(parts[1]))
	}
	return ""
}

func specMake(p *page) string {
	return labelValue(p.specBlock, makeLabelRe)
}

func specModel(p *page) string {
	return labelValue(p.specBlock, modelLabelRe)
}

// labelValue returns the words following a label up to the next known label
// or the first word outside the label alphabet.
func labelValue(block string, label *regexp.Regexp) string {
	if block == "" {
		return ""
	}
	loc := label.FindStringIndex(block)
	if loc == nil {
		return ""
	}
	var words []string
	for _, tok := range strings.Fields(block[loc[1]:]) {
		word := strings.Trim(tok, ":,;|")
		if word == "" || stopLabels[word] || !labelTokRe.MatchString(word) {
			break
		}
		words = append(words, word)
		if word != tok {
			break
		}
	}
	return strings.Join(words, " ")
}

// Price extractors

func structuredPrice(p *page) string {
	for _, block := range p.structured {
		if price := walkPrice(block); price != "" {
			return price
		}
	}
	return ""
}

func walkPrice(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := sortedKeys(t)
		for _, k := range keys {
			if !strings.EqualFold(k, "price") {
				continue
			}
			switch pv := t[k].(type) {
			case string:
				if price := NormalizePrice(pv); price != "" {
					return price
				}
			case json.Number:
				if price := NormalizePrice(pv.String()); price != "" {
					return price
				}
			}
		}
		for _, k := range keys {
			if price := walkPrice(t[k]); price != "" {
				return price
			}
		}
	case []interface{}:
		for _, item := range t {
			if price := walkPrice(item); price != "" {
				return price
			}
		}
	}
	return ""
}

func itempropPrice(p *page) string {
	sel := p.doc.Find(`[itemprop="price"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if content, ok := sel.Attr("content"); ok {
		if price := NormalizePrice(content); price != "" {
			return price
		}
	}
	return NormalizePrice(sel.Text())
}

func textPrice(p *page) string {
	m := dollarRe.FindStringSubmatch(p.text)
	if m == nil {
		return ""
	}
	return NormalizePrice(m[1])
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
