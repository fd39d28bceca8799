package resolver

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"sjsage522/inventorywatch/helpers"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const specLabel = "SPECIFICATIONS"

var (
	// Text inside these elements is never visible
	hiddenElements = map[string]bool{
		"script":   true,
		"style":    true,
		"noscript": true,
		"template": true,
	}

	labelPunct = regexp.MustCompile(`[^A-Z0-9]+`)
)

// page is the parsed form of one detail page shared by all extractors
type page struct {
	doc           *goquery.Document
	title         string
	url           string
	text          string
	specBlock     string
	structured    []interface{}
	background    []string
	claims        Claims
	inventoryPath string
}

func newPage(in Input, claims Claims, inventoryPath string) *page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		// html.Parse only fails on reader errors, which a strings.Reader never returns
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}

	p := &page{
		doc:           doc,
		title:         strings.TrimSpace(doc.Find("title").First().Text()),
		background:    in.Background,
		claims:        claims,
		inventoryPath: inventoryPath,
	}

	p.url = in.URLHint
	if href, ok := doc.Find(`link[rel~="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		p.url = helpers.ResolveURL(in.URLHint, href)
	}

	text := visibleText(doc.Selection)
	if extra := strings.TrimSpace(in.Text); extra != "" {
		text = strings.TrimSpace(text + " " + strings.Join(strings.Fields(extra), " "))
	}
	p.text = text

	p.specBlock = findSpecBlock(doc)
	p.structured = parseStructured(doc)

	return p
}

// visibleText joins every text node under the selection with single spaces,
// skipping elements whose text is never rendered.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hiddenElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

// findSpecBlock returns the upper-cased text of the SPECIFICATIONS block, or
// "" when the page has none. The block is the first element carrying the
// label in one of its own text nodes; a bare heading defers to its parent.
func findSpecBlock(doc *goquery.Document) string {
	var block *goquery.Selection
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n := s.Get(0)
		if hiddenElements[n.Data] {
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode && strings.Contains(strings.ToUpper(c.Data), specLabel) {
				block = s
				return false
			}
		}
		return true
	})
	if block == nil {
		return ""
	}

	text := strings.ToUpper(visibleText(block))
	if labelPunct.ReplaceAllString(strings.Replace(text, specLabel, "", 1), "") == "" {
		if parent := block.Parent(); parent.Length() > 0 && goquery.NodeName(parent) != "html" {
			text = strings.ToUpper(visibleText(parent))
		}
	}
	return text
}

// parseStructured decodes every JSON-LD block. Blocks that fail to decode
// are ignored.
func parseStructured(doc *goquery.Document) []interface{} {
	var out []interface{}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return
		}
		out = append(out, v)
	})
	return out
}
