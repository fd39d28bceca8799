package resolver

// Source identifies where a field value was taken from
type Source int

const (
	// SourceNone means no extractor produced a value
	SourceNone Source = iota
	// SourceStructured is embedded JSON-LD metadata
	SourceStructured
	// SourceBackground is JSON observed in background network responses
	SourceBackground
	// SourceVisibleText is the page's visible and client-rendered text
	SourceVisibleText
	// SourceTitle is the document title
	SourceTitle
	// SourceSpecBlock is the labelled SPECIFICATIONS block
	SourceSpecBlock
	// SourceURL is the canonical URL path
	SourceURL
	// SourceMarkup is a dedicated markup attribute such as itemprop
	SourceMarkup
)

var sourceNames = map[Source]string{
	SourceNone:        "none",
	SourceStructured:  "structured",
	SourceBackground:  "background",
	SourceVisibleText: "visible_text",
	SourceTitle:       "title",
	SourceSpecBlock:   "spec_block",
	SourceURL:         "url",
	SourceMarkup:      "markup",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// extractor pulls one field out of a parsed page
type extractor struct {
	source  Source
	extract func(p *page) string
}

// firstOf applies the extractors in order and returns the first non-empty value
func firstOf(p *page, chain []extractor) (string, Source) {
	for _, e := range chain {
		if v := e.extract(p); v != "" {
			return v, e.source
		}
	}
	return "", SourceNone
}

var (
	vinChain = []extractor{
		{SourceStructured, structuredVIN},
		{SourceBackground, backgroundVIN},
		{SourceVisibleText, textVIN},
	}

	// The SPECIFICATIONS block is the more specific source, so it is tried
	// before the title.
	yearChain = []extractor{
		{SourceSpecBlock, specYear},
		{SourceTitle, titleYear},
	}

	// URL segments are structurally reliable; labels only fill gaps.
	makeChain = []extractor{
		{SourceURL, urlMake},
		{SourceSpecBlock, specMake},
	}

	modelChain = []extractor{
		{SourceURL, urlModel},
		{SourceSpecBlock, specModel},
	}

	priceChain = []extractor{
		{SourceStructured, structuredPrice},
		{SourceMarkup, itempropPrice},
		{SourceVisibleText, textPrice},
	}
)
