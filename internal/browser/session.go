package browser

import (
	"context"
	"strings"
)

// WaitPolicy selects when Navigate considers a page loaded
type WaitPolicy int

const (
	// WaitLoad returns once the load event fired
	WaitLoad WaitPolicy = iota
	// WaitNetworkIdle additionally waits until no requests are in flight
	WaitNetworkIdle
)

// Anchor is a link found on the current page. Href is absolute.
type Anchor struct {
	Href      string `json:"href"`
	Text      string `json:"text"`
	Rel       string `json:"rel"`
	AriaLabel string `json:"aria"`
}

// Response is a background network response observed while a page loads
type Response struct {
	URL      string
	Status   int
	MIMEType string
	Body     []byte
}

// IsJSON reports whether the response carries a JSON body
func (r Response) IsJSON() bool {
	return IsJSONType(r.MIMEType)
}

// IsJSONType reports whether a MIME type denotes JSON
func IsJSONType(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.Contains(mime, "json")
}

// Session drives one page at a time. Implementations are not safe for
// concurrent use; crawler workers each get their own session.
type Session interface {
	// Navigate loads url and waits according to the policy
	Navigate(ctx context.Context, url string, wait WaitPolicy) error
	// Anchors lists the links on the current page
	Anchors(ctx context.Context) ([]Anchor, error)
	// Scroll moves the viewport down by one screen
	Scroll(ctx context.Context) error
	// ClickByText clicks the first clickable element whose text contains one
	// of labels, compared case-insensitively. It reports whether it clicked.
	ClickByText(ctx context.Context, labels []string) (bool, error)
	// Content returns the current rendered markup
	Content(ctx context.Context) (string, error)
	// Text returns the rendered body text
	Text(ctx context.Context) (string, error)
	// OnResponse registers a callback for background responses. Callbacks may
	// run on other goroutines.
	OnResponse(fn func(Response))
	// Close releases the session
	Close() error
}

// Opener is a Session that can open sibling sessions sharing its browser
type Opener interface {
	Session
	NewTab(ctx context.Context) (Session, error)
}
