package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"sjsage522/inventorywatch/helpers"
	"sjsage522/inventorywatch/logger"
	"sjsage522/inventorywatch/services/cache"

	"github.com/PuerkitoBio/goquery"
)

// StaticSession is a Session over plain HTTP. It runs no scripts, so
// scrolling and clicking do nothing and no background responses are seen.
type StaticSession struct {
	cache cache.CacheService
	ttl   time.Duration
	log   *logger.Logger

	url  string
	html string
	doc  *goquery.Document
}

var _ Opener = (*StaticSession)(nil)

// NewStaticSession creates an HTTP session. cacheSvc may be nil.
func NewStaticSession(cacheSvc cache.CacheService, ttl time.Duration) *StaticSession {
	return &StaticSession{
		cache: cacheSvc,
		ttl:   ttl,
		log:   logger.ForBrowser("static"),
	}
}

// NewTab returns an independent session sharing the cache
func (s *StaticSession) NewTab(ctx context.Context) (Session, error) {
	return NewStaticSession(s.cache, s.ttl), nil
}

// Navigate fetches url, serving it from the cache when possible
func (s *StaticSession) Navigate(ctx context.Context, url string, _ WaitPolicy) error {
	html, err := s.load(ctx, url)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", url, err)
	}
	s.url, s.html, s.doc = url, html, doc
	return nil
}

func (s *StaticSession) load(ctx context.Context, url string) (string, error) {
	key := cache.PageKey(url)
	if s.cache != nil {
		data, err := s.cache.Get(key)
		if err == nil {
			s.log.Debug().Str("url", url).Msg("Page served from cache")
			return string(data), nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn().Err(err).Msg("Cache lookup failed")
		}
	}

	reader, err := helpers.FetchWithRandomHeaders(ctx, url)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(key, data, s.ttl); err != nil {
			s.log.Warn().Err(err).Msg("Cache store failed")
		}
	}
	return string(data), nil
}

// Anchors lists the links of the current page resolved against its URL
func (s *StaticSession) Anchors(ctx context.Context) ([]Anchor, error) {
	if s.doc == nil {
		return nil, nil
	}
	base := s.url
	if href, ok := s.doc.Find("base[href]").First().Attr("href"); ok {
		base = helpers.ResolveURL(s.url, href)
	}

	var anchors []Anchor
	s.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		rel, _ := a.Attr("rel")
		aria, _ := a.Attr("aria-label")
		anchors = append(anchors, Anchor{
			Href:      helpers.ResolveURL(base, href),
			Text:      strings.Join(strings.Fields(a.Text()), " "),
			Rel:       rel,
			AriaLabel: aria,
		})
	})
	return anchors, nil
}

// Scroll does nothing without a script engine
func (s *StaticSession) Scroll(ctx context.Context) error {
	return nil
}

// ClickByText never clicks without a script engine
func (s *StaticSession) ClickByText(ctx context.Context, labels []string) (bool, error) {
	return false, nil
}

// Content returns the fetched markup
func (s *StaticSession) Content(ctx context.Context) (string, error) {
	return s.html, nil
}

// Text returns the body text without script and style contents
func (s *StaticSession) Text(ctx context.Context) (string, error) {
	if s.doc == nil {
		return "", nil
	}
	body := s.doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(body.Text()), " "), nil
}

// OnResponse is accepted for interface compatibility; no responses are
// observed over plain HTTP.
func (s *StaticSession) OnResponse(fn func(Response)) {}

// Close releases nothing
func (s *StaticSession) Close() error {
	return nil
}
