package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sjsage522/inventorywatch/services/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-memory CacheService for tests
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ cache.CacheService = (*mapCache)(nil)

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (m *mapCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *mapCache) Set(key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

const listingHTML = `<html><head><base href="/inventory/"></head><body>
<a href="honda/civic/1/">2019 Honda Civic</a>
<a href="/inventory/?page=2" rel="next" aria-label="Next page">›</a>
<a href="javascript:void(0)">noop</a>
<script>var hidden = "not text";</script>
<p>Showing   1 of 2</p>
</body></html>`

func TestStaticSessionNavigateAndAnchors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	s := NewStaticSession(nil, 0)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, server.URL+"/inventory/", WaitNetworkIdle))

	anchors, err := s.Anchors(ctx)
	require.NoError(t, err)
	require.Len(t, anchors, 2)
	assert.Equal(t, server.URL+"/inventory/honda/civic/1/", anchors[0].Href)
	assert.Equal(t, "2019 Honda Civic", anchors[0].Text)
	assert.Equal(t, "next", anchors[1].Rel)
	assert.Equal(t, "Next page", anchors[1].AriaLabel)

	text, err := s.Text(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Showing 1 of 2")
	assert.NotContains(t, text, "not text")

	clicked, err := s.ClickByText(ctx, []string{"load more"})
	assert.NoError(t, err)
	assert.False(t, clicked)
	assert.NoError(t, s.Scroll(ctx))
}

func TestStaticSessionUsesCache(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("<html><body>VIN 1HGCM82633A004352</body></html>"))
	}))
	defer server.Close()

	c := newMapCache()
	s := NewStaticSession(c, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, server.URL+"/inventory/a/", WaitLoad))
	tab, err := s.NewTab(ctx)
	require.NoError(t, err)
	require.NoError(t, tab.Navigate(ctx, server.URL+"/inventory/a/", WaitLoad))

	html, err := tab.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "1HGCM82633A004352")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestStaticSessionNavigateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := NewStaticSession(nil, 0)
	err := s.Navigate(context.Background(), server.URL, WaitLoad)
	assert.Error(t, err)

	html, err := s.Content(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, html)
}

func TestIsJSONType(t *testing.T) {
	assert.True(t, IsJSONType("application/json"))
	assert.True(t, IsJSONType("application/ld+json; charset=utf-8"))
	assert.False(t, IsJSONType("text/html"))
	assert.True(t, Response{MIMEType: "Application/JSON"}.IsJSON())
}
