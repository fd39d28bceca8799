package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is not cached
var ErrMiss = errors.New("cache: miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// PageKey derives a cache key for a fetched page. URLs can exceed memcache's
// key length and contain characters it rejects, so the key is a digest.
func PageKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return "page:" + hex.EncodeToString(sum[:])
}
