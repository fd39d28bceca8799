package cache

import (
	"errors"
	"time"

	"sjsage522/inventorywatch/logger"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
	log    *logger.Logger
}

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheService{
		client: client,
		log:    logger.ForCache().WithField("addr", serverAddr),
	}
}

// Ping checks that the memcache server answers
func (m *MemcacheService) Ping() error {
	return m.client.Ping()
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		m.log.Debug().Err(err).Str("key", key).Msg("Memcache get failed")
		return nil, err
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
	if err != nil {
		m.log.Debug().Err(err).Str("key", key).Int("bytes", len(value)).Msg("Memcache set failed")
	}
	return err
}

// Delete removes a value from memcache. Deleting a missing key is not an error.
func (m *MemcacheService) Delete(key string) error {
	if err := m.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		m.log.Debug().Err(err).Str("key", key).Msg("Memcache delete failed")
		return err
	}
	return nil
}
