// Package cache provides caching for rendered images and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	ImageCacheSizeMB int
	ImageTTL         time.Duration
	// Shards must be a power of two. Fewer shards allow larger images: no
	// entry may exceed ImageCacheSizeMB/Shards.
	Shards         int
	QueryCacheSize int
}

// Manager manages image and query caches.
type Manager struct {
	imageCache *bigcache.BigCache
	queryCache *lru.Cache[string, []byte]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	shards := cfg.Shards
	if shards <= 0 {
		shards = 64
	}
	ttl := cfg.ImageTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	imageCacheConfig := bigcache.Config{
		Shards:             shards,
		LifeWindow:         ttl,
		CleanWindow:        ttl / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       256 * 1024,
		HardMaxCacheSize:   cfg.ImageCacheSizeMB,
		Verbose:            false,
	}

	imageCache, err := bigcache.New(context.Background(), imageCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		imageCache.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		imageCache: imageCache,
		queryCache: queryCache,
	}, nil
}

// GetImage retrieves an encoded image from cache.
func (m *Manager) GetImage(key string) ([]byte, bool) {
	data, err := m.imageCache.Get(key)
	if err != nil {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return data, true
}

// SetImage stores an encoded image in cache. Images larger than a shard are
// rejected with an error and simply not cached.
func (m *Manager) SetImage(key string, data []byte) error {
	return m.imageCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// Purge drops every entry of both caches, e.g. after a dataset reload.
func (m *Manager) Purge() error {
	m.queryCache.Purge()
	return m.imageCache.Reset()
}

// ParamsHash reduces render parameters to a short stable digest.
func ParamsHash(params map[string]string) string {
	if len(params) == 0 {
		return "default"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, params[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ImageKey generates a cache key for a full heat map image.
func ImageKey(dataset, format string, params map[string]string) string {
	return fmt.Sprintf("img:%s:%s:%s", dataset, format, ParamsHash(params))
}

// RegionKey generates a cache key for a body region image.
func RegionKey(dataset string, x, y, w, h int, params map[string]string) string {
	return fmt.Sprintf("region:%s:%d,%d,%dx%d:%s", dataset, x, y, w, h, ParamsHash(params))
}

// QueryKey generates a cache key for a JSON query result.
func QueryKey(dataset, kind string, parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return fmt.Sprintf("q:%s:%s:%s", dataset, kind, strings.Join(s, "/"))
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"image_cache_len":   m.imageCache.Len(),
		"image_cache_bytes": humanize.Bytes(uint64(m.imageCache.Capacity())),
		"image_cache_hits":  m.hits.Load(),
		"image_cache_miss":  m.misses.Load(),
		"query_cache_len":   m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.imageCache.Close()
}
