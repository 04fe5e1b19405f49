package crawlers

import (
	"net/http"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultHeaderCacheSize 默认缓存条目数
const DefaultHeaderCacheSize = 4096

// LRUHeaderCache 基于LRU的响应头缓存
// groupcache/lru 本身不是并发安全的, 这里用互斥锁保护
type LRUHeaderCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewLRUHeaderCache 创建缓存, size<=0 时使用默认值
func NewLRUHeaderCache(size int) *LRUHeaderCache {
	if size <= 0 {
		size = DefaultHeaderCacheSize
	}
	return &LRUHeaderCache{cache: lru.New(size)}
}

// Lookup 查找缓存
func (c *LRUHeaderCache) Lookup(url string) (http.Header, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(url)
	if !ok {
		return nil, false
	}
	return v.(http.Header).Clone(), true
}

// Store 写入缓存
func (c *LRUHeaderCache) Store(url string, header http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(url, header.Clone())
}

// Len 当前条目数
func (c *LRUHeaderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
