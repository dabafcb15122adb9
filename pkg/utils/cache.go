package utils

import (
	"sync"
	"time"
)

// TTLCache 带过期时间的内存缓存
// 不再使用包级单例：由组合根创建并持有，时钟可注入方便测试
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	now   func() time.Time
}

// cacheItem 内部结构，包含值和过期时间点
type cacheItem struct {
	value     string
	expiresAt time.Time
}

// NewTTLCache 创建缓存实例
// now 传 nil 时使用 time.Now
func NewTTLCache(now func() time.Time) *TTLCache {
	if now == nil {
		now = time.Now
	}
	return &TTLCache{
		items: make(map[string]cacheItem),
		now:   now,
	}
}

// Set 写入缓存并指定存活时长
func (c *TTLCache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Get 读取缓存并校验是否过期
func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}

	// 过期懒删除
	if c.now().After(item.expiresAt) {
		c.Invalidate(key)
		return "", false
	}
	return item.value, true
}

// Invalidate 主动失效指定 key（凭证轮换后必须调用）
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
