// internal/storage/file_cache.go
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DocumentCache 提供文件内容内存缓存，按修改时间和大小判断是否失效
type DocumentCache struct {
	cache      map[string]*DocumentCacheEntry
	mutex      sync.RWMutex
	maxSize    int           // 最大缓存条目数
	expiration time.Duration // 缓存过期时间

	hits   atomic.Uint64
	misses atomic.Uint64
}

// DocumentCacheEntry 缓存条目
type DocumentCacheEntry struct {
	Data     []byte
	CachedAt time.Time
	LastRead time.Time
	ModTime  time.Time
	Size     int64
}

// NewDocumentCache 创建文件缓存
func NewDocumentCache(maxSize int, expiration time.Duration) *DocumentCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	if expiration <= 0 {
		expiration = 5 * time.Minute
	}

	return &DocumentCache{
		cache:      make(map[string]*DocumentCacheEntry),
		maxSize:    maxSize,
		expiration: expiration,
	}
}

// Read 读取文件内容，缓存有效时直接返回。
// The returned slice is shared with the cache and must not be modified.
func (c *DocumentCache) Read(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("获取文件绝对路径失败: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		c.Invalidate(absPath)
		return nil, err
	}

	c.mutex.RLock()
	entry, exists := c.cache[absPath]
	c.mutex.RUnlock()

	if exists {
		isModified := !info.ModTime().Equal(entry.ModTime) || info.Size() != entry.Size
		isExpired := time.Since(entry.CachedAt) > c.expiration
		if !isModified && !isExpired {
			c.mutex.Lock()
			entry.LastRead = time.Now()
			c.mutex.Unlock()
			c.hits.Add(1)
			return entry.Data, nil
		}
	}
	c.misses.Add(1)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	c.mutex.Lock()
	c.cache[absPath] = &DocumentCacheEntry{
		Data:     data,
		CachedAt: now,
		LastRead: now,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}
	if len(c.cache) > c.maxSize {
		c.cleanupLRU(max(1, c.maxSize/5))
	}
	c.mutex.Unlock()

	return data, nil
}

// Invalidate 从缓存中删除条目
func (c *DocumentCache) Invalidate(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}

	c.mutex.Lock()
	delete(c.cache, absPath)
	c.mutex.Unlock()
}

// Clear 清空缓存
func (c *DocumentCache) Clear() {
	c.mutex.Lock()
	c.cache = make(map[string]*DocumentCacheEntry)
	c.mutex.Unlock()
}

// Len 当前缓存条目数
func (c *DocumentCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}

// Stats 返回命中与未命中次数
func (c *DocumentCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// 清理最少使用的条目，调用方持有写锁
func (c *DocumentCache) cleanupLRU(count int) {
	type keyAge struct {
		key  string
		time time.Time
	}

	entries := make([]keyAge, 0, len(c.cache))
	for k, v := range c.cache {
		entries = append(entries, keyAge{k, v.LastRead})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	for i := 0; i < min(count, len(entries)); i++ {
		delete(c.cache, entries[i].key)
	}
}
