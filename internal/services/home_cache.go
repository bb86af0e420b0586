// internal/services/home_cache.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"sync"

	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/basepath"
	apperrors "github.com/Corphon/StoryEngine/internal/errors"
	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/schema"
	"github.com/Corphon/StoryEngine/internal/storage"
)

const (
	defaultNavTitle = "Story Atlas"
	msgHomeLoad     = "Unable to load home configuration."
)

type homeLoad struct {
	done       chan struct{}
	generation uint64
	doc        *models.HomeContent
	err        error
}

// HomeConfigCache 首页配置的进程级缓存。
// Concurrent first callers share one load; failed loads are not cached, and a
// load that overlaps a Reset is returned to its callers but never cached.
type HomeConfigCache struct {
	storage  *storage.FileStorage
	resolver basepath.Resolver
	logger   *zap.Logger
	loader   func() (*models.HomeContent, error)

	mu         sync.Mutex
	cached     *models.HomeContent
	pending    *homeLoad
	generation uint64
}

// NewHomeConfigCache 创建首页配置缓存
func NewHomeConfigCache(fileStorage *storage.FileStorage, resolver basepath.Resolver, logger *zap.Logger) *HomeConfigCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &HomeConfigCache{
		storage:  fileStorage,
		resolver: resolver,
		logger:   logger.Named("home_cache"),
	}
	c.loader = c.load
	return c
}

// Get 返回规范化后的首页配置
func (c *HomeConfigCache) Get(ctx context.Context) (*models.HomeContent, error) {
	c.mu.Lock()
	if c.cached != nil {
		doc := c.cached
		c.mu.Unlock()
		return doc, nil
	}

	load := c.pending
	leader := load == nil
	if leader {
		load = &homeLoad{done: make(chan struct{}), generation: c.generation}
		c.pending = load
	}
	c.mu.Unlock()

	if leader {
		load.doc, load.err = c.loader()

		c.mu.Lock()
		if load.err == nil && load.generation == c.generation {
			c.cached = load.doc
		}
		if c.pending == load {
			c.pending = nil
		}
		c.mu.Unlock()
		close(load.done)
	}

	select {
	case <-load.done:
		return load.doc, load.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset 清除缓存，下一次 Get 重新加载。
// An in-flight load started before Reset is not shared with later callers.
func (c *HomeConfigCache) Reset() {
	c.mu.Lock()
	c.generation++
	c.cached = nil
	c.pending = nil
	c.mu.Unlock()
}

// Publish drops the cached config when home.json changes.
func (c *HomeConfigCache) Publish(event models.ChangeEvent) {
	if event.Type == models.EventContentSaved && event.File == schema.HomeFile {
		c.Reset()
	}
}

func (c *HomeConfigCache) load() (*models.HomeContent, error) {
	raw, err := c.storage.LoadFile("", schema.HomeFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(msgHomeLoad, err)
		}
		c.logger.Error("load home config failed", zap.Error(err))
		return nil, apperrors.NewProcessingError(msgHomeLoad, err)
	}

	var doc models.HomeContent
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.logger.Error("decode home config failed", zap.Error(err))
		return nil, apperrors.NewProcessingError(msgHomeLoad, err)
	}

	return normalizeHome(&doc, c.resolver), nil
}

func normalizeHome(doc *models.HomeContent, resolver basepath.Resolver) *models.HomeContent {
	if doc.NavTitle == "" {
		if doc.Hero != nil && doc.Hero.Title != "" {
			doc.NavTitle = doc.Hero.Title
		} else {
			doc.NavTitle = defaultNavTitle
		}
	}
	if doc.Hero != nil {
		doc.Hero.Image = resolver.With(doc.Hero.Image)
	}
	return doc
}
