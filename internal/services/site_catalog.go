// internal/services/site_catalog.go
package services

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/basepath"
	apperrors "github.com/Corphon/StoryEngine/internal/errors"
	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/schema"
	"github.com/Corphon/StoryEngine/internal/storage"
)

const msgLoadCatalog = "Failed to load stories."

// SiteCatalog 为站点首页和导航生成故事摘要
type SiteCatalog struct {
	storage  *storage.FileStorage
	resolver basepath.Resolver
	logger   *zap.Logger
}

// NewSiteCatalog 创建故事目录服务
func NewSiteCatalog(fileStorage *storage.FileStorage, resolver basepath.Resolver, logger *zap.Logger) *SiteCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteCatalog{
		storage:  fileStorage,
		resolver: resolver,
		logger:   logger.Named("catalog"),
	}
}

// Stories returns the metadata of every story file that decodes, newest
// first. Undated stories sort last; ties are broken by id.
func (c *SiteCatalog) Stories(ctx context.Context) ([]models.StoryMeta, error) {
	entries, err := listStoryEntries(c.storage)
	if err != nil {
		c.logger.Error("list stories failed", zap.Error(err))
		return nil, apperrors.NewProcessingError(msgLoadCatalog, err)
	}

	metas := make([]models.StoryMeta, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var doc models.StoryDocument
		if err := c.storage.LoadJSONFile(storiesDir, entry.ID+".json", &doc); err != nil {
			c.logger.Warn("skipping unreadable story", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		metas = append(metas, c.meta(entry, &doc))
	}

	sort.SliceStable(metas, func(i, j int) bool {
		a, aok := publishedTime(metas[i].PublishedAt)
		b, bok := publishedTime(metas[j].PublishedAt)
		switch {
		case aok && bok && !a.Equal(b):
			return a.After(b)
		case aok != bok:
			return aok
		default:
			return metas[i].ID < metas[j].ID
		}
	})
	return metas, nil
}

func (c *SiteCatalog) meta(entry models.StoryIndexEntry, doc *models.StoryDocument) models.StoryMeta {
	return models.StoryMeta{
		ID:          entry.ID,
		Title:       doc.Title,
		Subtitle:    doc.Subtitle,
		Description: doc.Description,
		Theme:       doc.Theme,
		Cover:       c.resolver.With(coverOf(doc)),
		ConfigPath:  c.resolver.With(entry.ConfigPath),
		Badge:       doc.Badge,
		PublishedAt: doc.PublishedAt,
	}
}

func publishedTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	return schema.ParseDate(value)
}

// coverOf 取第一页的背景图，没有时取前景图
func coverOf(doc *models.StoryDocument) string {
	if len(doc.Pages) == 0 {
		return ""
	}
	first := doc.Pages[0]
	if first.Background != nil && first.Background.Src != "" {
		return first.Background.Src
	}
	if first.Foreground != nil {
		return first.Foreground.Src
	}
	return ""
}
