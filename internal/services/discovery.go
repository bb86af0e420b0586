// internal/services/discovery.go
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/storage"
	"github.com/Corphon/StoryEngine/internal/utils"
)

const (
	// IndexFile 内容根目录下的故事索引
	IndexFile    = "index.json"
	indexVersion = "1.0"

	defaultDebounce = 150 * time.Millisecond
)

// ErrNoStoriesDir is returned when the content root has no stories/ folder.
var ErrNoStoriesDir = errors.New("no stories directory")

// DiscoveryConfig Discovery 依赖
type DiscoveryConfig struct {
	Debounce  time.Duration
	Logger    *zap.Logger
	Metrics   *utils.Metrics
	Publisher EventPublisher
}

// Discovery 扫描 stories/ 并生成 index.json
type Discovery struct {
	storage   *storage.FileStorage
	debounce  time.Duration
	logger    *zap.Logger
	metrics   *utils.Metrics
	publisher EventPublisher
}

// NewDiscovery 创建索引生成服务
func NewDiscovery(fileStorage *storage.FileStorage, cfg DiscoveryConfig) *Discovery {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Discovery{
		storage:   fileStorage,
		debounce:  cfg.Debounce,
		logger:    cfg.Logger.Named("discovery"),
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
	}
}

// SetPublisher attaches the change feed after construction.
func (d *Discovery) SetPublisher(publisher EventPublisher) {
	d.publisher = publisher
}

// GenerateIndex 重新生成 index.json。stories/ 不存在时只记录警告。
func (d *Discovery) GenerateIndex(ctx context.Context) (*models.ContentIndex, error) {
	if !d.storage.DirExists(storiesDir) {
		d.logger.Warn("no stories directory found", zap.String("content_dir", d.storage.BaseDir))
		return nil, ErrNoStoriesDir
	}

	entries, err := listStoryEntries(d.storage)
	if err != nil {
		return nil, fmt.Errorf("scan stories: %w", err)
	}

	index := &models.ContentIndex{Version: indexVersion, Stories: entries}
	if err := d.storage.SaveJSONFile("", IndexFile, index); err != nil {
		return nil, fmt.Errorf("write %s: %w", IndexFile, err)
	}

	if d.metrics != nil {
		d.metrics.IndexRebuilds.Inc()
	}
	d.logger.Info("generated index", zap.Int("stories", len(entries)))
	return index, nil
}

// Watch regenerates the index whenever a story file appears, disappears or
// is renamed. Events are debounced; Watch blocks until ctx is done.
func (d *Discovery) Watch(ctx context.Context) error {
	dir := d.storage.Path(storiesDir, "")
	if !d.storage.DirExists(storiesDir) {
		return ErrNoStoriesDir
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	d.logger.Info("watching stories", zap.String("dir", dir))

	timer := time.NewTimer(d.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !affectsIndex(event) {
				continue
			}
			d.logger.Debug("stories changed", zap.String("file", filepath.Base(event.Name)), zap.String("op", event.Op.String()))
			timer.Reset(d.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			index, err := d.GenerateIndex(ctx)
			if err != nil {
				d.logger.Error("regenerate index failed", zap.Error(err))
				continue
			}
			if d.publisher != nil {
				d.publisher.Publish(models.ChangeEvent{
					Type:      models.EventIndexUpdated,
					Path:      "/" + IndexFile,
					Timestamp: time.Now().UnixMilli(),
				})
			}
			d.logger.Debug("index refreshed by watcher", zap.Int("stories", len(index.Stories)))
		}
	}
}

// affectsIndex 只关心 *.json 的新增、删除和重命名，跳过隐藏文件
func affectsIndex(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
