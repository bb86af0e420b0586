// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/api"
	"github.com/Corphon/StoryEngine/internal/basepath"
	"github.com/Corphon/StoryEngine/internal/config"
	"github.com/Corphon/StoryEngine/internal/di"
	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/services"
	"github.com/Corphon/StoryEngine/internal/storage"
	"github.com/Corphon/StoryEngine/internal/utils"
)

const shutdownTimeout = 15 * time.Second

// App 持有一个运行实例的全部服务
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *utils.Metrics
	Container *di.Container

	Storage   *storage.FileStorage
	Store     *services.ContentStore
	Discovery *services.Discovery
	Home      *services.HomeConfigCache
	Catalog   *services.SiteCatalog
	Hub       *api.WebSocketManager

	router *gin.Engine
}

// fanout 把一个事件依次交给多个订阅者
type fanout []services.EventPublisher

func (f fanout) Publish(event models.ChangeEvent) {
	for _, p := range f {
		p.Publish(event)
	}
}

// New 按依赖顺序初始化所有服务并注册到容器
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := utils.NewMetrics()

	cache := storage.NewDocumentCache(0, 0)
	metrics.RegisterCacheStats(cache.Stats)

	fileStorage, err := storage.NewFileStorage(cfg.ContentDir, cache)
	if err != nil {
		return nil, fmt.Errorf("初始化内容目录失败: %w", err)
	}

	resolver := basepath.New(cfg.BasePath)
	hub := api.NewWebSocketManager(cfg.StrictOrigin, cfg.CORSAllowedOrigins, logger, metrics)
	home := services.NewHomeConfigCache(fileStorage, resolver, logger)

	// 编辑器保存 home.json 后首页缓存随之失效
	publisher := fanout{hub, home}

	store := services.NewContentStore(fileStorage, services.ContentStoreConfig{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
		Metrics:        metrics,
		Publisher:      publisher,
	})
	discovery := services.NewDiscovery(fileStorage, services.DiscoveryConfig{
		Logger:    logger,
		Metrics:   metrics,
		Publisher: publisher,
	})
	catalog := services.NewSiteCatalog(fileStorage, resolver, logger)

	container := di.NewContainer()
	container.Register(di.Logger, logger)
	container.Register(di.Metrics, metrics)
	container.Register(di.ContentStore, store)
	container.Register(di.Discovery, discovery)
	container.Register(di.HomeCache, home)
	container.Register(di.SiteCatalog, catalog)
	container.Register(di.EventHub, hub)

	router, err := api.SetupRouter(cfg, container)
	if err != nil {
		return nil, fmt.Errorf("设置路由失败: %w", err)
	}

	logger.Info("services initialized",
		zap.String("content_dir", cfg.ContentDir),
		zap.String("base_path", resolver.Base()),
		zap.Strings("services", container.GetNames()))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Container: container,
		Storage:   fileStorage,
		Store:     store,
		Discovery: discovery,
		Home:      home,
		Catalog:   catalog,
		Hub:       hub,
		router:    router,
	}, nil
}

// Handler 返回 HTTP 处理器
func (a *App) Handler() http.Handler {
	return a.router
}

// Run 生成一次索引，启动目录监听和 HTTP 服务，ctx 取消后优雅关闭
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a.serve(ctx, srv, srv.ListenAndServe)
}

func (a *App) serve(ctx context.Context, srv *http.Server, listen func() error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Hub.Run(runCtx)
	}()

	if _, err := a.Discovery.GenerateIndex(runCtx); err != nil && !errors.Is(err, services.ErrNoStoriesDir) {
		a.Logger.Error("initial index generation failed", zap.Error(err))
	}

	if a.Config.WatchContent {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Discovery.Watch(runCtx); err != nil {
				a.Logger.Warn("content watcher not running", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutting down server")
	case err, ok := <-errCh:
		if ok {
			serveErr = fmt.Errorf("启动服务器失败: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("服务器强制关闭: %w", err)
	}

	cancel()
	wg.Wait()
	a.Logger.Info("server stopped")
	return serveErr
}
