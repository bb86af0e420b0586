// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/basepath"
	"github.com/Corphon/StoryEngine/internal/config"
	"github.com/Corphon/StoryEngine/internal/di"
	"github.com/Corphon/StoryEngine/internal/services"
	"github.com/Corphon/StoryEngine/internal/utils"
)

// EditorPrefix 编辑器 API 挂载点，相对于 base path
const EditorPrefix = "__story-editor"

// SetupRouter 配置HTTP路由，所有服务从容器获取
func SetupRouter(cfg *config.Config, container *di.Container) (*gin.Engine, error) {
	store, err := di.Resolve[*services.ContentStore](container, di.ContentStore)
	if err != nil {
		return nil, fmt.Errorf("内容存储服务未正确初始化: %w", err)
	}
	catalog, err := di.Resolve[*services.SiteCatalog](container, di.SiteCatalog)
	if err != nil {
		return nil, fmt.Errorf("站点目录服务未正确初始化: %w", err)
	}
	home, err := di.Resolve[*services.HomeConfigCache](container, di.HomeCache)
	if err != nil {
		return nil, fmt.Errorf("首页缓存未正确初始化: %w", err)
	}
	hub, err := di.Resolve[*WebSocketManager](container, di.EventHub)
	if err != nil {
		return nil, fmt.Errorf("事件推送未正确初始化: %w", err)
	}

	logger := zap.NewNop()
	if container.Has(di.Logger) {
		if logger, err = di.Resolve[*zap.Logger](container, di.Logger); err != nil {
			return nil, err
		}
	}
	var metrics *utils.Metrics
	if container.Has(di.Metrics) {
		if metrics, err = di.Resolve[*utils.Metrics](container, di.Metrics); err != nil {
			return nil, err
		}
	}

	resp := NewResponseHelper(!cfg.IsProduction())
	handler := NewHandler(store, catalog, home, resp, logger)
	resolver := basepath.New(cfg.BasePath)

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.Use(gin.Recovery())
	if metrics != nil {
		r.Use(RequestMetrics(metrics))
	}

	// 仅当编辑器 UI 独立部署时启用 CORS
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", requestIDHeader}
		corsConfig.MaxAge = 12 * time.Hour
		r.Use(cors.New(corsConfig))
	}

	// ===============================
	// 运维端点
	// ===============================
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// ===============================
	// 站点API
	// ===============================
	site := r.Group(resolver.Join("api/site"))
	{
		site.GET("/home", handler.SiteHome)
		site.GET("/stories", handler.SiteStories)
	}

	// ===============================
	// 编辑器API
	// ===============================
	if cfg.EditorEnabled {
		editor := r.Group(resolver.Join(EditorPrefix))
		editor.Use(OriginCheck(cfg.StrictOrigin, cfg.CORSAllowedOrigins, resp))
		if cfg.MutationRateLimit > 0 {
			editor.Use(MutationRateLimit(NewRateLimiter(cfg.MutationRateLimit, cfg.MutationRateBurst), resp))
		}
		{
			editor.GET("/index", handler.ListStories)

			editor.GET("/story", handler.GetStory)
			editor.PUT("/story", handler.PutStory)
			editor.DELETE("/story", handler.DeleteStory)

			editor.GET("/content", handler.GetContent)
			editor.PUT("/content", handler.PutContent)

			editor.GET("/media", handler.ListMedia)
			editor.POST("/media", handler.UploadMedia)
			editor.DELETE("/media", handler.DeleteMedia)

			editor.GET("/events", hub.ServeWS)
		}
		logger.Info("editor API mounted", zap.String("prefix", resolver.Join(EditorPrefix)))
	}

	// 内容根目录静态文件
	r.NoRoute(ContentFiles(cfg.ContentDir, resolver, resp))

	return r, nil
}
