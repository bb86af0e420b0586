// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/services"
)

// 单个故事或内容文档的请求体上限
const maxDocumentBytes int64 = 4 << 20

// Handler 处理编辑器与站点 API 请求
type Handler struct {
	Store    *services.ContentStore
	Catalog  *services.SiteCatalog
	Home     *services.HomeConfigCache
	Response *ResponseHelper
	logger   *zap.Logger
}

// NewHandler 创建API处理器
func NewHandler(
	store *services.ContentStore,
	catalog *services.SiteCatalog,
	home *services.HomeConfigCache,
	response *ResponseHelper,
	logger *zap.Logger) *Handler {

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Catalog:  catalog,
		Home:     home,
		Response: response,
		logger:   logger.Named("api"),
	}
}

// uploadBodyLimit base64 膨胀后的上传请求体上限
func (h *Handler) uploadBodyLimit() int64 {
	return h.Store.MaxUploadBytes()*4/3 + 64<<10
}

// readBody 读取完整请求体，超过 limit 时返回 *http.MaxBytesError
func readBody(c *gin.Context, limit int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	return io.ReadAll(c.Request.Body)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// ===============================
// 故事
// ===============================

// ListStories GET /index
func (h *Handler) ListStories(c *gin.Context) {
	stories, err := h.Store.ListStories(c.Request.Context())
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.OK(c, gin.H{"stories": stories})
}

// GetStory GET /story?id=
func (h *Handler) GetStory(c *gin.Context) {
	raw, err := h.Store.ReadStory(c.Request.Context(), c.Query("id"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.RawJSON(c, raw)
}

// PutStory PUT /story?id=，整体替换
func (h *Handler) PutStory(c *gin.Context) {
	id := c.Query("id")
	if !services.ValidStoryID(id) {
		h.Response.BadRequest(c, ErrorInvalidStoryID)
		return
	}

	body, ok := h.documentBody(c)
	if !ok {
		return
	}

	if _, err := h.Store.WriteStory(c.Request.Context(), id, body); err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Done(c)
}

// DeleteStory DELETE /story?id=
func (h *Handler) DeleteStory(c *gin.Context) {
	if err := h.Store.DeleteStory(c.Request.Context(), c.Query("id")); err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Done(c)
}

// ===============================
// 首页 / 关于页
// ===============================

// GetContent GET /content?file=
func (h *Handler) GetContent(c *gin.Context) {
	raw, err := h.Store.ReadContent(c.Request.Context(), c.Query("file"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.RawJSON(c, raw)
}

// PutContent PUT /content?file=
func (h *Handler) PutContent(c *gin.Context) {
	body, ok := h.documentBody(c)
	if !ok {
		return
	}

	if _, err := h.Store.WriteContent(c.Request.Context(), c.Query("file"), body); err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Done(c)
}

func (h *Handler) documentBody(c *gin.Context) ([]byte, bool) {
	body, err := readBody(c, maxDocumentBytes)
	if err != nil {
		if isTooLarge(err) {
			h.Response.BadRequest(c, ErrorBodyTooLarge)
			return nil, false
		}
		h.logger.Debug("read request body failed", zap.String("request_id", getRequestID(c)), zap.Error(err))
		h.Response.BadRequest(c, ErrorInvalidJSON)
		return nil, false
	}
	return body, true
}

// ===============================
// 媒体库
// ===============================

// ListMedia GET /media?type=
func (h *Handler) ListMedia(c *gin.Context) {
	files, err := h.Store.ListMedia(c.Request.Context(), c.Query("type"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.OK(c, gin.H{"files": files})
}

// UploadMedia POST /media?type=，请求体 {name, data}
func (h *Handler) UploadMedia(c *gin.Context) {
	mediaType := c.Query("type")
	if _, ok := services.MediaFolder(mediaType); !ok {
		h.Response.BadRequest(c, ErrorInvalidMediaType)
		return
	}

	body, err := readBody(c, h.uploadBodyLimit())
	if err != nil {
		if isTooLarge(err) {
			h.Response.BadRequest(c, ErrorFileTooLarge)
			return
		}
		h.Response.BadRequest(c, ErrorInvalidJSON)
		return
	}

	var upload models.MediaUpload
	if err := json.Unmarshal(body, &upload); err != nil {
		h.Response.BadRequest(c, ErrorInvalidJSON)
		return
	}

	path, err := h.Store.UploadMedia(c.Request.Context(), mediaType, upload)
	if err != nil {
		h.Response.FailWithDetails(c, err)
		return
	}
	h.Response.OK(c, gin.H{"ok": true, "path": path})
}

// DeleteMedia DELETE /media?type=&name=，移入回收站
func (h *Handler) DeleteMedia(c *gin.Context) {
	if err := h.Store.DeleteMedia(c.Request.Context(), c.Query("type"), c.Query("name")); err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Done(c)
}

// ===============================
// 站点
// ===============================

// SiteHome GET /api/site/home
func (h *Handler) SiteHome(c *gin.Context) {
	home, err := h.Home.Get(c.Request.Context())
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.OK(c, home)
}

// SiteStories GET /api/site/stories
func (h *Handler) SiteStories(c *gin.Context) {
	stories, err := h.Catalog.Stories(c.Request.Context())
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.OK(c, gin.H{"stories": stories})
}

// Health GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
