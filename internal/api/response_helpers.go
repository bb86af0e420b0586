// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/StoryEngine/internal/errors"
)

// ErrorBody 错误响应体
type ErrorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details string                 `json:"details,omitempty"`
	Issues  []apperrors.FieldIssue `json:"issues,omitempty"`
}

// ResponseHelper 响应助手
type ResponseHelper struct {
	// 非生产环境下上传失败附带 details
	exposeDetails bool
}

// NewResponseHelper 创建响应助手
func NewResponseHelper(exposeDetails bool) *ResponseHelper {
	return &ResponseHelper{exposeDetails: exposeDetails}
}

// OK 200 响应
func (rh *ResponseHelper) OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Done {ok: true}
func (rh *ResponseHelper) Done(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RawJSON 直接写出已存储的 JSON 文档
func (rh *ResponseHelper) RawJSON(c *gin.Context, raw []byte) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorBody{Error: message})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string) {
	rh.Error(c, http.StatusBadRequest, message)
}

// Fail maps a service error to its status. Only the client-safe message
// and, for validation failures, the field issues are sent.
func (rh *ResponseHelper) Fail(c *gin.Context, err error) {
	rh.fail(c, err, false)
}

// FailWithDetails is Fail plus the internal cause on 500s outside production.
func (rh *ResponseHelper) FailWithDetails(c *gin.Context, err error) {
	rh.fail(c, err, rh.exposeDetails)
}

func (rh *ResponseHelper) fail(c *gin.Context, err error, withDetails bool) {
	status := StatusFor(err)
	_ = c.Error(err)

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		c.AbortWithStatusJSON(status, ErrorBody{Error: "Internal server error."})
		return
	}

	body := ErrorBody{Error: appErr.Message, Code: appErr.Code, Issues: appErr.Fields}
	if withDetails && status == http.StatusInternalServerError && appErr.Err != nil {
		body.Details = appErr.Err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// getRequestID 获取请求ID
func getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
