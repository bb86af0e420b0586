// internal/api/error_codes.go
package api

import (
	"net/http"

	apperrors "github.com/Corphon/StoryEngine/internal/errors"
)

// 中间件直接返回的错误消息
const (
	ErrorInvalidOrigin   = "Invalid origin."
	ErrorTooManyRequests = "Too many requests."
	ErrorNotFound        = "Not found."
)

// 在进入服务层之前就能判定的请求错误
const (
	ErrorInvalidStoryID   = "Invalid story id."
	ErrorInvalidJSON      = "Invalid JSON body."
	ErrorInvalidMediaType = "Invalid media type."
	ErrorFileTooLarge     = "File is too large."
	ErrorBodyTooLarge     = "Request body is too large."
)

// statusForType 错误类型到 HTTP 状态码
var statusForType = map[apperrors.ErrorType]int{
	apperrors.ErrorTypeValidation: http.StatusBadRequest,
	apperrors.ErrorTypeTooLarge:   http.StatusBadRequest,
	apperrors.ErrorTypeNotFound:   http.StatusNotFound,
	apperrors.ErrorTypeConflict:   http.StatusConflict,
	apperrors.ErrorTypeForbidden:  http.StatusForbidden,
	apperrors.ErrorTypeError:      http.StatusInternalServerError,
}

// StatusFor 返回错误对应的状态码，未知类型按 500 处理
func StatusFor(err error) int {
	if status, ok := statusForType[apperrors.TypeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
