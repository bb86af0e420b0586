// internal/api/middleware.go
package api

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/Corphon/StoryEngine/internal/errors"
	"github.com/Corphon/StoryEngine/internal/utils"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestLogger 用 zap 记录每个请求，跳过健康检查和指标端点
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}

		c.Next()

		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("request_id", requestID),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Server error", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Client error", fields...)
		default:
			logger.Info("Request completed", fields...)
		}
	}
}

// RequestMetrics 按路由模板统计请求
func RequestMetrics(metrics *utils.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func isMutation(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// OriginCheck rejects mutating requests whose Origin does not match the Host
// header, before any handler runs. Requests without an Origin pass unless
// strict is set; requests without a Host always pass. Origins listed in
// allowed also pass.
func OriginCheck(strict bool, allowed []string, resp *ResponseHelper) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowedSet[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		if !isMutation(c.Request.Method) {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			if strict {
				resp.Fail(c, apperrors.NewForbiddenError(ErrorInvalidOrigin, nil))
				return
			}
			c.Next()
			return
		}

		if _, ok := allowedSet[origin]; ok || c.Request.Host == "" {
			c.Next()
			return
		}
		if !sameOrigin(origin, c.Request.Host) {
			resp.Fail(c, apperrors.NewForbiddenError(ErrorInvalidOrigin, fmt.Errorf("origin %s does not match host %s", origin, c.Request.Host)))
			return
		}
		c.Next()
	}
}

// sameOrigin reports whether the host of origin equals host.
func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// RateLimiter 按客户端维护令牌桶
type RateLimiter struct {
	limit rate.Limit
	burst int

	visitors  map[string]*visitor
	mu        sync.Mutex
	idleTTL   time.Duration
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter perSecond 为每秒请求数，burst 为突发上限
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:     rate.Limit(perSecond),
		burst:     burst,
		visitors:  make(map[string]*visitor),
		idleTTL:   10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// Allow 检查 key 是否还有令牌
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key).Allow()
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > rl.idleTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// MutationRateLimit 仅限制修改类请求，按客户端 IP 计数
func MutationRateLimit(rl *RateLimiter, resp *ResponseHelper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutation(c.Request.Method) {
			c.Next()
			return
		}

		limiter := rl.get(c.ClientIP())
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%g", float64(rl.limit)))
		if !limiter.Allow() {
			retry := math.Ceil(1 / float64(rl.limit))
			c.Header("Retry-After", strconv.Itoa(int(math.Max(retry, 1))))
			resp.Error(c, http.StatusTooManyRequests, ErrorTooManyRequests)
			return
		}
		c.Next()
	}
}
