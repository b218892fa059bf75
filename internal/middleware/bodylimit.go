package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultBodyLimit 默认请求体大小限制
	DefaultBodyLimit = 1 * 1024 * 1024 // 1MB

	// BatchBodyLimit 批量导入请求的限制，容纳上千行密钥文本
	BatchBodyLimit = 4 * 1024 * 1024 // 4MB

	// RelayBodyLimit 中转请求的限制
	RelayBodyLimit = 2 * 1024 * 1024 // 2MB
)

// BodySizeLimit 限制请求体大小的中间件
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		applyBodyLimit(c, maxBytes)
	}
}

// DynamicBodySizeLimit 根据路由动态设置请求体大小限制
func DynamicBodySizeLimit(limits map[string]int64, defaultLimit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, exists := limits[c.FullPath()]
		if !exists {
			limit = defaultLimit
		}
		applyBodyLimit(c, limit)
	}
}

func applyBodyLimit(c *gin.Context, limit int64) {
	if c.Request.ContentLength > limit {
		abortJSON(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("请求体超过 %d 字节上限", limit))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	c.Header("X-Max-Body-Size", strconv.FormatInt(limit, 10))

	c.Next()
}
