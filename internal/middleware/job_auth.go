package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/auth"
)

// 上下文键
const (
	ContextJobID     = "jobID"
	ContextJobClaims = "jobClaims"
)

// JobTokenValidator 任务访问令牌校验
type JobTokenValidator interface {
	Validate(token, jobID string) (*auth.JobClaims, error)
}

// JobAuth 任务令牌认证中间件
type JobAuth struct {
	tokens JobTokenValidator
	log    *zap.Logger
}

// NewJobAuth 创建任务认证中间件
func NewJobAuth(tokens JobTokenValidator, log *zap.Logger) *JobAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobAuth{tokens: tokens, log: log}
}

// RequireJobToken 要求请求携带与路径 :id 匹配的任务令牌
func (ja *JobAuth) RequireJobToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if jobID == "" {
			abortJSON(c, http.StatusBadRequest, "缺少任务ID")
			return
		}

		token := ExtractJobToken(c)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, "需要任务访问令牌")
			return
		}

		claims, err := ja.tokens.Validate(token, jobID)
		if err != nil {
			ja.log.Warn("invalid job token",
				zap.String("job_id", jobID),
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			msg := "无效的任务访问令牌"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "任务访问令牌已过期"
			}
			abortJSON(c, http.StatusUnauthorized, msg)
			return
		}

		c.Set(ContextJobID, jobID)
		c.Set(ContextJobClaims, claims)
		c.Next()
	}
}

// ExtractJobToken 依次从 Authorization、X-Job-Token 和 token 查询参数提取令牌
func ExtractJobToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if token := c.GetHeader("X-Job-Token"); token != "" {
		return token
	}

	return c.Query("token")
}
