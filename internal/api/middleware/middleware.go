// Package middleware HTTP 中间件：API Key 鉴权、按 IP 和按用户限流、访问日志。
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"match-engine-go/internal/logger"
	"match-engine-go/pkg/ratelimit"
)

// ContextKeyUserID 鉴权通过后写入请求上下文的用户 ID
const ContextKeyUserID = "user_id"

var errInvalidKey = errors.New("invalid api key")

// KeyAuth Bearer API Key 鉴权，keys 为 key -> user id
func KeyAuth(keys map[string]string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			userID, ok := lookup(keys, key)
			if !ok {
				return false, errInvalidKey
			}
			c.Set(ContextKeyUserID, userID)
			return true, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "unauthorized"})
		}),
	)
}

// 逐个常量时间比较，避免按 key 前缀计时
func lookup(keys map[string]string, key string) (string, bool) {
	var userID string
	found := false
	for k, uid := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			userID, found = uid, true
		}
	}
	return userID, found
}

// UserID 返回鉴权得到的用户 ID
func UserID(c *app.RequestContext) string {
	return c.GetString(ContextKeyUserID)
}

// RateLimitByIP 按客户端 IP 限流，放在 KeyAuth 之前，无效 key 的请求也会计数
func RateLimitByIP(l *ratelimit.KeyedLimiter) app.HandlerFunc {
	return limitBy(l, func(c *app.RequestContext) string { return "ip:" + c.ClientIP() })
}

// RateLimit 按鉴权得到的用户限流，放在 KeyAuth 之后
func RateLimit(l *ratelimit.KeyedLimiter) app.HandlerFunc {
	return limitBy(l, UserID)
}

func limitBy(l *ratelimit.KeyedLimiter, keyOf func(c *app.RequestContext) string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		key := keyOf(c)
		if !l.Allow(key) {
			wait := l.RetryAfter(key)
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds()+0.999)))
			c.AbortWithStatusJSON(consts.StatusTooManyRequests, utils.H{"error": "rate limit exceeded"})
			return
		}
		c.Next(ctx)
	}
}

// AccessLog 记录每个请求的方法、路径、状态码和耗时
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		status := c.Response.StatusCode()
		ev := logger.Info()
		if status >= consts.StatusInternalServerError {
			ev = logger.Error()
		}
		ev = ev.Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Int("status", status).
			Dur("latency", time.Since(start))
		// 用户标识可能是邮箱或手机号，落日志前脱敏
		logger.Masked(ev, "user.identifier", UserID(c)).Msg("request")
	}
}
