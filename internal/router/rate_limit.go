package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fleetsync/internal/http/response"
	"github.com/fleetsync/internal/i18n"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 从请求中取限流维度
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Name          string // 指标标签
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	BlockSeconds  int // 超限后的封禁时长，0 表示仅等待窗口过期
	MessageKey    string
}

func (r RateLimitRule) active() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

func (r RateLimitRule) key(subject string) string {
	if r.Prefix == "" {
		return subject
	}
	return r.Prefix + ":" + subject
}

// KEYS[1] 计数 key，KEYS[2] 封禁 key；返回 {计数, 剩余秒数}，封禁中计数为 -1
var rateLimitScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return {-1, redis.call("TTL", KEYS[2])}
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local block = tonumber(ARGV[3])
if block > 0 and current > tonumber(ARGV[2]) then
	redis.call("SET", KEYS[2], "1", "EX", block)
	return {current, block}
end
return {current, redis.call("TTL", KEYS[1])}
`)

var errRateLimitReply = errors.New("unexpected rate limit reply")

// rateDecision 一次计数的结果
type rateDecision struct {
	count      int64
	retryAfter int
}

func (d rateDecision) exceeded(limit int) bool {
	return d.count < 0 || d.count > int64(limit)
}

func evalRateLimit(ctx context.Context, client *redis.Client, rule RateLimitRule, subject string) (rateDecision, error) {
	key := rule.key(subject)
	block := rule.BlockSeconds
	if block < 0 {
		block = 0
	}
	reply, err := rateLimitScript.Run(ctx, client, []string{key, key + ":block"}, rule.WindowSeconds, rule.MaxRequests, block).Int64Slice()
	if err != nil {
		return rateDecision{}, err
	}
	if len(reply) < 2 {
		return rateDecision{}, errRateLimitReply
	}
	decision := rateDecision{count: reply[0], retryAfter: int(reply[1])}
	if decision.retryAfter < 1 {
		decision.retryAfter = rule.WindowSeconds
	}
	if decision.retryAfter < 1 {
		decision.retryAfter = 1
	}
	return decision, nil
}

// RateLimitMiddleware 基于 Redis 的限流；client 为 nil 或规则未配置时放行
// 脚本执行失败时拒绝请求
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	msgKey := strings.TrimSpace(rule.MessageKey)
	if msgKey == "" {
		msgKey = "error.rate_limited"
	}
	return func(c *gin.Context) {
		if client == nil || !rule.active() {
			c.Next()
			return
		}
		subject := ""
		if keyFunc != nil {
			subject = strings.TrimSpace(keyFunc(c))
		}
		if subject == "" {
			subject = c.ClientIP()
		}

		decision, err := evalRateLimit(c.Request.Context(), client, rule, subject)
		if err != nil {
			logger.Warnw("rate_limit_script_failed", "rule", rule.Name, "prefix", rule.Prefix, "error", err)
			response.Error(c, response.CodeInternal, i18n.T(i18n.ResolveLocale(c), "error.rate_limit_unavailable"))
			c.Abort()
			return
		}
		if decision.exceeded(rule.MaxRequests) {
			metrics.RateLimitRejectedTotal.WithLabelValues(rule.Name).Inc()
			c.Header("Retry-After", strconv.Itoa(decision.retryAfter))
			response.Error(c, response.CodeTooManyRequests, i18n.Sprintf(i18n.ResolveLocale(c), msgKey, decision.retryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}

// KeyByUserID 已鉴权用户按 ID 计数，未鉴权时回退到 IP
func KeyByUserID(c *gin.Context) string {
	if userID := c.GetUint(userIDContextKey); userID > 0 {
		return fmt.Sprintf("user:%d", userID)
	}
	return c.ClientIP()
}

// KeyByIPAndJSONField 按 JSON 字段值加 IP 计数，读取后恢复请求体
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(peekJSONString(c, field))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

func peekJSONString(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload[field], &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
