package shared

import (
	"github.com/fleetsync/internal/http/response"
	"github.com/fleetsync/internal/i18n"
	"github.com/fleetsync/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 带 request_id 的日志实例
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if id := c.GetString("request_id"); id != "" {
		return logger.SW("request_id", id)
	}
	return logger.S()
}

// RespondError 按请求语言翻译 key 后返回错误信封
// cause 非空时记录日志：服务端错误记 error，其余记 warn
func RespondError(c *gin.Context, code int, key string, cause error) {
	msg := i18n.T(i18n.ResolveLocale(c), key)
	if cause != nil {
		kv := []interface{}{"code", code, "key", key, "route", c.FullPath(), "error", cause}
		if code >= response.CodeInternal {
			RequestLog(c).Errorw("handler_error", kv...)
		} else {
			RequestLog(c).Warnw("handler_error", kv...)
		}
	}
	response.Error(c, code, msg)
}
