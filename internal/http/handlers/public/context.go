package public

import (
	"strings"

	handlershared "github.com/fleetsync/internal/http/handlers/shared"
	"github.com/fleetsync/internal/http/response"
	"github.com/fleetsync/internal/service"

	"github.com/gin-gonic/gin"
)

// 与 router 鉴权中间件写入的键保持一致
const (
	ctxUserIDKey   = "user_id"
	ctxUserRoleKey = "user_role"
)

// getSyncUser 取出鉴权后的调用方；取不到时已写入错误响应
func getSyncUser(c *gin.Context) (service.SyncUser, bool) {
	raw, exists := c.Get(ctxUserIDKey)
	if !exists {
		respondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return service.SyncUser{}, false
	}
	userID, ok := raw.(uint)
	if !ok {
		respondError(c, response.CodeInternal, "error.user_id_type_invalid", nil)
		return service.SyncUser{}, false
	}
	if userID == 0 {
		respondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return service.SyncUser{}, false
	}
	return service.SyncUser{ID: userID, Role: strings.TrimSpace(c.GetString(ctxUserRoleKey))}, true
}

func respondError(c *gin.Context, code int, key string, err error) {
	handlershared.RespondError(c, code, key, err)
}
