package public

import (
	"time"

	handlershared "github.com/fleetsync/internal/http/handlers/shared"
	"github.com/fleetsync/internal/http/response"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/service"

	"github.com/gin-gonic/gin"
)

// UserLoginRequest 登录请求
type UserLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserLogin 用户登录
func (h *Handler) UserLogin(c *gin.Context) {
	var req UserLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	result, err := h.UserAuthService.Login(c.Request.Context(), req.Email, req.Password, service.LoginMeta{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: c.GetString("request_id"),
	})
	if err != nil {
		respondMapped(c, err, userLoginErrorRules, response.CodeInternal, "error.internal_error")
		return
	}

	user := result.User
	response.Success(c, gin.H{
		"permissions": h.rolePermissions(user.Role),
		"user": gin.H{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"role":         user.Role,
		},
		"token":      result.Token.Value,
		"expires_at": result.Token.ExpiresAt.Format(time.RFC3339),
	})
}

// rolePermissions 登录后下发角色可调用的接口，授权服务不可用时返回空列表
func (h *Handler) rolePermissions(role string) []string {
	routes := []string{}
	if h.AuthzService == nil {
		return routes
	}
	perms, err := h.AuthzService.Permissions(role)
	if err != nil {
		logger.Warnw("user_login_permissions_failed", "role", role, "error", err)
		return routes
	}
	for _, perm := range perms {
		routes = append(routes, perm.Method+" "+perm.Path)
	}
	return routes
}

// UserLoginLogs 当前用户最近的登录记录
func (h *Handler) UserLoginLogs(c *gin.Context) {
	user, ok := getSyncUser(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.PaginationFromQuery(c)
	logs, total, err := h.UserAuthService.ListLoginLogs(user.ID, page, pageSize)
	if err != nil {
		respondMapped(c, err, userLoginLogErrorRules, response.CodeInternal, "error.internal_error")
		return
	}
	items := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		items = append(items, gin.H{
			"status":      log.Status,
			"fail_reason": log.FailReason,
			"client_ip":   log.ClientIP,
			"user_agent":  log.UserAgent,
			"created_at":  log.CreatedAt.Format(time.RFC3339),
		})
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}
