package router

import (
	"errors"
	"strings"
	"time"

	"github.com/fleetsync/internal/authz"
	"github.com/fleetsync/internal/cache"
	"github.com/fleetsync/internal/http/response"
	"github.com/fleetsync/internal/i18n"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/repository"
	"github.com/fleetsync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDContextKey    = "user_id"
	userRoleContextKey  = "user_role"
	userEmailContextKey = "user_email"
	bearerPrefix        = "Bearer "
)

// abortWith 以业务码中断请求，消息按请求语言翻译
func abortWith(c *gin.Context, code int, key string) {
	msg := i18n.T(i18n.ResolveLocale(c), key)
	if code == response.CodeForbidden {
		response.Forbidden(c, msg)
	} else {
		response.Unauthorized(c, msg)
	}
	c.Abort()
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// UserJWTAuthMiddleware 校验 Bearer 令牌，并把用户 ID 与角色写入上下文
// 会话快照优先取 Redis，未命中时回表并回填
func UserJWTAuthMiddleware(secretKey string, userRepo repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secretKey == "" {
			abortWith(c, response.CodeUnauthorized, "error.jwt_secret_missing")
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWith(c, response.CodeUnauthorized, "error.auth_header_missing")
			return
		}
		raw, ok := bearerToken(header)
		if !ok {
			abortWith(c, response.CodeUnauthorized, "error.auth_header_invalid")
			return
		}

		claims, err := service.ParseAccessToken(secretKey, raw)
		if errors.Is(err, jwt.ErrTokenExpired) {
			abortWith(c, response.CodeUnauthorized, "error.token_expired")
			return
		}
		if err != nil {
			abortWith(c, response.CodeUnauthorized, "error.token_invalid")
			return
		}

		session, err := resolveSession(c, claims.UserID, userRepo)
		if err != nil || session == nil {
			abortWith(c, response.CodeUnauthorized, "error.token_invalid")
			return
		}
		if !session.Active {
			abortWith(c, response.CodeUnauthorized, "error.user_disabled")
			return
		}
		var issuedAt time.Time
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		if !session.Admits(claims.TokenVersion, issuedAt) {
			abortWith(c, response.CodeUnauthorized, "error.token_revoked")
			return
		}

		c.Set(userIDContextKey, session.UserID)
		c.Set(userRoleContextKey, session.Role)
		c.Set(userEmailContextKey, claims.Email)
		c.Next()
	}
}

func resolveSession(c *gin.Context, userID uint, userRepo repository.UserRepository) (*cache.Session, error) {
	ctx := c.Request.Context()
	session, err := cache.LoadSession(ctx, userID)
	if err != nil {
		logger.Warnw("user_session_cache_get_failed", "user_id", userID, "error", err)
	}
	if session != nil {
		return session, nil
	}
	if userRepo == nil {
		return nil, nil
	}
	user, err := userRepo.GetByID(userID)
	if err != nil || user == nil {
		return nil, err
	}
	session = cache.SessionOf(user)
	if err := cache.StoreSession(ctx, session); err != nil {
		logger.Warnw("user_session_cache_set_failed", "user_id", userID, "error", err)
	}
	return session, nil
}

// RoleAuthzMiddleware 按 casbin 策略校验当前角色能否访问路由
func RoleAuthzMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authzService == nil {
			logger.Errorw("role_authz_service_unavailable")
			abortWith(c, response.CodeUnauthorized, "error.unauthorized")
			return
		}
		role := strings.TrimSpace(c.GetString(userRoleContextKey))
		if role == "" {
			abortWith(c, response.CodeUnauthorized, "error.unauthorized")
			return
		}
		resource := c.FullPath()
		if resource == "" {
			resource = c.Request.URL.Path
		}

		allowed, err := authzService.EnforceRole(role, resource, c.Request.Method)
		switch {
		case err != nil:
			logger.Errorw("role_authz_enforce_failed",
				"user_id", c.GetUint(userIDContextKey),
				"role", role,
				"resource", resource,
				"error", err,
			)
			abortWith(c, response.CodeUnauthorized, "error.unauthorized")
		case !allowed:
			logger.Warnw("role_authz_permission_denied",
				"user_id", c.GetUint(userIDContextKey),
				"role", role,
				"method", c.Request.Method,
				"resource", authz.NormalizeObject(resource),
			)
			abortWith(c, response.CodeForbidden, "error.mobile_only")
		default:
			c.Next()
		}
	}
}
