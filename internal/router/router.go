package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fleetsync/internal/cache"
	"github.com/fleetsync/internal/config"
	publichandlers "github.com/fleetsync/internal/http/handlers/public"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	handler := publichandlers.New(c)
	redisClient := cache.Client()
	loginRule := newRateLimitRule(cfg.Redis.Prefix, "login", cfg.Security.LoginRateLimit, "error.login_too_many")
	syncRule := newRateLimitRule(cfg.Redis.Prefix, "sync", cfg.Security.SyncRateLimit, "error.rate_limited")

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log, "/healthz"))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), handler.UserLogin)
		apiV1.GET("/auth/login-logs", UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo), handler.UserLoginLogs)

		// 移动端离线同步（顾客与司机）
		mobile := apiV1.Group("/sync")
		mobile.Use(
			UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo),
			RoleAuthzMiddleware(c.AuthzService),
		)
		{
			mobile.POST("/pending", RateLimitMiddleware(redisClient, syncRule, KeyByUserID), handler.SyncPending)
			mobile.GET("/status", handler.SyncStatus)
			mobile.GET("/ledger", handler.SyncLedger)
		}
	}

	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// 健康检查
	r.GET("/healthz", healthzHandler)

	return r
}

func newRateLimitRule(redisPrefix, name string, limit config.RateLimitConfig, msgKey string) RateLimitRule {
	redisPrefix = strings.TrimSpace(redisPrefix)
	if redisPrefix == "" {
		redisPrefix = "fs"
	}
	return RateLimitRule{
		Name:          name,
		Prefix:        fmt.Sprintf("%s:rate:%s", redisPrefix, name),
		WindowSeconds: limit.WindowSeconds,
		MaxRequests:   limit.MaxAttempts,
		BlockSeconds:  limit.BlockSeconds,
		MessageKey:    msgKey,
	}
}

// healthzHandler 检查数据库与 Redis 连通性，任一不可用返回 503
func healthzHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true
	if err := pingDatabase(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := cache.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}
	if !healthy {
		logger.Warnw("healthz_degraded", "checks", checks)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func pingDatabase(ctx context.Context) error {
	if models.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := models.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
