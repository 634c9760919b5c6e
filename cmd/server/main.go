package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fleetsync/internal/app"
	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/models"

	"github.com/gin-gonic/gin"
)

var weakSecretMarkers = []string{"change-me", "change-in-production", "your-secret-key"}

func main() {
	mode := flag.String("mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()

	if err := run(cfg, *mode); err != nil {
		logger.Fatalw("fleetsync_exit", "error", err)
	}
}

func run(cfg *config.Config, mode string) error {
	release := cfg.Server.Mode == "release"
	logger.Infow("fleetsync_boot", "mode", mode, "server_mode", cfg.Server.Mode, "db_driver", cfg.Database.Driver)

	if isWeakSecret(cfg.UserJWT.SecretKey) {
		if release {
			return errors.New("jwt secret is weak or still the default value")
		}
		logger.Warnw("jwt_secret_weak", "hint", "configure a strong random secret before going to production")
	}

	if err := models.InitDB(cfg.Database.ToDBOptions(cfg.Server.Mode == "debug")); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := models.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if release {
		gin.SetMode(gin.ReleaseMode)
	}
	return app.Run(app.Options{
		Config:  cfg,
		DB:      models.DB,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	})
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	for _, marker := range weakSecretMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}
