package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/repository"
	"github.com/fleetsync/internal/service"
)

type seedAccount struct {
	Email       string
	DisplayName string
	Role        string
}

var demoAccounts = []seedAccount{
	{Email: "customer@fleetsync.local", DisplayName: "Demo Customer", Role: constants.UserRoleCustomer},
	{Email: "driver@fleetsync.local", DisplayName: "Demo Driver", Role: constants.UserRoleDriver},
	{Email: "admin@fleetsync.local", DisplayName: "Demo Admin", Role: constants.UserRoleAdmin},
}

func main() {
	var password string
	flag.StringVar(&password, "password", "Passw0rd!", "演示账号的初始密码")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	if err := models.InitDB(cfg.Database.ToDBOptions(false)); err != nil {
		logger.Fatalw("seed_database_init_failed", "error", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalw("seed_database_migrate_failed", "error", err)
	}

	authService := service.NewUserAuthService(cfg, repository.NewUserRepository(models.DB), nil)
	for _, account := range demoAccounts {
		user, err := models.EnsureUser(account.Email, password, account.Role, account.DisplayName)
		if err != nil {
			logger.Fatalw("seed_user_failed", "email", account.Email, "error", err)
		}
		token, err := authService.IssueToken(user, 0)
		if err != nil {
			logger.Fatalw("seed_token_sign_failed", "email", account.Email, "error", err)
		}
		fmt.Printf("%-8s id=%d email=%s expires=%s\n  token=%s\n",
			user.Role, user.ID, user.Email, token.ExpiresAt.Format(time.RFC3339), token.Value)
	}
	logger.Infow("seed_completed", "accounts", len(demoAccounts))
}
