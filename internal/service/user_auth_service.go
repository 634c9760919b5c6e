package service

import (
	"context"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/fleetsync/internal/cache"
	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTLHours = 168

// UserAuthService 用户认证服务
type UserAuthService struct {
	cfg          *config.Config
	userRepo     repository.UserRepository
	loginLogRepo repository.UserLoginLogRepository
}

// NewUserAuthService 创建用户认证服务
func NewUserAuthService(cfg *config.Config, userRepo repository.UserRepository, loginLogRepo repository.UserLoginLogRepository) *UserAuthService {
	return &UserAuthService{
		cfg:          cfg,
		userRepo:     userRepo,
		loginLogRepo: loginLogRepo,
	}
}

// UserClaims 访问令牌声明；TokenVersion 与用户表不一致时令牌作废
type UserClaims struct {
	UserID       uint   `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion uint64 `json:"token_version"`
	jwt.RegisteredClaims
}

// AccessToken 签发结果
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// LoginResult 登录成功返回的用户与令牌
type LoginResult struct {
	User  *models.User
	Token AccessToken
}

// LoginMeta 登录请求上下文
type LoginMeta struct {
	ClientIP  string
	UserAgent string
	RequestID string
}

var accessTokenParser = jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

// ParseAccessToken 用 HS256 密钥校验令牌；鉴权中间件与服务共用
func ParseAccessToken(secret, raw string) (*UserClaims, error) {
	claims := &UserClaims{}
	token, err := accessTokenParser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueToken 为用户签发访问令牌；ttl 非正数时取 user_jwt.expire_hours
func (s *UserAuthService) IssueToken(user *models.User, ttl time.Duration) (AccessToken, error) {
	if user == nil || user.ID == 0 {
		return AccessToken{}, ErrSyncUserInvalid
	}
	if ttl <= 0 {
		ttl = tokenTTL(s.cfg.UserJWT)
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}).SignedString([]byte(s.cfg.UserJWT.SecretKey))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// ParseToken 校验本服务签发的令牌
func (s *UserAuthService) ParseToken(raw string) (*UserClaims, error) {
	return ParseAccessToken(s.cfg.UserJWT.SecretKey, raw)
}

// Login 邮箱密码登录，成功与失败都会写登录日志
func (s *UserAuthService) Login(ctx context.Context, email, password string, meta LoginMeta) (*LoginResult, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, failReason, err := s.authenticate(normalized, password)
	if err != nil {
		var userID uint
		if user != nil {
			userID = user.ID
		}
		s.recordLogin(userID, normalized, failReason, meta)
		return nil, err
	}

	token, err := s.IssueToken(user, 0)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.userRepo.TouchLastLogin(user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	if err := cache.StoreSession(ctx, cache.SessionOf(user)); err != nil {
		logger.Warnw("user_session_cache_set_failed", "user_id", user.ID, "error", err)
	}
	s.recordLogin(user.ID, normalized, "", meta)
	return &LoginResult{User: user, Token: token}, nil
}

// authenticate 校验锁定、密码与账号状态；失败时返回登录日志使用的原因
func (s *UserAuthService) authenticate(email, password string) (*models.User, string, error) {
	if s.loginLocked(email) {
		return nil, constants.LoginLogFailReasonLocked, ErrLoginLocked
	}
	user, err := s.userRepo.GetByEmail(email)
	switch {
	case err != nil:
		return nil, constants.LoginLogFailReasonInternal, err
	case user == nil:
		return nil, constants.LoginLogFailReasonInvalidCreds, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return user, constants.LoginLogFailReasonInvalidCreds, ErrInvalidCredentials
	}
	if !strings.EqualFold(user.Status, constants.UserStatusActive) {
		return user, constants.LoginLogFailReasonDisabled, ErrUserDisabled
	}
	return user, "", nil
}

// ListLoginLogs 分页查询用户本人的登录记录
func (s *UserAuthService) ListLoginLogs(userID uint, page, pageSize int) ([]models.UserLoginLog, int64, error) {
	if userID == 0 {
		return nil, 0, ErrSyncUserInvalid
	}
	if s.loginLogRepo == nil {
		return []models.UserLoginLog{}, 0, nil
	}
	return s.loginLogRepo.List(repository.UserLoginLogListFilter{
		UserID:   userID,
		Page:     page,
		PageSize: pageSize,
	})
}

// loginLocked 窗口内连续失败次数达到上限时拒绝登录；查询失败时放行
func (s *UserAuthService) loginLocked(email string) bool {
	if s.loginLogRepo == nil || s.cfg == nil {
		return false
	}
	lockout := s.cfg.Security.LoginLockout
	if lockout.MaxFailures <= 0 || lockout.WindowSeconds <= 0 {
		return false
	}
	since := time.Now().Add(-time.Duration(lockout.WindowSeconds) * time.Second)
	failures, err := s.loginLogRepo.CountFailuresSince(email, since)
	if err != nil {
		logger.Warnw("user_login_lockout_check_failed", "email", email, "error", err)
		return false
	}
	return failures >= int64(lockout.MaxFailures)
}

func (s *UserAuthService) recordLogin(userID uint, email, failReason string, meta LoginMeta) {
	if s.loginLogRepo == nil {
		return
	}
	status := constants.LoginLogStatusSuccess
	if failReason != "" {
		status = constants.LoginLogStatusFailed
	}
	err := s.loginLogRepo.Create(&models.UserLoginLog{
		UserID:     userID,
		Email:      email,
		Status:     status,
		FailReason: failReason,
		ClientIP:   strings.TrimSpace(meta.ClientIP),
		UserAgent:  strings.TrimSpace(meta.UserAgent),
		RequestID:  strings.TrimSpace(meta.RequestID),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		logger.Warnw("user_login_log_create_failed", "user_id", userID, "error", err)
	}
}

// NormalizeEmail 校验并归一化邮箱
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || !strings.EqualFold(addr.Address, trimmed) {
		return "", ErrInvalidEmail
	}
	return trimmed, nil
}

func tokenTTL(cfg config.JWTConfig) time.Duration {
	hours := cfg.ExpireHours
	if hours <= 0 {
		hours = defaultTokenTTLHours
	}
	return time.Duration(hours) * time.Hour
}
