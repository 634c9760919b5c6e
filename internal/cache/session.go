package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"
)

const sessionTTL = 10 * time.Minute

// Session 鉴权中间件使用的用户快照，命中时不再回表
type Session struct {
	UserID        uint   `json:"user_id"`
	Role          string `json:"role"`
	Active        bool   `json:"active"`
	TokenVersion  uint64 `json:"token_version"`
	RevokedBefore int64  `json:"revoked_before"` // Unix 秒，0 表示未吊销
}

func sessionKey(userID uint) string {
	return fmt.Sprintf("session:user:%d", userID)
}

// SessionOf 从用户记录生成快照
func SessionOf(user *models.User) *Session {
	if user == nil || user.ID == 0 {
		return nil
	}
	session := &Session{
		UserID:       user.ID,
		Role:         user.Role,
		Active:       strings.EqualFold(strings.TrimSpace(user.Status), constants.UserStatusActive),
		TokenVersion: user.TokenVersion,
	}
	if user.TokenInvalidBefore != nil {
		session.RevokedBefore = user.TokenInvalidBefore.Unix()
	}
	return session
}

// Admits 判断以 tokenVersion 在 issuedAt 签发的令牌是否仍然有效
func (s *Session) Admits(tokenVersion uint64, issuedAt time.Time) bool {
	if s == nil || tokenVersion != s.TokenVersion {
		return false
	}
	if s.RevokedBefore <= 0 {
		return true
	}
	return !issuedAt.IsZero() && issuedAt.Unix() >= s.RevokedBefore
}

// LoadSession 读取快照；未命中或缓存关闭时返回 nil
func LoadSession(ctx context.Context, userID uint) (*Session, error) {
	if userID == 0 {
		return nil, nil
	}
	var session Session
	hit, err := shared.loadJSON(ctx, sessionKey(userID), &session)
	if err != nil || !hit {
		return nil, err
	}
	return &session, nil
}

// StoreSession 写入快照
func StoreSession(ctx context.Context, session *Session) error {
	if session == nil || session.UserID == 0 {
		return nil
	}
	return shared.storeJSON(ctx, sessionKey(session.UserID), session, sessionTTL)
}
