package models

import (
	"errors"
	"strings"

	"github.com/fleetsync/internal/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// EnsureUser 按邮箱确保账号存在，已存在时只校正角色
func EnsureUser(email, password, role, displayName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var existing User
	err := DB.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.Role != role {
			if err := DB.Model(&existing).Update("role", role).Error; err != nil {
				return nil, err
			}
			existing.Role = role
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
		Status:       "active",
	}
	if err := DB.Create(&user).Error; err != nil {
		return nil, err
	}
	logger.Infow("seed_user_created", "email", email, "role", role)
	return &user, nil
}
