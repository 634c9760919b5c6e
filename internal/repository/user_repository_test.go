package repository

import (
	"testing"
	"time"

	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"
)

func TestUserRepositoryLookups(t *testing.T) {
	_, db := setupDeliveryRepositoryTest(t)
	repo := NewUserRepository(db)

	user := &models.User{
		Email:        "driver@example.com",
		PasswordHash: "hash",
		Role:         constants.UserRoleDriver,
		Status:       constants.UserStatusActive,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	got, err := repo.GetByEmail("  DRIVER@example.com ")
	if err != nil || got == nil || got.ID != user.ID {
		t.Fatalf("expected lookup by normalized email, got %+v %v", got, err)
	}
	missing, err := repo.GetByID(user.ID + 100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing user, got %+v %v", missing, err)
	}
	if empty, err := repo.GetByEmail(""); err != nil || empty != nil {
		t.Fatalf("expected nil for empty email, got %+v %v", empty, err)
	}

	loginAt := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	if err := repo.TouchLastLogin(user.ID, loginAt); err != nil {
		t.Fatalf("touch last login failed: %v", err)
	}
	reloaded, err := repo.GetByID(user.ID)
	if err != nil || reloaded.LastLoginAt == nil || !reloaded.LastLoginAt.Equal(loginAt) {
		t.Fatalf("expected last login %v, got %+v %v", loginAt, reloaded, err)
	}
}

func TestUserLoginLogRepositoryListFilters(t *testing.T) {
	_, db := setupDeliveryRepositoryTest(t)
	repo := NewUserLoginLogRepository(db)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	entries := []models.UserLoginLog{
		{UserID: 1, Email: "a@example.com", Status: constants.LoginLogStatusFailed, FailReason: constants.LoginLogFailReasonInvalidCreds, CreatedAt: base},
		{UserID: 1, Email: "a@example.com", Status: constants.LoginLogStatusSuccess, CreatedAt: base.Add(time.Minute)},
		{UserID: 2, Email: "b@example.com", Status: constants.LoginLogStatusSuccess, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(&entries[i]); err != nil {
			t.Fatalf("create login log failed: %v", err)
		}
	}
	if err := repo.Create(nil); err != nil {
		t.Fatalf("nil log should be ignored, got %v", err)
	}

	logs, total, err := repo.List(UserLoginLogListFilter{UserID: 1, Page: 1, PageSize: 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(logs) != 1 || logs[0].Status != constants.LoginLogStatusSuccess {
		t.Fatalf("expected newest of two logs for user 1, got total=%d logs=%+v", total, logs)
	}

	from := base.Add(30 * time.Second)
	logs, total, err = repo.List(UserLoginLogListFilter{Status: constants.LoginLogStatusSuccess, CreatedFrom: &from})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(logs) != 2 {
		t.Fatalf("expected two successful logs after cutoff, got total=%d", total)
	}
}

func TestUserLoginLogRepositoryCountFailuresSince(t *testing.T) {
	_, db := setupDeliveryRepositoryTest(t)
	repo := NewUserLoginLogRepository(db)
	now := time.Now()

	entries := []models.UserLoginLog{
		{Email: "c@example.com", Status: constants.LoginLogStatusFailed, FailReason: constants.LoginLogFailReasonInvalidCreds, CreatedAt: now.Add(-2 * time.Hour)},
		{Email: "c@example.com", Status: constants.LoginLogStatusFailed, FailReason: constants.LoginLogFailReasonInvalidCreds, CreatedAt: now.Add(-10 * time.Minute)},
		{Email: "c@example.com", Status: constants.LoginLogStatusSuccess, CreatedAt: now.Add(-8 * time.Minute)},
		{Email: "c@example.com", Status: constants.LoginLogStatusFailed, FailReason: constants.LoginLogFailReasonInvalidCreds, CreatedAt: now.Add(-5 * time.Minute)},
		{Email: "c@example.com", Status: constants.LoginLogStatusFailed, FailReason: constants.LoginLogFailReasonLocked, CreatedAt: now.Add(-4 * time.Minute)},
		{Email: "d@example.com", Status: constants.LoginLogStatusFailed, FailReason: constants.LoginLogFailReasonInvalidCreds, CreatedAt: now.Add(-3 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(&entries[i]); err != nil {
			t.Fatalf("create login log failed: %v", err)
		}
	}

	count, err := repo.CountFailuresSince(" C@example.com ", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count failures failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("only failures after the last success should count, got %d", count)
	}
	if count, _ := repo.CountFailuresSince("", now.Add(-time.Hour)); count != 0 {
		t.Fatalf("empty email should count nothing, got %d", count)
	}
}
