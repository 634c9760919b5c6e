package service

import "errors"

// 认证相关错误
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user disabled")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrLoginLocked        = errors.New("login locked")
)

// 离线同步相关错误
var (
	ErrSyncNotFound       = errors.New("delivery request not found")
	ErrSyncForbidden      = errors.New("delivery request not owned by submitter")
	ErrStaleWrite         = errors.New("delivery request changed concurrently")
	ErrInvalidTransition  = errors.New("invalid delivery status transition")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrSyncItemInvalid    = errors.New("sync item invalid")
	ErrSyncBatchTooLarge  = errors.New("sync batch too large")
	ErrSyncUserInvalid    = errors.New("sync user invalid")
	ErrSyncRoleForbidden  = errors.New("role may not use offline sync")
)
