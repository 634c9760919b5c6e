package public

import (
	"errors"
	"slices"

	"github.com/fleetsync/internal/http/response"
	"github.com/fleetsync/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 业务错误到响应码与文案 key 的映射
type mappedHandlerError struct {
	target error
	code   int
	key    string
}

// respondMapped 命中规则的错误属于预期内结果不记日志，未命中的按 fallback 返回并记录原始错误
func respondMapped(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	idx := slices.IndexFunc(rules, func(rule mappedHandlerError) bool { return errors.Is(err, rule.target) })
	if idx < 0 {
		respondError(c, fallbackCode, fallbackKey, err)
		return
	}
	respondError(c, rules[idx].code, rules[idx].key, nil)
}

var syncCallerErrorRules = []mappedHandlerError{
	{target: service.ErrSyncUserInvalid, code: response.CodeUnauthorized, key: "error.unauthorized"},
	{target: service.ErrSyncRoleForbidden, code: response.CodeForbidden, key: "error.mobile_only"},
}

var syncStatusErrorRules = slices.Concat(syncCallerErrorRules, []mappedHandlerError{
	{target: service.ErrStorageUnavailable, code: response.CodeInternal, key: "error.sync_status_failed"},
})

var syncLedgerErrorRules = slices.Concat(syncCallerErrorRules, []mappedHandlerError{
	{target: service.ErrStorageUnavailable, code: response.CodeInternal, key: "error.sync_ledger_failed"},
})

var userLoginErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidEmail, code: response.CodeUnauthorized, key: "error.login_invalid"},
	{target: service.ErrInvalidCredentials, code: response.CodeUnauthorized, key: "error.login_invalid"},
	{target: service.ErrUserDisabled, code: response.CodeUnauthorized, key: "error.user_disabled"},
	{target: service.ErrLoginLocked, code: response.CodeTooManyRequests, key: "error.login_locked"},
}

var userLoginLogErrorRules = []mappedHandlerError{
	{target: service.ErrSyncUserInvalid, code: response.CodeUnauthorized, key: "error.unauthorized"},
}
