package i18n

var messages = map[string]map[string]string{
	LocaleEnUS: {
		"error.bad_request":               "Invalid request",
		"error.unauthorized":              "Please sign in first",
		"error.auth_header_missing":       "Authorization header is missing",
		"error.auth_header_invalid":       "Authorization header is invalid",
		"error.jwt_secret_missing":        "Token signing is not configured",
		"error.token_invalid":             "Session is invalid, please sign in again",
		"error.token_expired":             "Session has expired, please sign in again",
		"error.token_revoked":             "Session has been revoked, please sign in again",
		"error.user_disabled":             "Account is disabled",
		"error.mobile_only":               "This endpoint is available to customers and drivers only",
		"error.rate_limited":              "Too many requests, try again in %d seconds",
		"error.login_too_many":            "Too many sign-in attempts, try again in %d seconds",
		"error.rate_limit_unavailable":    "Rate limiter is unavailable, try again later",
		"error.internal_error":            "Internal server error",
		"error.login_invalid":             "Incorrect email or password",
		"error.login_locked":              "Account temporarily locked after repeated failed sign-ins",
		"error.user_id_type_invalid":      "Invalid user id type",
		"error.sync_payload_invalid":      "Sync payload could not be read",
		"error.sync_batch_too_large":      "Sync batch exceeds the maximum of %d requests",
		"error.sync_status_failed":        "Failed to load sync status",
		"error.sync_ledger_failed":        "Failed to load sync history",
		"sync.reason.not_found":           "Delivery request does not exist",
		"sync.reason.forbidden":           "You are not allowed to modify this delivery request",
		"sync.reason.stale_write":         "Delivery request changed concurrently, retry later",
		"sync.reason.invalid_item":        "Sync item is invalid",
		"sync.reason.storage_unavailable": "Storage is temporarily unavailable",
		"sync.reason.internal_error":      "Sync item could not be processed",
	},
	LocaleZhCN: {
		"error.bad_request":               "请求参数错误",
		"error.unauthorized":              "请先登录",
		"error.auth_header_missing":       "缺少 Authorization 请求头",
		"error.auth_header_invalid":       "Authorization 请求头格式错误",
		"error.jwt_secret_missing":        "未配置 Token 签名密钥",
		"error.token_invalid":             "登录状态无效，请重新登录",
		"error.token_expired":             "登录已过期，请重新登录",
		"error.token_revoked":             "登录状态已失效，请重新登录",
		"error.user_disabled":             "账号已被禁用",
		"error.mobile_only":               "该接口仅对顾客与司机开放",
		"error.rate_limited":              "请求过于频繁，请 %d 秒后重试",
		"error.login_too_many":            "登录尝试过多，请 %d 秒后重试",
		"error.rate_limit_unavailable":    "限流服务不可用，请稍后重试",
		"error.internal_error":            "服务器内部错误",
		"error.login_invalid":             "邮箱或密码错误",
		"error.login_locked":              "登录失败次数过多，账号已临时锁定",
		"error.user_id_type_invalid":      "用户ID类型错误",
		"error.sync_payload_invalid":      "同步数据无法解析",
		"error.sync_batch_too_large":      "同步批次最多允许 %d 条记录",
		"error.sync_status_failed":        "获取同步状态失败",
		"error.sync_ledger_failed":        "获取同步记录失败",
		"sync.reason.not_found":           "配送单不存在",
		"sync.reason.forbidden":           "无权修改该配送单",
		"sync.reason.stale_write":         "配送单被并发修改，请稍后重试",
		"sync.reason.invalid_item":        "同步条目不合法",
		"sync.reason.storage_unavailable": "存储暂时不可用",
		"sync.reason.internal_error":      "同步条目处理失败",
	},
}
