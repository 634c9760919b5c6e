package response

// 业务状态码，取值沿用对应的 HTTP 语义；HTTP 状态本身始终为 200
const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401 // 未登录或令牌失效
	CodeForbidden       = 403 // 角色无权调用
	CodePayloadTooLarge = 413 // 同步批次超过上限
	CodeTooManyRequests = 429 // 限流或登录锁定
	CodeInternal        = 500
)
