package public

import "github.com/fleetsync/internal/provider"

// Handler 顾客与司机 App 调用的接口：登录、登录记录与离线同步
type Handler struct {
	*provider.Container
}

func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
