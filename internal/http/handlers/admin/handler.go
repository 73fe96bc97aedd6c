package admin

import "github.com/carwash-next/internal/provider"

// Handler 后台管理接口处理器（操作员登录、退款与支付查询）
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
