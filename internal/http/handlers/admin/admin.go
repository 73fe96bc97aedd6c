package admin

import (
	"errors"
	"time"

	"github.com/carwash-next/internal/http/response"
	"github.com/carwash-next/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 操作员登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	User      map[string]interface{} `json:"user"`
	ExpiresAt string                 `json:"expires_at"`
}

// OperatorLogin 操作员登录
func (h *Handler) OperatorLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	operator, token, expiresAt, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondError(c, response.CodeUnauthorized, "error.login_invalid", nil)
		case errors.Is(err, service.ErrOperatorDisabled):
			respondError(c, response.CodeForbidden, "error.operator_disabled", nil)
		default:
			respondError(c, response.CodeInternal, "error.login_failed", err)
		}
		return
	}
	requestLog(c).Infow("operator_login_success", "operator_id", operator.ID, "client_ip", c.ClientIP())
	response.Success(c, LoginResponse{
		Token: token,
		User: map[string]interface{}{
			"id":           operator.ID,
			"username":     operator.Username,
			"display_name": operator.DisplayName,
			"is_super":     operator.IsSuper,
		},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}
