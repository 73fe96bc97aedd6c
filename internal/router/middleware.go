package router

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/carwash-next/internal/authz"
	"github.com/carwash-next/internal/config"
	handlershared "github.com/carwash-next/internal/http/handlers/shared"
	"github.com/carwash-next/internal/http/response"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey              = "request_id"
	requestIDHeader           = "X-Request-ID"
	userIDContextKey          = "user_id"
	operatorIDContextKey      = "operator_id"
	operatorNameContextKey    = "operator_username"
	operatorIsSuperContextKey = "operator_is_super"
)

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
			requestIDHeader,
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件，5xx 与 handler 错误记为 error
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}
	sugar := log.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if uid, ok := c.Get(userIDContextKey); ok {
			fields = append(fields, "user_id", uid)
		}
		if oid, ok := c.Get(operatorIDContextKey); ok {
			fields = append(fields, "operator_id", oid)
		}
		if len(c.Errors) > 0 || c.Writer.Status() >= 500 {
			sugar.Errorw("http_request", append(fields, "errors", c.Errors.String())...)
			return
		}
		sugar.Infow("http_request", fields...)
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

func unauthorized(c *gin.Context, key string) {
	response.Unauthorized(c, handlershared.Message(key))
	c.Abort()
}

// bearerToken 从 Authorization 头中取出 Bearer token，失败时返回提示键
func bearerToken(c *gin.Context) (string, string) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return "", "error.auth_header_missing"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", "error.auth_header_invalid"
	}
	return strings.TrimSpace(parts[1]), ""
}

// UserJWTAuthMiddleware 车主端 JWT 鉴权，通过后写入 user_id
func UserJWTAuthMiddleware(secretKey string, authService *service.UserAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secretKey) == "" {
			unauthorized(c, "error.jwt_secret_missing")
			return
		}
		if authService == nil {
			unauthorized(c, "error.token_invalid")
			return
		}
		token, failKey := bearerToken(c)
		if failKey != "" {
			unauthorized(c, failKey)
			return
		}
		claims, err := authService.ParseUserJWT(token)
		if err != nil {
			unauthorized(c, "error.token_invalid")
			return
		}
		c.Set(userIDContextKey, claims.UserID)
		c.Next()
	}
}

// OperatorJWTAuthMiddleware 管理端 JWT 鉴权，校验操作员状态与 token 版本
func OperatorJWTAuthMiddleware(secretKey string, authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secretKey) == "" {
			unauthorized(c, "error.jwt_secret_missing")
			return
		}
		if authService == nil {
			unauthorized(c, "error.token_invalid")
			return
		}
		token, failKey := bearerToken(c)
		if failKey != "" {
			unauthorized(c, failKey)
			return
		}
		claims, err := authService.ParseJWT(token)
		if err != nil || claims.OperatorID == 0 {
			unauthorized(c, "error.token_invalid")
			return
		}
		state, err := authService.ResolveOperator(c.Request.Context(), claims)
		if err != nil {
			if errors.Is(err, service.ErrOperatorDisabled) {
				unauthorized(c, "error.operator_disabled")
				return
			}
			if !errors.Is(err, service.ErrTokenInvalid) {
				logger.Errorw("operator_auth_resolve_failed", "operator_id", claims.OperatorID, "error", err)
			}
			unauthorized(c, "error.token_invalid")
			return
		}

		c.Set(operatorIDContextKey, state.OperatorID)
		c.Set(operatorNameContextKey, state.Username)
		c.Set(operatorIsSuperContextKey, state.IsSuper)
		c.Next()
	}
}

// OperatorRBACMiddleware 管理端 RBAC 鉴权，超级管理员直接放行
func OperatorRBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authzService == nil {
			logger.Errorw("operator_rbac_service_unavailable")
			unauthorized(c, "error.unauthorized")
			return
		}
		if c.GetBool(operatorIsSuperContextKey) {
			c.Next()
			return
		}

		operatorID, ok := operatorIDFromContext(c)
		if !ok {
			unauthorized(c, "error.unauthorized")
			return
		}

		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}
		allowed, err := authzService.EnforceOperator(operatorID, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("operator_rbac_enforce_failed",
				"operator_id", operatorID,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			unauthorized(c, "error.unauthorized")
			return
		}
		if !allowed {
			logger.Warnw("operator_rbac_permission_denied",
				"operator_id", operatorID,
				"method", c.Request.Method,
				"resource", authz.NormalizeObject(resource),
			)
			response.Forbidden(c, handlershared.Message("error.forbidden"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func operatorIDFromContext(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(operatorIDContextKey)
	if !exists {
		return 0, false
	}
	switch value := raw.(type) {
	case uint:
		return value, value > 0
	case int:
		if value > 0 {
			return uint(value), true
		}
	}
	return 0, false
}
