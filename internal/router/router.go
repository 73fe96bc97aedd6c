package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/carwash-next/internal/authz"
	"github.com/carwash-next/internal/cache"
	"github.com/carwash-next/internal/config"
	adminhandlers "github.com/carwash-next/internal/http/handlers/admin"
	publichandlers "github.com/carwash-next/internal/http/handlers/public"
	"github.com/carwash-next/internal/http/response"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "cw"
	}
	redisClient := cache.Client()
	limits := cfg.Security.RateLimit
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:operator_login", redisPrefix),
		WindowSeconds: limits.Login.WindowSeconds,
		MaxRequests:   limits.Login.MaxRequests,
	}
	createRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_create", redisPrefix),
		WindowSeconds: limits.PaymentCreate.WindowSeconds,
		MaxRequests:   limits.PaymentCreate.MaxRequests,
	}
	callbackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_callback", redisPrefix),
		WindowSeconds: limits.PaymentCallback.WindowSeconds,
		MaxRequests:   limits.PaymentCallback.MaxRequests,
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 无需登录
		apiV1.GET("/payments/security/public-key", publicHandler.GetSecurityPublicKey)

		// 网关异步通知
		callback := apiV1.Group("/payments/callback")
		callback.Use(RateLimitMiddleware(redisClient, callbackRule, KeyByIP))
		{
			callback.POST("/wechat", publicHandler.WechatCallback)
			callback.POST("/alipay", publicHandler.AlipayCallback)
			callback.POST("/virtual", publicHandler.VirtualCallback)
		}

		// 车主接口（需鉴权）
		user := apiV1.Group("/payments")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserAuthService))
		{
			user.POST("", RateLimitMiddleware(redisClient, createRule, KeyByUserOrIP), publicHandler.CreatePayment)
			user.GET("/mine", publicHandler.ListMyPayments)
			user.GET("/order/:orderNo", publicHandler.GetPaymentByOrder)
			user.GET("/:paymentNo/status", publicHandler.GetPaymentStatus)
		}

		// 管理端接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("username")), adminHandler.OperatorLogin)

			authorized := admin.Group("")
			authorized.Use(OperatorJWTAuthMiddleware(cfg.JWT.SecretKey, c.AuthService), OperatorRBACMiddleware(c.AuthzService))
			{
				authorized.GET("/payments", adminHandler.ListPayments)
				authorized.GET("/payments/audits", adminHandler.ListPaymentAudits)
				authorized.GET("/payments/metrics", adminHandler.PaymentMetrics)
				authorized.GET("/payments/:paymentNo/refunds", adminHandler.ListPaymentRefunds)
				authorized.POST("/payments/refund", adminHandler.RefundPayment)
				authorized.POST("/payments/cancel-expired", adminHandler.CancelExpiredPayments)

				authorized.GET("/authz/permissions", operatorPermissionsHandler(r, c.AuthzService))
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type permissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

type operatorPermissions struct {
	IsSuper     bool                    `json:"is_super"`
	Roles       []string                `json:"roles"`
	Permissions []permissionCatalogItem `json:"permissions"`
}

// operatorPermissionsHandler 返回当前操作员的角色与管理端接口授权情况
func operatorPermissionsHandler(engine *gin.Engine, authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID, _ := operatorIDFromContext(c)
		result := operatorPermissions{
			IsSuper:     c.GetBool(operatorIsSuperContextKey),
			Roles:       []string{},
			Permissions: buildPermissionCatalog(engine),
		}
		if roles, err := authzService.GetOperatorRoles(operatorID); err == nil {
			result.Roles = roles
		} else {
			logger.SW("operator_id", operatorID).Warnw("authz_operator_roles_failed", "error", err)
		}
		for i := range result.Permissions {
			item := &result.Permissions[i]
			if result.IsSuper {
				item.Allowed = true
				continue
			}
			allowed, err := authzService.EnforceOperator(operatorID, item.Object, item.Method)
			item.Allowed = err == nil && allowed
		}
		response.Success(c, result)
	}
}

func buildPermissionCatalog(engine *gin.Engine) []permissionCatalogItem {
	if engine == nil {
		return []permissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]permissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		if item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, permissionCatalogItem{
			Module:     derivePermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func derivePermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "authz" {
		return "authz"
	}
	return segments[1]
}
