package provider

import (
	"github.com/carwash-next/internal/audit"
	"github.com/carwash-next/internal/authz"
	"github.com/carwash-next/internal/cache"
	"github.com/carwash-next/internal/config"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/monitor"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/payment/alipay"
	"github.com/carwash-next/internal/payment/creditcard"
	"github.com/carwash-next/internal/payment/signature"
	"github.com/carwash-next/internal/payment/virtual"
	"github.com/carwash-next/internal/payment/wechat"
	"github.com/carwash-next/internal/queue"
	"github.com/carwash-next/internal/repository"
	"github.com/carwash-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	OperatorRepo     repository.OperatorRepository
	BookingRepo      repository.BookingRepository
	PaymentRepo      repository.PaymentRepository
	RefundRepo       repository.RefundRepository
	PaymentAuditRepo repository.PaymentAuditRepository

	// Payment infrastructure
	GatewayRegistry *payment.Registry
	Verifier        *signature.Verifier
	Monitor         *monitor.Counter

	// Services
	AuthzService    *authz.Service
	AuthService     *service.AuthService
	UserAuthService *service.UserAuthService
	PaymentService  *service.PaymentService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initGateways()
	c.initServices()
	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OperatorRepo = repository.NewOperatorRepository(db)
	c.BookingRepo = repository.NewBookingRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.RefundRepo = repository.NewRefundRepository(db)
	c.PaymentAuditRepo = repository.NewPaymentAuditRepository(db)
}

// initGateways 按配置注册网关，虚拟网关可通过 payment.virtual_enabled 关闭
func (c *Container) initGateways() {
	paymentCfg := c.Config.Payment
	gateways := []payment.Gateway{
		wechat.New(wechat.Config{
			AppID:     paymentCfg.Wechat.AppID,
			MchID:     paymentCfg.Wechat.MchID,
			APIKey:    paymentCfg.Wechat.APIKey,
			NotifyURL: paymentCfg.Wechat.NotifyURL,
		}),
		alipay.New(alipay.Config{
			AppID:      paymentCfg.Alipay.AppID,
			PrivateKey: paymentCfg.Alipay.PrivateKey,
			SignType:   paymentCfg.Alipay.SignType,
			GatewayURL: paymentCfg.Alipay.GatewayURL,
			NotifyURL:  paymentCfg.Alipay.NotifyURL,
		}),
		creditcard.New(creditcard.Config{PrivateKey: paymentCfg.Security.RSAPrivateKey}),
	}
	if paymentCfg.VirtualEnabled {
		gateways = append(gateways, virtual.New())
	}
	c.GatewayRegistry = payment.NewRegistry(gateways...)
	c.Verifier = signature.NewVerifier(signature.Config{
		WechatAPIKey:    paymentCfg.Wechat.APIKey,
		AlipayPublicKey: paymentCfg.Alipay.AlipayPublicKey,
		AlipaySignType:  paymentCfg.Alipay.SignType,
		VirtualEnabled:  paymentCfg.VirtualEnabled,
	})
	c.Monitor = monitor.NewCounter()
	logger.Infow("provider_payment_gateways_registered", "methods", c.GatewayRegistry.Methods())
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.OperatorRepo)
	c.UserAuthService = service.NewUserAuthService(c.Config)
	c.PaymentService = service.NewPaymentService(service.PaymentServiceOptions{
		PaymentRepo: c.PaymentRepo,
		RefundRepo:  c.RefundRepo,
		AuditRepo:   c.PaymentAuditRepo,
		BookingRepo: c.BookingRepo,
		Registry:    c.GatewayRegistry,
		Verifier:    c.Verifier,
		Audit:       audit.NewRepositoryWriter(c.PaymentAuditRepo),
		Monitor:     c.Monitor,
		QueueClient: c.QueueClient,
		Settings:    service.PaymentSettingsFromConfig(c.Config.Payment),
	})
}
