package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/carwash-next/internal/audit"
	"github.com/carwash-next/internal/config"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/monitor"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/payment/signature"
	"github.com/carwash-next/internal/queue"
	"github.com/carwash-next/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPaymentExpire  = 30 * time.Minute
	defaultGatewayTimeout = 12 * time.Second
	defaultLockTTL        = 10 * time.Second
	defaultSweepBatchSize = 200
)

// PaymentSettings 支付编排参数
type PaymentSettings struct {
	ExpireAfter       time.Duration
	GatewayTimeout    time.Duration
	LockTTL           time.Duration
	SweepBatchSize    int
	SecurityPublicKey string
}

// PaymentSettingsFromConfig 从配置构建支付参数
func PaymentSettingsFromConfig(cfg config.PaymentConfig) PaymentSettings {
	return PaymentSettings{
		ExpireAfter:       time.Duration(cfg.ExpireMinutes) * time.Minute,
		GatewayTimeout:    time.Duration(cfg.GatewayTimeoutSeconds) * time.Second,
		LockTTL:           time.Duration(cfg.LockTTLSeconds) * time.Second,
		SweepBatchSize:    cfg.SweepBatchSize,
		SecurityPublicKey: cfg.Security.RSAPublicKey,
	}
}

func (s PaymentSettings) normalized() PaymentSettings {
	if s.ExpireAfter <= 0 {
		s.ExpireAfter = defaultPaymentExpire
	}
	if s.GatewayTimeout <= 0 {
		s.GatewayTimeout = defaultGatewayTimeout
	}
	if s.LockTTL <= 0 {
		s.LockTTL = defaultLockTTL
	}
	if s.SweepBatchSize <= 0 {
		s.SweepBatchSize = defaultSweepBatchSize
	}
	s.SecurityPublicKey = strings.TrimSpace(s.SecurityPublicKey)
	return s
}

// PaymentServiceOptions 支付服务依赖
type PaymentServiceOptions struct {
	PaymentRepo repository.PaymentRepository
	RefundRepo  repository.RefundRepository
	AuditRepo   repository.PaymentAuditRepository
	BookingRepo repository.BookingRepository
	Registry    *payment.Registry
	Verifier    *signature.Verifier
	Audit       audit.Writer
	Monitor     monitor.Monitor
	QueueClient *queue.Client
	Settings    PaymentSettings
}

// PaymentService 支付编排服务
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	refundRepo  repository.RefundRepository
	auditRepo   repository.PaymentAuditRepository
	bookingRepo repository.BookingRepository
	registry    *payment.Registry
	verifier    *signature.Verifier
	audit       audit.Writer
	monitor     monitor.Monitor
	queueClient *queue.Client
	settings    PaymentSettings
	now         func() time.Time
}

// NewPaymentService 创建支付服务，审计与监控缺省为空实现
func NewPaymentService(opts PaymentServiceOptions) *PaymentService {
	writer := opts.Audit
	if writer == nil {
		writer = audit.NopWriter{}
	}
	counter := opts.Monitor
	if counter == nil {
		counter = monitor.Nop{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = payment.NewRegistry()
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = signature.NewVerifier(signature.Config{})
	}
	return &PaymentService{
		paymentRepo: opts.PaymentRepo,
		refundRepo:  opts.RefundRepo,
		auditRepo:   opts.AuditRepo,
		bookingRepo: opts.BookingRepo,
		registry:    registry,
		verifier:    verifier,
		audit:       writer,
		monitor:     counter,
		queueClient: opts.QueueClient,
		settings:    opts.Settings.normalized(),
		now:         time.Now,
	}
}

// PaymentResponse 支付结果（创建与查询共用）
type PaymentResponse struct {
	PaymentNo     string       `json:"payment_no"`
	OrderNo       string       `json:"order_no"`
	Amount        models.Money `json:"amount"`
	PaymentMethod string       `json:"payment_method"`
	Channel       string       `json:"channel,omitempty"`
	Status        string       `json:"status"`
	QRCode        string       `json:"qr_code,omitempty"`
	PayURL        string       `json:"pay_url,omitempty"`
	ExpireAt      time.Time    `json:"expire_at"`
	PaidAt        *time.Time   `json:"paid_at,omitempty"`
	TransactionID string       `json:"transaction_id,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

func buildPaymentResponse(p *models.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{
		PaymentNo:     p.PaymentNo,
		OrderNo:       p.OrderNo,
		Amount:        p.Amount,
		PaymentMethod: p.PaymentMethod,
		Channel:       p.Channel,
		Status:        p.Status,
		QRCode:        p.QRCode,
		PayURL:        p.PayURL,
		ExpireAt:      p.ExpireAt,
		PaidAt:        p.PaidAt,
		TransactionID: p.TransactionID,
	}
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// orders 返回绑定事务的预约单存取
func (s *PaymentService) orders(tx *gorm.DB) OrderStore {
	if s.bookingRepo == nil {
		return nil
	}
	return s.bookingRepo.WithTx(tx)
}

// gatewayContext 网关调用单次超时，不重试
func (s *PaymentService) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.settings.GatewayTimeout)
}

func (s *PaymentService) record(ctx context.Context, p *models.Payment, eventType, status, message, rawData string, operatorID uint, amount *models.Money) {
	entry := &models.PaymentAudit{
		EventType:  eventType,
		Status:     status,
		OperatorID: operatorID,
		Message:    message,
		RawData:    rawData,
		Amount:     amount,
	}
	if p != nil {
		entry.PaymentNo = p.PaymentNo
		entry.OrderNo = p.OrderNo
		entry.PaymentMethod = p.PaymentMethod
	}
	s.audit.Record(ctx, entry)
}

func moneyPtr(m models.Money) *models.Money {
	return &m
}

// encodeCallbackParams 回调参数按 key 排序序列化，用于审计与留档
func encodeCallbackParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(body)
}

// SecurityPublicKey 客户端加密卡信息使用的公钥
func (s *PaymentService) SecurityPublicKey() (string, error) {
	if s.settings.SecurityPublicKey == "" {
		return "", ErrSecurityKeyUnavailable
	}
	return s.settings.SecurityPublicKey, nil
}

// MonitorSnapshot 支付计数快照
func (s *PaymentService) MonitorSnapshot() monitor.Snapshot {
	return s.monitor.Snapshot()
}

// Methods 已注册的支付方式
func (s *PaymentService) Methods() []payment.Method {
	return s.registry.Methods()
}
