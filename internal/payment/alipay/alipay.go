package alipay

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/payment/signature"

	"github.com/go-pay/gopay"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountInvalid = errors.New("alipay amount invalid")
	ErrSignGenerate  = errors.New("alipay sign generate failed")
)

const (
	methodPrecreate       = "alipay.trade.precreate"
	defaultGatewayURL     = "https://openapi.alipay.com/gateway.do"
	defaultTimeoutExpress = "30m"
	subjectPrefix         = "洗车服务-"
	refundNoPrefix        = "RF"
	qrCodeBaseURL         = "https://qr.alipay.com/"
)

// Config 支付宝开放平台配置
type Config struct {
	AppID      string
	PrivateKey string
	SignType   string
	GatewayURL string
	NotifyURL  string
}

// Gateway 支付宝网关（模拟预下单，请求参数与签名与开放平台一致）
type Gateway struct {
	cfg        Config
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// New 创建支付宝网关，私钥无效时下单不签名
func New(cfg Config) *Gateway {
	cfg.SignType = signature.NormalizeSignType(cfg.SignType, constants.SignTypeRSA2)
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		cfg.GatewayURL = defaultGatewayURL
	}
	gateway := &Gateway{cfg: cfg, now: time.Now}
	if strings.TrimSpace(cfg.PrivateKey) != "" {
		key, err := payment.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			logger.Warnw("alipay_private_key_invalid", "error", err)
		} else {
			gateway.privateKey = key
		}
	}
	return gateway
}

// Method 实现 payment.Gateway
func (g *Gateway) Method() payment.Method {
	return payment.MethodAlipay
}

// CreatePayment 构建 precreate 请求并返回模拟二维码与签名后的网关链接
func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrAmountInvalid, req.Amount.String())
	}

	biz := make(gopay.BodyMap)
	biz.Set("out_trade_no", req.PaymentNo).
		Set("total_amount", req.Amount.StringFixed(2)).
		Set("subject", subjectPrefix+req.OrderNo).
		Set("timeout_express", defaultTimeoutExpress)

	bm := make(gopay.BodyMap)
	bm.Set("app_id", g.cfg.AppID).
		Set("method", methodPrecreate).
		Set("format", "JSON").
		Set("charset", "utf-8").
		Set("sign_type", g.cfg.SignType).
		Set("timestamp", g.now().Format("2006-01-02 15:04:05")).
		Set("version", "1.0").
		Set("notify_url", g.cfg.NotifyURL).
		Set("biz_content", biz.JsonBody())

	if g.privateKey != nil {
		sign, err := signature.SignAlipay(toStringMap(bm), g.privateKey, g.cfg.SignType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignGenerate, err)
		}
		bm.Set(constants.CallbackFieldSign, sign)
	}

	query := bm.EncodeURLParams()
	result := &payment.CreateResult{
		Status:  constants.PaymentStatusPending,
		QRCode:  qrCodeBaseURL + strings.ReplaceAll(uuid.NewString(), "-", ""),
		PayURL:  g.cfg.GatewayURL + "?" + query,
		Message: "支付宝预下单成功",
		Raw:     query,
	}
	logger.SW("payment_no", req.PaymentNo, "order_no", req.OrderNo, "signed", g.privateKey != nil).Debugw("alipay_precreate_built")
	return result, nil
}

// QueryPayment 模拟查单：视为已支付
func (g *Gateway) QueryPayment(ctx context.Context, paymentNo string) (*payment.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &payment.QueryResult{
		Status:        constants.PaymentStatusPaid,
		TransactionID: payment.MillisID("ALI", g.now()),
		Message:       "查询成功",
	}, nil
}

// Refund 模拟退款：总是受理成功
func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s", ErrAmountInvalid, req.Amount.String())
	}
	return &payment.RefundResult{
		Success:  true,
		RefundNo: payment.GatewayRefundNo(refundNoPrefix, g.now()),
		Status:   constants.RefundStatusSuccess,
		Message:  "支付宝退款受理成功",
	}, nil
}

func toStringMap(bm gopay.BodyMap) map[string]string {
	params := make(map[string]string, len(bm))
	for key := range bm {
		params[key] = bm.GetString(key)
	}
	return params
}
