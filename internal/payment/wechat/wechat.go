package wechat

import (
	"context"
	"encoding/xml"
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

var ErrAmountInvalid = errors.New("wechat amount invalid")

const (
	tradeTypeNative  = "NATIVE"
	refundNoPrefix   = "RF"
	defaultClientIP  = "127.0.0.1"
	defaultBodyTitle = "洗车服务"
)

// Config 微信支付（v2 接口）配置
type Config struct {
	AppID     string
	MchID     string
	APIKey    string
	NotifyURL string
}

// Gateway 微信支付网关（模拟下单，签名与参数与 v2 统一下单一致）
type Gateway struct {
	cfg Config
	now func() time.Time
}

// New 创建微信支付网关
func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg, now: time.Now}
}

// Method 实现 payment.Gateway
func (g *Gateway) Method() payment.Method {
	return payment.MethodWechat
}

// CreatePayment 构建统一下单请求并返回模拟的二维码或跳转链接
func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	totalFee, err := toFen(req.Amount)
	if err != nil {
		return nil, err
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")

	bm := make(gopay.BodyMap)
	bm.Set("appid", g.cfg.AppID).
		Set("mch_id", g.cfg.MchID).
		Set("nonce_str", nonce).
		Set("body", buildBody(req.Description, req.OrderNo)).
		Set("out_trade_no", req.PaymentNo).
		Set("total_fee", totalFee).
		Set("spbill_create_ip", normalizeClientIP(req.ClientIP)).
		Set("notify_url", g.cfg.NotifyURL).
		Set("trade_type", tradeTypeNative)
	bm.Set(constants.CallbackFieldSign, signature.SignWechat(ParamsFromBodyMap(bm), g.cfg.APIKey))

	result := &payment.CreateResult{
		Status:  constants.PaymentStatusPending,
		Message: "微信支付下单成功",
		Raw:     encodeXML(bm),
	}
	switch req.Channel {
	case constants.PaymentChannelApp:
		result.PayURL = "weixin://app/pay?prepay=" + nonce
	case constants.PaymentChannelH5:
		result.PayURL = "https://wx.tenpay.com/cgi-bin/mmpayweb-bin/checkmweb?prepay_id=" + nonce
	default:
		result.QRCode = "weixin://wxpay/bizpayurl?pr=" + nonce
	}
	logger.SW("payment_no", req.PaymentNo, "order_no", req.OrderNo, "channel", req.Channel).Debugw("wechat_unified_order_built")
	return result, nil
}

// QueryPayment 模拟查单：视为已支付
func (g *Gateway) QueryPayment(ctx context.Context, paymentNo string) (*payment.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &payment.QueryResult{
		Status:        constants.PaymentStatusPaid,
		TransactionID: payment.MillisID("WX", g.now()),
		Message:       "查询成功",
	}, nil
}

// Refund 模拟退款：总是受理成功
func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := toFen(req.Amount); err != nil {
		return nil, err
	}
	return &payment.RefundResult{
		Success:  true,
		RefundNo: payment.GatewayRefundNo(refundNoPrefix, g.now()),
		Status:   constants.RefundStatusSuccess,
		Message:  "微信退款受理成功",
	}, nil
}

func toFen(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrAmountInvalid, amount.String())
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// ParamsFromBodyMap 将 gopay 报文展开为验签用的扁平参数
func ParamsFromBodyMap(bm gopay.BodyMap) map[string]string {
	params := make(map[string]string, len(bm))
	for key := range bm {
		params[key] = bm.GetString(key)
	}
	return params
}

func encodeXML(bm gopay.BodyMap) string {
	body, err := xml.Marshal(bm)
	if err != nil {
		return bm.JsonBody()
	}
	return string(body)
}

func buildBody(description string, orderNo string) string {
	description = strings.TrimSpace(description)
	if description != "" {
		return description
	}
	return defaultBodyTitle + "-" + orderNo
}

func normalizeClientIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultClientIP
	}
	return raw
}
