package virtual

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/payment"

	"github.com/google/uuid"
)

const refundNoPrefix = "VRF"

// Gateway 虚拟支付网关（开发与测试用）
// 创建后首次查单即把状态由 pending 翻转为 paid。
type Gateway struct {
	mu       sync.Mutex
	payments map[string]string
	now      func() time.Time
}

// New 创建虚拟网关
func New() *Gateway {
	return &Gateway{
		payments: make(map[string]string),
		now:      time.Now,
	}
}

// Method 实现 payment.Gateway
func (g *Gateway) Method() payment.Method {
	return payment.MethodVirtual
}

// CreatePayment 按渠道返回占位二维码或深链
func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &payment.CreateResult{Status: constants.PaymentStatusPending}
	switch req.Channel {
	case constants.PaymentChannelQR:
		result.QRCode = "virtual://qrcode/" + uuid.NewString()
		result.Message = "虚拟扫码支付创建成功"
	case constants.PaymentChannelApp:
		result.PayURL = "carwashpay://pay?order=" + url.QueryEscape(req.OrderNo) + "&ts=" + strconv.FormatInt(g.now().UnixMilli(), 10)
		result.Message = "虚拟APP支付创建成功"
	default:
		result.PayURL = "https://virtual-pay.example/h5/checkout?order=" + url.QueryEscape(req.OrderNo)
		result.Message = "虚拟H5支付创建成功"
	}

	g.mu.Lock()
	g.payments[req.PaymentNo] = constants.PaymentStatusPending
	g.mu.Unlock()
	return result, nil
}

// QueryPayment 未知或待支付的流水在查询时视为完成支付
func (g *Gateway) QueryPayment(ctx context.Context, paymentNo string) (*payment.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	status, ok := g.payments[paymentNo]
	if !ok || status == constants.PaymentStatusPending {
		status = constants.PaymentStatusPaid
		g.payments[paymentNo] = status
	}
	g.mu.Unlock()

	return &payment.QueryResult{
		Status:        status,
		TransactionID: payment.MillisID("VTX", g.now()),
		Message:       "查询成功",
	}, nil
}

// Refund 虚拟退款总是成功
func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &payment.RefundResult{
		Success:  true,
		RefundNo: payment.GatewayRefundNo(refundNoPrefix, g.now()),
		Status:   constants.RefundStatusSuccess,
		Message:  "虚拟退款受理成功",
	}, nil
}
