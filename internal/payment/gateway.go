package payment

import (
	"context"
	"strings"

	"github.com/carwash-next/internal/constants"

	"github.com/shopspring/decimal"
)

// Method 支付方式标识
type Method string

const (
	MethodWechat     Method = constants.PaymentMethodWechat
	MethodAlipay     Method = constants.PaymentMethodAlipay
	MethodCreditCard Method = constants.PaymentMethodCreditCard
	MethodVirtual    Method = constants.PaymentMethodVirtual
)

// Methods 返回全部已知支付方式
func Methods() []Method {
	return []Method{MethodWechat, MethodAlipay, MethodCreditCard, MethodVirtual}
}

// ParseMethod 解析支付方式（忽略大小写与首尾空白）
func ParseMethod(raw string) (Method, bool) {
	normalized := Method(strings.ToLower(strings.TrimSpace(raw)))
	for _, method := range Methods() {
		if method == normalized {
			return method, true
		}
	}
	return "", false
}

// String 实现 fmt.Stringer
func (m Method) String() string {
	return string(m)
}

// CreateRequest 网关下单输入
type CreateRequest struct {
	PaymentNo     string
	OrderNo       string
	Amount        decimal.Decimal
	Channel       string
	SecurePayload string
	Description   string
	ClientIP      string
}

// CreateResult 网关下单结果
type CreateResult struct {
	Status        string
	QRCode        string
	PayURL        string
	TransactionID string
	Message       string
	Raw           string
}

// QueryResult 网关查单结果
type QueryResult struct {
	Status        string
	TransactionID string
	Message       string
}

// RefundRequest 网关退款输入
type RefundRequest struct {
	PaymentNo string
	RefundNo  string
	Amount    decimal.Decimal
	Reason    string
}

// RefundResult 网关退款结果
type RefundResult struct {
	Success  bool
	RefundNo string
	Status   string
	Message  string
}

// Gateway 单一支付方式的网关适配器
type Gateway interface {
	Method() Method
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	QueryPayment(ctx context.Context, paymentNo string) (*QueryResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
