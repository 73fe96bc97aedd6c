package service

import (
	"strings"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/payment"

	"github.com/shopspring/decimal"
)

var minPaymentAmount = decimal.New(1, -2)

// CreatePaymentInput 创建支付请求
type CreatePaymentInput struct {
	OrderNo       string
	Amount        decimal.Decimal
	PaymentMethod string
	Channel       string
	SecurePayload string
	Description   string
	ClientIP      string
	UserID        uint
}

// RefundInput 退款请求
type RefundInput struct {
	PaymentNo  string
	Amount     decimal.Decimal
	Reason     string
	OperatorID uint
}

// ValidateCreatePaymentInput 校验并规范化创建支付请求
// 信用卡忽略渠道；其余方式渠道为空时默认 qr。
func ValidateCreatePaymentInput(input *CreatePaymentInput) error {
	if input == nil {
		return ErrOrderNoRequired
	}
	input.OrderNo = strings.TrimSpace(input.OrderNo)
	if input.OrderNo == "" {
		return ErrOrderNoRequired
	}
	if input.Amount.LessThan(minPaymentAmount) {
		return ErrAmountInvalid
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return ErrPaymentMethodRequired
	}
	method, ok := payment.ParseMethod(input.PaymentMethod)
	if !ok {
		return ErrPaymentMethodInvalid
	}
	input.PaymentMethod = method.String()
	input.Description = strings.TrimSpace(input.Description)
	input.ClientIP = strings.TrimSpace(input.ClientIP)

	if method == payment.MethodCreditCard {
		input.SecurePayload = strings.TrimSpace(input.SecurePayload)
		if input.SecurePayload == "" {
			return ErrSecurePayloadRequired
		}
		input.Channel = ""
		return nil
	}

	channel := strings.ToLower(strings.TrimSpace(input.Channel))
	switch channel {
	case "":
		channel = constants.PaymentChannelQR
	case constants.PaymentChannelQR, constants.PaymentChannelApp, constants.PaymentChannelH5:
	default:
		return ErrPaymentChannelInvalid
	}
	input.Channel = channel
	input.SecurePayload = ""
	return nil
}

// ValidateRefundInput 校验退款请求
func ValidateRefundInput(input *RefundInput) error {
	if input == nil {
		return ErrPaymentNoRequired
	}
	input.PaymentNo = strings.TrimSpace(input.PaymentNo)
	if input.PaymentNo == "" {
		return ErrPaymentNoRequired
	}
	if input.Amount.LessThan(minPaymentAmount) {
		return ErrAmountInvalid
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return ErrRefundReasonRequired
	}
	return nil
}
