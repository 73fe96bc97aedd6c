package shared

import (
	"errors"

	"github.com/carwash-next/internal/http/response"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 定义业务错误到接口错误响应的映射关系。
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// RespondWithMappedError 命中映射则返回对应业务码，否则按兜底码记录并返回
func RespondWithMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Key, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackKey, err)
}

// PaymentValidationErrorRules 支付请求参数校验错误
var PaymentValidationErrorRules = []MappedError{
	{Target: service.ErrOrderNoRequired, Code: response.CodeBadRequest, Key: "error.order_no_required"},
	{Target: service.ErrPaymentNoRequired, Code: response.CodeBadRequest, Key: "error.bad_request"},
	{Target: service.ErrAmountInvalid, Code: response.CodeBadRequest, Key: "error.amount_invalid"},
	{Target: service.ErrPaymentMethodRequired, Code: response.CodeBadRequest, Key: "error.payment_method_required"},
	{Target: service.ErrPaymentMethodInvalid, Code: response.CodeBadRequest, Key: "error.payment_method_invalid"},
	{Target: service.ErrPaymentChannelInvalid, Code: response.CodeBadRequest, Key: "error.payment_channel_invalid"},
	{Target: service.ErrSecurePayloadRequired, Code: response.CodeBadRequest, Key: "error.secure_payload_required"},
	{Target: service.ErrRefundReasonRequired, Code: response.CodeBadRequest, Key: "error.refund_reason_required"},
}

// PaymentBusinessErrorRules 支付业务错误
var PaymentBusinessErrorRules = []MappedError{
	{Target: service.ErrOrderNotFound, Code: response.CodeOrderNotFound, Key: "error.order_not_found"},
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeOrderStatusInvalid, Key: "error.order_status_invalid"},
	{Target: service.ErrOrderAlreadyPaid, Code: response.CodeOrderAlreadyPaid, Key: "error.order_already_paid"},
	{Target: service.ErrPermissionDenied, Code: response.CodePermissionDenied, Key: "error.permission_denied"},
	{Target: service.ErrPaymentNotFound, Code: response.CodePaymentNotFound, Key: "error.payment_not_found"},
	{Target: service.ErrPaymentStatusInvalid, Code: response.CodePaymentStatusInvalid, Key: "error.payment_status_invalid"},
	{Target: service.ErrPaymentFailed, Code: response.CodePaymentFailed, Key: "error.payment_failed"},
	{Target: service.ErrRefundAmountInvalid, Code: response.CodeRefundAmountInvalid, Key: "error.refund_amount_invalid"},
	{Target: service.ErrPaymentLockBusy, Code: response.CodeTooManyRequests, Key: "error.payment_busy"},
	{Target: payment.ErrGatewayNotRegistered, Code: response.CodeBadRequest, Key: "error.payment_gateway_missing"},
	{Target: service.ErrSecurityKeyUnavailable, Code: response.CodeInternal, Key: "error.security_key_unavailable"},
}

// PaymentErrorRules 校验与业务错误合集
func PaymentErrorRules() []MappedError {
	rules := make([]MappedError, 0, len(PaymentValidationErrorRules)+len(PaymentBusinessErrorRules))
	rules = append(rules, PaymentValidationErrorRules...)
	return append(rules, PaymentBusinessErrorRules...)
}
