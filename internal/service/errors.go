package service

import "errors"

// 预约单相关错误
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrOrderStatusInvalid = errors.New("order status does not allow payment")
	ErrOrderAlreadyPaid   = errors.New("order already paid")
	ErrOrderUpdateFailed  = errors.New("order update failed")
)

// 支付相关错误
var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPaymentStatusInvalid  = errors.New("payment status invalid")
	ErrPaymentFailed         = errors.New("payment gateway call failed")
	ErrPaymentCreateFailed   = errors.New("payment create failed")
	ErrPaymentUpdateFailed   = errors.New("payment update failed")
	ErrPaymentLockBusy       = errors.New("payment is being processed")
	ErrPaymentMethodMismatch = errors.New("callback method does not match payment")
	ErrRefundAmountInvalid   = errors.New("refund amount exceeds refundable amount")
	ErrRefundCreateFailed    = errors.New("refund create failed")
)

// 入参校验错误
var (
	ErrOrderNoRequired        = errors.New("order number is required")
	ErrPaymentNoRequired      = errors.New("payment number is required")
	ErrAmountInvalid          = errors.New("amount must be at least 0.01")
	ErrPaymentMethodRequired  = errors.New("payment method is required")
	ErrPaymentMethodInvalid   = errors.New("payment method is not supported")
	ErrPaymentChannelInvalid  = errors.New("payment channel is invalid")
	ErrSecurePayloadRequired  = errors.New("secure payload is required for card payments")
	ErrRefundReasonRequired   = errors.New("refund reason is required")
	ErrSecurityKeyUnavailable = errors.New("card payment public key not configured")
)

// 认证相关错误
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOperatorDisabled   = errors.New("operator disabled")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrNotFound           = errors.New("not found")
)
