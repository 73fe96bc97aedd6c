package response

// 通用状态码
const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeTooManyRequests = 429
	CodeInternal        = 500
)

// 预约单业务码
const (
	CodeOrderNotFound      = 4001
	CodeOrderStatusInvalid = 4002
	CodeOrderAlreadyPaid   = 4005
)

// 支付业务码
const (
	CodePaymentNotFound      = 5001
	CodePaymentStatusInvalid = 5002
	CodePaymentFailed        = 5004
	CodeRefundAmountInvalid  = 5005
	CodePermissionDenied     = 5007
)
