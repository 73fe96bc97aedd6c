package constants

// 支付意图状态常量
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// 支付方式常量
const (
	PaymentMethodWechat     = "wechat"
	PaymentMethodAlipay     = "alipay"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodVirtual    = "virtual"
)

// 支付交互渠道常量（信用卡忽略）
const (
	PaymentChannelQR  = "qr"
	PaymentChannelApp = "app"
	PaymentChannelH5  = "h5"
)

// 退款状态常量
const (
	RefundStatusPending = "pending"
	RefundStatusSuccess = "success"
	RefundStatusFailed  = "failed"
)

// 预约单状态常量
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
)

// 预约单支付状态常量
const (
	BookingPaymentStatusUnpaid   = "unpaid"
	BookingPaymentStatusPaid     = "paid"
	BookingPaymentStatusRefunded = "refunded"
)

// BookingCancelReasonPaymentTimeout 支付超时取消原因
const BookingCancelReasonPaymentTimeout = "payment timeout"

// 支付审计事件类型
const (
	AuditEventCreate           = "CREATE"
	AuditEventCallGateway      = "CALL_GATEWAY"
	AuditEventQueryStatus      = "QUERY_STATUS"
	AuditEventStatusChange     = "STATUS_CHANGE"
	AuditEventCallbackVerified = "CALLBACK_VERIFIED"
	AuditEventCallbackUpdate   = "CALLBACK_UPDATE"
	AuditEventRefundRequest    = "REFUND_REQUEST"
	AuditEventRefundSuccess    = "REFUND_SUCCESS"
	AuditEventRefundFailed     = "REFUND_FAILED"
	AuditEventCancelExpired    = "CANCEL_EXPIRED"
)

// AuditStatusVerified 验签通过时写入审计的状态
const AuditStatusVerified = "verified"

// 回调应答常量
const (
	WechatCallbackSuccess  = "<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>"
	WechatCallbackFail     = "<xml><return_code><![CDATA[FAIL]]></return_code><return_msg><![CDATA[处理失败]]></return_msg></xml>"
	AlipayCallbackSuccess  = "success"
	AlipayCallbackFail     = "fail"
	VirtualCallbackSuccess = "ok"
	VirtualCallbackFail    = "fail"
)

// 回调参数字段
const (
	CallbackFieldOutTradeNo    = "out_trade_no"
	CallbackFieldTransactionID = "transaction_id"
	CallbackFieldTradeNo       = "trade_no"
	CallbackFieldSign          = "sign"
	CallbackFieldSignType      = "sign_type"
)

// 签名类型
const (
	SignTypeRSA  = "RSA"
	SignTypeRSA2 = "RSA2"
)

// 队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型
const (
	TaskPaymentExpire = "payment:expire"
	TaskPaymentSweep  = "payment:sweep"
)

// 编号前缀
const (
	PaymentNoPrefix = "PAY"
	RefundNoPrefix  = "REF"
)
