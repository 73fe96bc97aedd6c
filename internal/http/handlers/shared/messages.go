package shared

import "fmt"

// messages 错误提示文案，键与日志中的 message_key 对应
var messages = map[string]string{
	"error.bad_request":                "请求参数错误",
	"error.unauthorized":               "未登录或登录已过期",
	"error.forbidden":                  "无权限访问",
	"error.too_many_requests":          "请求过于频繁，请稍后再试",
	"error.internal":                   "服务器内部错误",
	"error.auth_header_missing":        "缺少认证信息",
	"error.auth_header_invalid":        "认证信息格式错误",
	"error.token_invalid":              "登录凭证无效",
	"error.jwt_secret_missing":         "服务端未配置签名密钥",
	"error.rate_limit_unavailable":     "限流服务暂不可用",
	"error.rate_limited":               "请求过于频繁，请 %d 秒后再试",
	"error.user_id_invalid":            "用户标识无效",
	"error.user_id_type_invalid":       "用户标识类型错误",
	"error.operator_id_invalid":        "操作员标识无效",
	"error.operator_id_type_invalid":   "操作员标识类型错误",
	"error.login_invalid":              "用户名或密码错误",
	"error.operator_disabled":          "账号已停用",
	"error.login_failed":               "登录失败",
	"error.order_no_required":          "预约单号不能为空",
	"error.order_not_found":            "预约单不存在",
	"error.order_status_invalid":       "预约单状态不允许支付",
	"error.order_already_paid":         "预约单已支付",
	"error.amount_invalid":             "支付金额不合法",
	"error.payment_method_required":    "支付方式不能为空",
	"error.payment_method_invalid":     "不支持的支付方式",
	"error.payment_channel_invalid":    "不支持的支付渠道",
	"error.secure_payload_required":    "信用卡支付缺少安全载荷",
	"error.payment_not_found":          "支付记录不存在",
	"error.payment_status_invalid":     "支付状态不允许该操作",
	"error.payment_failed":             "支付失败",
	"error.payment_busy":               "支付处理中，请稍后重试",
	"error.payment_create_failed":      "创建支付失败",
	"error.payment_fetch_failed":       "查询支付失败",
	"error.payment_gateway_missing":    "支付方式暂不可用",
	"error.permission_denied":          "无权操作该支付",
	"error.refund_amount_invalid":      "退款金额超出可退金额",
	"error.refund_reason_required":     "退款原因不能为空",
	"error.refund_failed":              "退款处理失败",
	"error.security_key_unavailable":   "支付安全密钥未配置",
	"error.payment_cancel_failed":      "取消过期支付失败",
	"error.payment_audit_fetch_failed": "查询支付审计失败",
}

// Message 按键取提示文案，未登记的键原样返回
func Message(key string) string {
	if msg, ok := messages[key]; ok {
		return msg
	}
	return key
}

// Messagef 带参数的提示文案
func Messagef(key string, args ...interface{}) string {
	return fmt.Sprintf(Message(key), args...)
}
