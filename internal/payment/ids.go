package payment

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

// GatewayRefundNo 网关侧退款单号：前缀 + yyyyMMddHHmmss + 6 位随机数
func GatewayRefundNo(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%s%06d", prefix, now.Format("20060102150405"), rand.IntN(1_000_000))
}

// MillisID 前缀 + 毫秒时间戳
func MillisID(prefix string, now time.Time) string {
	return prefix + strconv.FormatInt(now.UnixMilli(), 10)
}
