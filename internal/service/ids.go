package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/carwash-next/internal/constants"

	"github.com/google/uuid"
)

func generatePaymentNo(now time.Time) string {
	return generateBusinessNo(constants.PaymentNoPrefix, now)
}

func generateRefundNo(now time.Time) string {
	return generateBusinessNo(constants.RefundNoPrefix, now)
}

// generateBusinessNo 前缀 + 毫秒时间戳 + UUID 前 8 位（大写）
func generateBusinessNo(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return prefix + strconv.FormatInt(now.UnixMilli(), 10) + suffix
}
