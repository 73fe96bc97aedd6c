package service

import (
	"time"

	"github.com/carwash-next/internal/models"
)

// OrderStore 支付核心对预约单的读写依赖
type OrderStore interface {
	GetByOrderNo(orderNo string) (*models.Booking, error)
	GetByOrderNoForUpdate(orderNo string) (*models.Booking, error)
	MarkPaid(orderNo string, paymentMethod string, paidAt time.Time) error
	MarkRefunded(orderNo string) error
	CancelIfUnpaid(orderNo string, reason string, now time.Time) (bool, error)
}
