package repository

import (
	"strings"
	"time"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingRepository 预约单数据访问接口（支付相关字段）
type BookingRepository interface {
	Create(booking *models.Booking) error
	GetByOrderNo(orderNo string) (*models.Booking, error)
	GetByOrderNoForUpdate(orderNo string) (*models.Booking, error)
	MarkPaid(orderNo string, paymentMethod string, paidAt time.Time) error
	MarkRefunded(orderNo string) error
	CancelIfUnpaid(orderNo string, reason string, now time.Time) (bool, error)
	WithTx(tx *gorm.DB) *GormBookingRepository
}

// GormBookingRepository GORM 实现
type GormBookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository 创建预约单仓库
func NewBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBookingRepository) WithTx(tx *gorm.DB) *GormBookingRepository {
	if tx == nil {
		return r
	}
	return &GormBookingRepository{db: tx}
}

// Create 创建预约单
func (r *GormBookingRepository) Create(booking *models.Booking) error {
	return r.db.Create(booking).Error
}

// GetByOrderNo 根据订单号获取预约单
func (r *GormBookingRepository) GetByOrderNo(orderNo string) (*models.Booking, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	var booking models.Booking
	result := r.db.Where("order_no = ?", orderNo).Limit(1).Find(&booking)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &booking, nil
}

// GetByOrderNoForUpdate 在事务内加行锁读取预约单，需配合 WithTx 使用
func (r *GormBookingRepository) GetByOrderNoForUpdate(orderNo string) (*models.Booking, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	var booking models.Booking
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_no = ?", orderNo).Limit(1).Find(&booking)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &booking, nil
}

// MarkPaid 标记预约单已支付
func (r *GormBookingRepository) MarkPaid(orderNo string, paymentMethod string, paidAt time.Time) error {
	return r.db.Model(&models.Booking{}).
		Where("order_no = ?", orderNo).
		Updates(map[string]interface{}{
			"payment_status": constants.BookingPaymentStatusPaid,
			"payment_method": paymentMethod,
			"paid_at":        paidAt,
			"updated_at":     paidAt,
		}).Error
}

// MarkRefunded 标记预约单已全额退款
func (r *GormBookingRepository) MarkRefunded(orderNo string) error {
	return r.db.Model(&models.Booking{}).
		Where("order_no = ?", orderNo).
		Updates(map[string]interface{}{
			"payment_status": constants.BookingPaymentStatusRefunded,
			"updated_at":     time.Now(),
		}).Error
}

// CancelIfUnpaid 仅在未支付时取消预约单，返回是否实际取消
func (r *GormBookingRepository) CancelIfUnpaid(orderNo string, reason string, now time.Time) (bool, error) {
	result := r.db.Model(&models.Booking{}).
		Where("order_no = ? AND payment_status = ?", orderNo, constants.BookingPaymentStatusUnpaid).
		Updates(map[string]interface{}{
			"status":        constants.BookingStatusCancelled,
			"cancel_reason": reason,
			"cancelled_at":  now,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
