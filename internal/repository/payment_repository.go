package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 支付意图数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	Update(payment *models.Payment) error
	GetByPaymentNo(paymentNo string) (*models.Payment, error)
	GetPendingByOrderNo(orderNo string) (*models.Payment, error)
	GetLatestByOrderNo(orderNo string) (*models.Payment, error)
	ListByUser(userID uint, page, pageSize int) ([]models.Payment, int64, error)
	ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error)
	ListExpiredPending(now time.Time, limit int) ([]models.Payment, error)
	MarkCancelledIfPending(id uint, now time.Time) (bool, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// Update 更新支付记录，非 pending 状态同步清空待支付约束
func (r *GormPaymentRepository) Update(payment *models.Payment) error {
	if payment != nil && !payment.IsPending() {
		payment.PendingGuard = nil
	}
	return r.db.Save(payment).Error
}

// GetByPaymentNo 根据支付流水号获取支付记录
func (r *GormPaymentRepository) GetByPaymentNo(paymentNo string) (*models.Payment, error) {
	paymentNo = strings.TrimSpace(paymentNo)
	if paymentNo == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("payment_no = ?", paymentNo).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetPendingByOrderNo 获取订单当前待支付记录
func (r *GormPaymentRepository) GetPendingByOrderNo(orderNo string) (*models.Payment, error) {
	var payment models.Payment
	result := r.db.Where("order_no = ? AND status = ?", orderNo, constants.PaymentStatusPending).
		Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetLatestByOrderNo 获取订单最新支付记录
func (r *GormPaymentRepository) GetLatestByOrderNo(orderNo string) (*models.Payment, error) {
	var payment models.Payment
	result := r.db.Where("order_no = ?", orderNo).Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// ListByUser 用户支付记录（新的在前）
func (r *GormPaymentRepository) ListByUser(userID uint, page, pageSize int) ([]models.Payment, int64, error) {
	return r.ListAdmin(PaymentListFilter{UserID: userID, Page: page, PageSize: pageSize})
}

// ListAdmin 管理端支付列表
func (r *GormPaymentRepository) ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if orderNo := strings.TrimSpace(filter.OrderNo); orderNo != "" {
		query = query.Where("order_no = ?", orderNo)
	}
	if paymentNo := strings.TrimSpace(filter.PaymentNo); paymentNo != "" {
		query = query.Where("payment_no = ?", paymentNo)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var payments []models.Payment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListExpiredPending 已过期仍待支付的记录
func (r *GormPaymentRepository) ListExpiredPending(now time.Time, limit int) ([]models.Payment, error) {
	query := r.db.Where("status = ? AND expire_at < ?", constants.PaymentStatusPending, now).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// MarkCancelledIfPending 仅当仍为 pending 时取消，返回是否实际更新
func (r *GormPaymentRepository) MarkCancelledIfPending(id uint, now time.Time) (bool, error) {
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, constants.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":        constants.PaymentStatusCancelled,
			"pending_guard": nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
