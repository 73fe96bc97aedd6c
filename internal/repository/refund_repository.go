package repository

import (
	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundRepository 退款记录数据访问接口
type RefundRepository interface {
	Create(refund *models.Refund) error
	Update(refund *models.Refund) error
	SumSuccessAmount(paymentID uint) (decimal.Decimal, error)
	ListByPaymentID(paymentID uint) ([]models.Refund, error)
	WithTx(tx *gorm.DB) *GormRefundRepository
}

// GormRefundRepository GORM 实现
type GormRefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository 创建退款仓库
func NewRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefundRepository) WithTx(tx *gorm.DB) *GormRefundRepository {
	if tx == nil {
		return r
	}
	return &GormRefundRepository{db: tx}
}

// Create 创建退款记录
func (r *GormRefundRepository) Create(refund *models.Refund) error {
	return r.db.Create(refund).Error
}

// Update 更新退款记录
func (r *GormRefundRepository) Update(refund *models.Refund) error {
	return r.db.Save(refund).Error
}

// SumSuccessAmount 统计支付意图已成功退款总额
func (r *GormRefundRepository) SumSuccessAmount(paymentID uint) (decimal.Decimal, error) {
	var refunds []models.Refund
	if err := r.db.Select("amount").
		Where("payment_id = ? AND status = ?", paymentID, constants.RefundStatusSuccess).
		Find(&refunds).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, refund := range refunds {
		total = total.Add(refund.Amount.Decimal)
	}
	return total.Round(2), nil
}

// ListByPaymentID 支付意图下的退款记录
func (r *GormRefundRepository) ListByPaymentID(paymentID uint) ([]models.Refund, error) {
	var refunds []models.Refund
	if err := r.db.Where("payment_id = ?", paymentID).Order("id desc").Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}
