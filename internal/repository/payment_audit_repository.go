package repository

import (
	"strings"

	"github.com/carwash-next/internal/models"

	"gorm.io/gorm"
)

// PaymentAuditRepository 支付审计数据访问接口（只追加）
type PaymentAuditRepository interface {
	Create(audit *models.PaymentAudit) error
	List(filter PaymentAuditListFilter) ([]models.PaymentAudit, int64, error)
}

// GormPaymentAuditRepository GORM 实现
type GormPaymentAuditRepository struct {
	db *gorm.DB
}

// NewPaymentAuditRepository 创建支付审计仓库
func NewPaymentAuditRepository(db *gorm.DB) *GormPaymentAuditRepository {
	return &GormPaymentAuditRepository{db: db}
}

// Create 写入审计记录
func (r *GormPaymentAuditRepository) Create(audit *models.PaymentAudit) error {
	return r.db.Create(audit).Error
}

// List 分页查询审计记录，流水号与订单号为模糊匹配
func (r *GormPaymentAuditRepository) List(filter PaymentAuditListFilter) ([]models.PaymentAudit, int64, error) {
	query := r.db.Model(&models.PaymentAudit{})

	if pattern := likePattern(filter.PaymentNo); pattern != "" {
		query = query.Where(likeCondition(r.db, "payment_no"), pattern)
	}
	if pattern := likePattern(filter.OrderNo); pattern != "" {
		query = query.Where(likeCondition(r.db, "order_no"), pattern)
	}
	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var audits []models.PaymentAudit
	if err := query.Order("created_at desc").Order("id desc").Find(&audits).Error; err != nil {
		return nil, 0, err
	}
	return audits, total, nil
}
