package repository

import (
	"time"

	"gorm.io/gorm"
)

// maxPageSize 列表接口单页上限
const maxPageSize = 100

// PaymentListFilter 管理端支付列表过滤条件
type PaymentListFilter struct {
	Page          int
	PageSize      int
	UserID        uint
	OrderNo       string
	PaymentNo     string
	PaymentMethod string
	Status        string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// PaymentAuditListFilter 支付审计查询过滤条件
type PaymentAuditListFilter struct {
	Page      int
	PageSize  int
	PaymentNo string
	OrderNo   string
	EventType string
	Status    string
}

// paginate 分页 scope，pageSize <= 0 时不分页，超过上限按上限截断
func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if pageSize <= 0 {
			return db
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		if page < 1 {
			page = 1
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}
