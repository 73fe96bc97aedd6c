package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking 洗车预约单（支付核心只读写支付相关字段）
type Booking struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                       // 主键
	OrderNo       string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`      // 预约单号
	UserID        uint           `gorm:"index;not null" json:"user_id"`                              // 用户ID
	ServiceName   string         `gorm:"type:varchar(128)" json:"service_name"`                      // 服务项目
	CarNumber     string         `gorm:"type:varchar(32)" json:"car_number"`                         // 车牌号
	TotalPrice    Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"`   // 总价
	Status        string         `gorm:"type:varchar(16);index;not null" json:"status"`              // 预约状态
	PaymentStatus string         `gorm:"type:varchar(16);index;not null" json:"payment_status"`      // 支付状态
	PaymentMethod string         `gorm:"type:varchar(32)" json:"payment_method"`                     // 支付方式
	PaidAt        *time.Time     `json:"paid_at"`                                                    // 支付时间
	CancelledAt   *time.Time     `json:"cancelled_at"`                                               // 取消时间
	CancelReason  string         `gorm:"type:varchar(255)" json:"cancel_reason"`                     // 取消原因
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt     time.Time      `json:"updated_at"`                                                 // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                             // 软删除时间
}

// TableName 指定表名
func (Booking) TableName() string {
	return "bookings"
}
