package models

import (
	"time"

	"gorm.io/gorm"
)

// Refund 退款记录
type Refund struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                    // 主键
	PaymentID    uint           `gorm:"index;not null" json:"payment_id"`                        // 支付意图ID
	RefundNo     string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"refund_no"`  // 退款单号
	GatewayRefNo string         `gorm:"type:varchar(128)" json:"gateway_refund_no,omitempty"`    // 网关退款单号
	Amount       Money          `gorm:"type:decimal(20,2);not null" json:"amount"`               // 退款金额
	Reason       string         `gorm:"type:varchar(255);not null" json:"reason"`                // 退款原因
	Status       string         `gorm:"type:varchar(16);index;not null" json:"status"`           // 退款状态
	OperatorID   uint           `gorm:"index" json:"operator_id"`                                // 操作人ID
	Message      string         `gorm:"type:varchar(255)" json:"message,omitempty"`              // 网关返回提示
	RefundedAt   *time.Time     `gorm:"index" json:"refunded_at"`                                // 退款完成时间
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt    time.Time      `json:"updated_at"`                                              // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                          // 软删除时间
}

// TableName 指定表名
func (Refund) TableName() string {
	return "refunds"
}
