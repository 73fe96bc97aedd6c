package models

import "time"

// PaymentAudit 支付审计日志（只追加，不修改）
type PaymentAudit struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                 // 主键
	EventType     string    `gorm:"type:varchar(32);index;not null" json:"event_type"`    // 事件类型
	PaymentNo     string    `gorm:"type:varchar(64);index" json:"payment_no"`             // 支付流水号
	OrderNo       string    `gorm:"type:varchar(64);index" json:"order_no"`               // 预约单号
	Status        string    `gorm:"type:varchar(32);index" json:"status"`                 // 事件发生时的状态
	PaymentMethod string    `gorm:"type:varchar(32)" json:"payment_method"`               // 支付方式
	Amount        *Money    `gorm:"type:decimal(20,2)" json:"amount,omitempty"`           // 金额
	OperatorID    uint      `gorm:"index" json:"operator_id,omitempty"`                   // 操作人ID
	Message       string    `gorm:"type:varchar(255)" json:"message"`                     // 描述
	RawData       string    `gorm:"type:text" json:"raw_data,omitempty"`                  // 原始数据
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                              // 创建时间
}

// TableName 指定表名
func (PaymentAudit) TableName() string {
	return "payment_audits"
}
