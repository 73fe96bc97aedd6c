package models

import (
	"time"

	"github.com/carwash-next/internal/constants"

	"gorm.io/gorm"
)

// Payment 支付意图（一次针对预约单的支付尝试）
type Payment struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                               // 主键
	PaymentNo     string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`            // 支付流水号
	OrderNo       string         `gorm:"type:varchar(64);index;not null" json:"order_no"`                    // 预约单号
	PendingGuard  *string        `gorm:"type:varchar(64);uniqueIndex:uk_payments_pending_guard" json:"-"`    // 待支付唯一约束（仅 pending 时等于 OrderNo）
	UserID        uint           `gorm:"index;not null" json:"user_id"`                                      // 用户ID
	Amount        Money          `gorm:"type:decimal(20,2);not null" json:"amount"`                          // 支付金额
	PaymentMethod string         `gorm:"type:varchar(32);index;not null" json:"payment_method"`              // 支付方式
	Channel       string         `gorm:"type:varchar(16)" json:"channel"`                                    // 交互渠道（qr/app/h5）
	Status        string         `gorm:"type:varchar(16);index;not null" json:"status"`                      // 支付状态
	Description   string         `gorm:"type:varchar(255)" json:"description"`                               // 描述
	ClientIP      string         `gorm:"type:varchar(64)" json:"client_ip,omitempty"`                        // 下单客户端IP
	TransactionID string         `gorm:"type:varchar(128);index" json:"transaction_id"`                      // 第三方交易号
	PayURL        string         `gorm:"type:text" json:"pay_url"`                                           // 跳转链接
	QRCode        string         `gorm:"type:text" json:"qr_code"`                                           // 二维码内容
	GatewayMsg    string         `gorm:"type:varchar(255)" json:"gateway_message,omitempty"`                 // 网关返回提示
	NotifyCount   int            `gorm:"not null;default:0" json:"notify_count"`                             // 回调次数
	RawData       string         `gorm:"type:text" json:"-"`                                                 // 最近一次网关原始数据
	ExpireAt      time.Time      `gorm:"index;not null" json:"expire_at"`                                    // 过期时间
	PaidAt        *time.Time     `gorm:"index" json:"paid_at"`                                               // 支付时间
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                                            // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                                     // 软删除时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// IsPending 是否处于待支付状态
func (p *Payment) IsPending() bool {
	return p != nil && p.Status == constants.PaymentStatusPending
}

// PendingGuardFor 返回待支付唯一约束值
func PendingGuardFor(orderNo string) *string {
	guard := orderNo
	return &guard
}
