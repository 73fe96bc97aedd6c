package models

import (
	"time"

	"gorm.io/gorm"
)

// Operator 后台操作员（客服/财务），退款记录中的 operator_id 指向此表
type Operator struct {
	ID           uint           `gorm:"primarykey" json:"id"`                         // 主键
	Username     string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"` // 登录名
	DisplayName  string         `gorm:"type:varchar(64)" json:"display_name"`         // 显示名
	PasswordHash string         `gorm:"not null" json:"-"`                            // 密码哈希
	TokenVersion uint64         `gorm:"not null;default:0" json:"-"`                  // Token 版本（改密后递增）
	IsSuper      bool           `gorm:"not null;default:false;index" json:"is_super"` // 超级管理员（跳过权限校验）
	Disabled     bool           `gorm:"not null;default:false" json:"disabled"`       // 是否停用
	LastLoginAt  *time.Time     `json:"last_login_at"`                                // 最后登录时间
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                      // 创建时间
	UpdatedAt    time.Time      `json:"updated_at"`                                   // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                               // 软删除时间
}

// TableName 指定表名
func (Operator) TableName() string {
	return "operators"
}
