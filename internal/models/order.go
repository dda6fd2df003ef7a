package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 结账订单表
type Order struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                      // 主键
	OrderNo     string         `gorm:"uniqueIndex;not null" json:"order_no"`                      // 订单编号
	UserID      uint           `gorm:"index;not null" json:"user_id"`                             // 用户ID
	Status      string         `gorm:"index;not null" json:"status"`                              // 订单状态
	Currency    string         `gorm:"not null" json:"currency"`                                  // 币种
	TotalAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"` // 实付金额
	ProviderRef string         `gorm:"uniqueIndex" json:"provider_ref"`                           // 支付网关订单号
	ApprovalURL string         `gorm:"type:text" json:"approval_url"`                             // 支付网关授权链接
	CaptureRef  string         `gorm:"index" json:"capture_ref"`                                  // 支付网关捕获流水号
	PaidAt      *time.Time     `gorm:"index" json:"paid_at"`                                      // 支付时间
	ExpiresAt   *time.Time     `gorm:"index" json:"expires_at"`                                   // 过期时间
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                   // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
