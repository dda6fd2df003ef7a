package models

import (
	"time"

	"gorm.io/gorm"
)

// CartItem 购物车项（一次加购一条记录）
type CartItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`              // 主键
	UserID    uint           `gorm:"not null;index" json:"user_id"`     // 用户ID
	ProductID uint           `gorm:"not null;index" json:"product_id"`  // 商品ID
	CreatedAt time.Time      `gorm:"index" json:"created_at"`           // 创建时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                    // 软删除时间

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"` // 关联商品
}

// TableName 指定表名
func (CartItem) TableName() string {
	return "cart_items"
}
