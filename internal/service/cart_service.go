package service

import (
	"time"

	"github.com/storefront-next/internal/logger"
	"github.com/storefront-next/internal/models"
	"github.com/storefront-next/internal/repository"

	"github.com/shopspring/decimal"
)

// CartItemDetail 购物车项详情（用于响应）
type CartItemDetail struct {
	CartItemID uint            `json:"cart_item_id"`
	ProductID  uint            `json:"product_id"`
	Name       string          `json:"name"`
	UnitPrice  models.Money    `json:"unit_price"`
	Currency   string          `json:"currency"`
	Product    *models.Product `json:"product,omitempty"`
}

// CartView 购物车快照，总价每次根据目录现价重新计算
type CartView struct {
	Items       []CartItemDetail `json:"items"`
	TotalAmount models.Money     `json:"total_amount"`
	Currency    string           `json:"currency"`
}

// CartService 购物车服务
type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

// NewCartService 创建购物车服务
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// ListByUser 获取用户购物车
func (s *CartService) ListByUser(userID uint) (*CartView, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	items, err := s.cartRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.MapByIDs(ids)
	if err != nil {
		return nil, err
	}

	view := &CartView{Items: make([]CartItemDetail, 0, len(items))}
	total := decimal.Zero
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			// 商品已下架或删除，顺手清掉失效的购物车项
			if err := s.cartRepo.DeleteByID(item.ID); err != nil {
				logger.Warnw("cart_stale_item_delete_failed", "cart_item_id", item.ID, "error", err)
			}
			continue
		}
		total = total.Add(product.PriceAmount.Decimal)
		if view.Currency == "" {
			view.Currency = product.PriceCurrency
		}
		view.Items = append(view.Items, CartItemDetail{
			CartItemID: item.ID,
			ProductID:  item.ProductID,
			Name:       product.Name,
			UnitPrice:  product.PriceAmount,
			Currency:   product.PriceCurrency,
			Product:    &product,
		})
	}
	view.TotalAmount = models.NewMoneyFromDecimal(total)
	return view, nil
}

// AddItem 添加购物车项，一次加购一条记录
func (s *CartService) AddItem(userID, productID uint) (*models.CartItem, error) {
	if userID == 0 || productID == 0 {
		return nil, ErrInvalidInput
	}
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotAvailable
	}

	item := &models.CartItem{
		UserID:    userID,
		ProductID: productID,
		CreatedAt: time.Now(),
	}
	if err := s.cartRepo.Add(item); err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem 删除购物车项，仅允许删除本人的记录
func (s *CartService) RemoveItem(userID, cartItemID uint) error {
	if userID == 0 || cartItemID == 0 {
		return ErrInvalidInput
	}
	item, err := s.cartRepo.GetByID(cartItemID)
	if err != nil {
		return err
	}
	if item == nil || item.UserID != userID {
		return ErrCartItemNotFound
	}
	return s.cartRepo.DeleteByID(cartItemID)
}
