package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/storefront-next/internal/cache"
	"github.com/storefront-next/internal/config"
	"github.com/storefront-next/internal/constants"
	"github.com/storefront-next/internal/logger"
	"github.com/storefront-next/internal/models"
	"github.com/storefront-next/internal/payment/paypal"
	"github.com/storefront-next/internal/queue"
	"github.com/storefront-next/internal/repository"

	"github.com/shopspring/decimal"
)

// PaymentGateway 支付网关适配接口
type PaymentGateway interface {
	CreateOrder(ctx context.Context, input paypal.CreateInput) (*paypal.CreateResult, error)
	CaptureOrder(ctx context.Context, providerRef string) (*paypal.CaptureResult, error)
	GetOrder(ctx context.Context, providerRef string) (*paypal.OrderDetail, error)
}

// PaypalGateway PayPal 网关实现
type PaypalGateway struct {
	cfg *paypal.Config
}

// NewPaypalGateway 创建 PayPal 网关
func NewPaypalGateway(cfg *config.PaypalConfig) *PaypalGateway {
	return &PaypalGateway{cfg: paypal.FromSiteConfig(cfg)}
}

// CreateOrder 创建网关订单
func (g *PaypalGateway) CreateOrder(ctx context.Context, input paypal.CreateInput) (*paypal.CreateResult, error) {
	return paypal.CreateOrder(ctx, g.cfg, input)
}

// CaptureOrder 捕获网关订单
func (g *PaypalGateway) CaptureOrder(ctx context.Context, providerRef string) (*paypal.CaptureResult, error) {
	return paypal.CaptureOrder(ctx, g.cfg, providerRef)
}

// GetOrder 查询网关订单
func (g *PaypalGateway) GetOrder(ctx context.Context, providerRef string) (*paypal.OrderDetail, error) {
	return paypal.GetOrder(ctx, g.cfg, providerRef)
}

// CheckoutResult 发起结算返回
type CheckoutResult struct {
	OrderNo     string       `json:"order_no"`
	Status      string       `json:"status"`
	TotalAmount models.Money `json:"total_amount"`
	Currency    string       `json:"currency"`
	ApprovalURL string       `json:"approval_url"`
	ExpiresAt   *time.Time   `json:"expires_at"`
}

// FinalizeResult 支付回跳处理返回
type FinalizeResult struct {
	OrderNo     string       `json:"order_no"`
	Status      string       `json:"status"`
	TotalAmount models.Money `json:"total_amount"`
	Currency    string       `json:"currency"`
	CaptureRef  string       `json:"capture_ref"`
	PaidAt      *time.Time   `json:"paid_at"`
}

// OrderStatusView 订单状态查询返回
type OrderStatusView struct {
	OrderNo       string       `json:"order_no"`
	Status        string       `json:"status"`
	TotalAmount   models.Money `json:"total_amount"`
	Currency      string       `json:"currency"`
	ApprovalURL   string       `json:"approval_url,omitempty"`
	GatewayStatus string       `json:"gateway_status,omitempty"`
	PaidAt        *time.Time   `json:"paid_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// CheckoutService 结算服务
type CheckoutService struct {
	cfg         *config.Config
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	queueClient *queue.Client
	gateway     PaymentGateway
}

// NewCheckoutService 创建结算服务
func NewCheckoutService(
	cfg *config.Config,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	queueClient *queue.Client,
	gateway PaymentGateway,
) *CheckoutService {
	return &CheckoutService{
		cfg:         cfg,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		queueClient: queueClient,
		gateway:     gateway,
	}
}

// Checkout 发起结算：按目录现价重算总额，创建网关订单并落库
// 购物车在此阶段保持原样，只有确认收款后才会清空
func (s *CheckoutService) Checkout(ctx context.Context, userID uint) (*CheckoutResult, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	acquired, err := cache.AcquireCheckoutGuard(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrCheckoutInFlight
	}
	defer func() {
		if err := cache.ReleaseCheckoutGuard(ctx, userID); err != nil {
			logger.Warnw("checkout_guard_release_failed", "user_id", userID, "error", err)
		}
	}()

	items, err := s.cartRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.MapByIDs(ids)
	if err != nil {
		return nil, err
	}

	// 与购物车视图一致：已下架或已删除的商品直接跳过，不计入总额
	total := decimal.Zero
	purchasable := 0
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			continue
		}
		purchasable++
		total = total.Add(product.PriceAmount.Decimal)
	}
	if purchasable == 0 {
		return nil, ErrProductNotAvailable
	}

	currency := strings.ToUpper(strings.TrimSpace(s.cfg.Paypal.Currency))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}
	amount := models.NewMoneyFromDecimal(total)
	orderNo := generateOrderNo()

	created, err := s.gateway.CreateOrder(ctx, paypal.CreateInput{
		OrderNo:     orderNo,
		Amount:      amount.String(),
		Currency:    currency,
		Description: fmt.Sprintf("order %s", orderNo),
	})
	if err != nil {
		logger.Errorw("checkout_gateway_create_failed",
			"user_id", userID,
			"order_no", orderNo,
			"error", err,
		)
		return nil, mapGatewayError(err)
	}

	expireMinutes := s.resolveExpireMinutes()
	now := time.Now()
	expiresAt := now.Add(time.Duration(expireMinutes) * time.Minute)
	order := &models.Order{
		OrderNo:     orderNo,
		UserID:      userID,
		Status:      constants.OrderStatusCreated,
		Currency:    currency,
		TotalAmount: amount,
		ProviderRef: created.OrderID,
		ApprovalURL: created.ApprovalURL,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orderRepo.Create(order); err != nil {
		return nil, err
	}

	if err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{
		OrderID: order.ID,
	}, time.Duration(expireMinutes)*time.Minute); err != nil {
		// 超时取消是兜底手段，入队失败不阻塞结算
		logger.Errorw("checkout_enqueue_timeout_cancel_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err,
		)
	}

	logger.Infow("checkout_order_created",
		"user_id", userID,
		"order_no", order.OrderNo,
		"amount", amount.String(),
		"currency", currency,
	)

	return &CheckoutResult{
		OrderNo:     order.OrderNo,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		ApprovalURL: order.ApprovalURL,
		ExpiresAt:   order.ExpiresAt,
	}, nil
}

// Finalize 处理支付回跳：按网关 token 捕获收款，确认后清空购物车
// 可安全重试：已收款的订单重试只补清购物车，绝不重复扣款
func (s *CheckoutService) Finalize(ctx context.Context, token string) (*FinalizeResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidInput
	}
	order, err := s.orderRepo.GetByProviderRef(token)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	switch order.Status {
	case constants.OrderStatusCompleted:
		return buildFinalizeResult(order), nil
	case constants.OrderStatusPaid:
		// 上次清空购物车失败，补做收尾
		return s.settlePaidOrder(ctx, order)
	case constants.OrderStatusCanceled, constants.OrderStatusExpired, constants.OrderStatusFailed:
		return nil, ErrOrderNotApprovable
	}

	captured, err := s.gateway.CaptureOrder(ctx, order.ProviderRef)
	if err != nil {
		logger.Errorw("finalize_gateway_capture_failed",
			"order_no", order.OrderNo,
			"error", err,
		)
		return nil, mapGatewayError(err)
	}
	if !strings.EqualFold(captured.Status, "COMPLETED") {
		logger.Warnw("finalize_capture_not_completed",
			"order_no", order.OrderNo,
			"capture_status", captured.Status,
		)
		return nil, ErrOrderNotPaid
	}

	paidAt := time.Now()
	if captured.PaidAt != nil {
		paidAt = *captured.PaidAt
	}
	if err := s.orderRepo.UpdateStatus(order.ID, constants.OrderStatusPaid, map[string]interface{}{
		"capture_ref": captured.CaptureID,
		"paid_at":     paidAt,
	}); err != nil {
		return nil, err
	}
	order.Status = constants.OrderStatusPaid
	order.CaptureRef = captured.CaptureID
	order.PaidAt = &paidAt

	logger.Infow("finalize_order_paid",
		"order_no", order.OrderNo,
		"capture_ref", order.CaptureRef,
		"amount", order.TotalAmount.String(),
	)

	return s.settlePaidOrder(ctx, order)
}

// settlePaidOrder 已收款订单的收尾：清空购物车并标记完成
func (s *CheckoutService) settlePaidOrder(ctx context.Context, order *models.Order) (*FinalizeResult, error) {
	if err := s.cartRepo.ClearByUser(order.UserID); err != nil {
		logger.Errorw("finalize_cart_clear_failed",
			"order_no", order.OrderNo,
			"user_id", order.UserID,
			"error", err,
		)
		return nil, ErrCartClearFailed
	}
	if err := s.orderRepo.UpdateStatus(order.ID, constants.OrderStatusCompleted, nil); err != nil {
		return nil, err
	}
	order.Status = constants.OrderStatusCompleted
	return buildFinalizeResult(order), nil
}

// GetByOrderNo 查询订单状态，仅允许查询本人订单
// 订单停留在已收款状态时（上次清空购物车失败），查询时补做收尾
func (s *CheckoutService) GetByOrderNo(ctx context.Context, userID uint, orderNo string) (*OrderStatusView, error) {
	orderNo = strings.TrimSpace(orderNo)
	if userID == 0 || orderNo == "" {
		return nil, ErrInvalidInput
	}
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}

	if order.Status == constants.OrderStatusPaid {
		if _, err := s.settlePaidOrder(ctx, order); err != nil {
			return nil, err
		}
	}

	view := &OrderStatusView{
		OrderNo:     order.OrderNo,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		PaidAt:      order.PaidAt,
		CreatedAt:   order.CreatedAt,
		ExpiresAt:   order.ExpiresAt,
	}
	if order.Status == constants.OrderStatusCreated {
		view.ApprovalURL = order.ApprovalURL
		if detail, err := s.gateway.GetOrder(ctx, order.ProviderRef); err == nil && detail != nil {
			view.GatewayStatus = detail.Status
		} else if err != nil {
			logger.Warnw("checkout_gateway_query_failed", "order_no", order.OrderNo, "error", err)
		}
	}
	return view, nil
}

// HandleOrderTimeout 超时未支付订单的兜底取消
func (s *CheckoutService) HandleOrderTimeout(orderID uint) error {
	if orderID == 0 {
		return nil
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	if order.Status != constants.OrderStatusCreated {
		return nil
	}
	if order.ExpiresAt != nil && order.ExpiresAt.After(time.Now()) {
		return nil
	}
	if err := s.orderRepo.UpdateStatus(order.ID, constants.OrderStatusExpired, nil); err != nil {
		return err
	}
	logger.Infow("order_timeout_expired", "order_id", order.ID, "order_no", order.OrderNo)
	return nil
}

func (s *CheckoutService) resolveExpireMinutes() int {
	if s.cfg == nil || s.cfg.Order.PaymentExpireMinutes <= 0 {
		return 15
	}
	return s.cfg.Order.PaymentExpireMinutes
}

func buildFinalizeResult(order *models.Order) *FinalizeResult {
	return &FinalizeResult{
		OrderNo:     order.OrderNo,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		CaptureRef:  order.CaptureRef,
		PaidAt:      order.PaidAt,
	}
}

// mapGatewayError 网关错误映射到业务错误
func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, paypal.ErrOrderNotApprovable):
		return ErrOrderNotApprovable
	case errors.Is(err, paypal.ErrOrderRejected):
		return ErrGatewayRejected
	default:
		return ErrGatewayUnavailable
	}
}

func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("SF%s%s", now, randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
