package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/storefront-next/internal/cache"
	"github.com/storefront-next/internal/config"
	"github.com/storefront-next/internal/constants"
	"github.com/storefront-next/internal/models"
	"github.com/storefront-next/internal/payment/paypal"
	"github.com/storefront-next/internal/queue"
	"github.com/storefront-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeGateway struct {
	createCalls  int
	captureCalls int
	createFn     func(input paypal.CreateInput) (*paypal.CreateResult, error)
	captureFn    func(providerRef string) (*paypal.CaptureResult, error)
	getFn        func(providerRef string) (*paypal.OrderDetail, error)
}

func (g *fakeGateway) CreateOrder(ctx context.Context, input paypal.CreateInput) (*paypal.CreateResult, error) {
	g.createCalls++
	if g.createFn != nil {
		return g.createFn(input)
	}
	return &paypal.CreateResult{
		OrderID:     "PP-" + input.OrderNo,
		ApprovalURL: "https://gateway/approve/" + input.OrderNo,
		Status:      "CREATED",
	}, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, providerRef string) (*paypal.CaptureResult, error) {
	g.captureCalls++
	if g.captureFn != nil {
		return g.captureFn(providerRef)
	}
	now := time.Now()
	return &paypal.CaptureResult{
		OrderID:   providerRef,
		CaptureID: "CAP-" + providerRef,
		Status:    "COMPLETED",
		PaidAt:    &now,
	}, nil
}

func (g *fakeGateway) GetOrder(ctx context.Context, providerRef string) (*paypal.OrderDetail, error) {
	if g.getFn != nil {
		return g.getFn(providerRef)
	}
	return &paypal.OrderDetail{OrderID: providerRef, Status: "CREATED"}, nil
}

func newCheckoutTestEnv(t *testing.T, name string) (*gorm.DB, *CheckoutService, *fakeGateway) {
	t.Helper()
	dsn := fmt.Sprintf("file:checkout_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Category{}, &models.Product{}, &models.CartItem{}, &models.Order{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{
		Paypal: config.PaypalConfig{Currency: "usd"},
		Order:  config.OrderConfig{PaymentExpireMinutes: 15},
	}
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	gateway := &fakeGateway{}
	svc := NewCheckoutService(
		cfg,
		repository.NewCartRepository(db),
		repository.NewProductRepository(db),
		repository.NewOrderRepository(db),
		queueClient,
		gateway,
	)
	return db, svc, gateway
}

func seedCheckoutProduct(t *testing.T, db *gorm.DB, slug string, price float64, active bool) *models.Product {
	t.Helper()
	now := time.Now()
	product := &models.Product{
		CategoryID:    1,
		Slug:          slug,
		Name:          slug,
		PriceAmount:   models.NewMoneyFromDecimal(decimal.NewFromFloat(price)),
		PriceCurrency: "USD",
		IsActive:      active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if !active {
		if err := db.Model(product).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate product failed: %v", err)
		}
	}
	return product
}

func seedCartItem(t *testing.T, db *gorm.DB, userID, productID uint) {
	t.Helper()
	item := &models.CartItem{UserID: userID, ProductID: productID, CreatedAt: time.Now()}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create cart item failed: %v", err)
	}
}

func countCartItems(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.CartItem{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count cart items failed: %v", err)
	}
	return count
}

func TestCheckoutEmptyCart(t *testing.T) {
	_, svc, gateway := newCheckoutTestEnv(t, "empty_cart")
	_, err := svc.Checkout(context.Background(), 1)
	if !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got: %v", err)
	}
	if gateway.createCalls != 0 {
		t.Fatalf("gateway should not be called for empty cart")
	}
}

func TestCheckoutCreatesOrderFromCatalogPrices(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "create_order")
	earbuds := seedCheckoutProduct(t, db, "earbuds", 49.99, true)
	bottle := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	seedCartItem(t, db, 1, earbuds.ID)
	seedCartItem(t, db, 1, earbuds.ID)
	seedCartItem(t, db, 1, bottle.ID)

	var gotInput paypal.CreateInput
	gateway.createFn = func(input paypal.CreateInput) (*paypal.CreateResult, error) {
		gotInput = input
		return &paypal.CreateResult{OrderID: "PP-1", ApprovalURL: "https://gateway/approve/PP-1", Status: "CREATED"}, nil
	}

	result, err := svc.Checkout(context.Background(), 1)
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if gotInput.Amount != "114.97" {
		t.Fatalf("total must come from catalog prices, got: %s", gotInput.Amount)
	}
	if gotInput.Currency != "USD" {
		t.Fatalf("unexpected currency: %s", gotInput.Currency)
	}
	if result.Status != constants.OrderStatusCreated {
		t.Fatalf("unexpected order status: %s", result.Status)
	}
	if result.ApprovalURL != "https://gateway/approve/PP-1" {
		t.Fatalf("unexpected approval url: %s", result.ApprovalURL)
	}
	if result.ExpiresAt == nil || !result.ExpiresAt.After(time.Now()) {
		t.Fatalf("order should carry a future expiry")
	}

	var order models.Order
	if err := db.Where("provider_ref = ?", "PP-1").First(&order).Error; err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if order.TotalAmount.String() != "114.97" {
		t.Fatalf("unexpected persisted amount: %s", order.TotalAmount.String())
	}
	// 下单不清空购物车，等支付确认后才清
	if got := countCartItems(t, db, 1); got != 3 {
		t.Fatalf("cart should stay intact after checkout, got %d items", got)
	}
}

func TestCheckoutAllProductsUnavailable(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "inactive_product")
	product := seedCheckoutProduct(t, db, "retired", 10, false)
	seedCartItem(t, db, 1, product.ID)
	seedCartItem(t, db, 1, product.ID+100)

	_, err := svc.Checkout(context.Background(), 1)
	if !errors.Is(err, ErrProductNotAvailable) {
		t.Fatalf("expected ErrProductNotAvailable, got: %v", err)
	}
	if gateway.createCalls != 0 {
		t.Fatalf("gateway should not be called when nothing is purchasable")
	}
}

func TestCheckoutSkipsStaleCartItems(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "stale_items")
	bottle := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	retired := seedCheckoutProduct(t, db, "retired", 10, false)
	seedCartItem(t, db, 1, bottle.ID)
	seedCartItem(t, db, 1, retired.ID)
	seedCartItem(t, db, 1, retired.ID+100)

	var gotInput paypal.CreateInput
	gateway.createFn = func(input paypal.CreateInput) (*paypal.CreateResult, error) {
		gotInput = input
		return &paypal.CreateResult{OrderID: "PP-STALE", ApprovalURL: "https://gateway/approve/PP-STALE", Status: "CREATED"}, nil
	}

	result, err := svc.Checkout(context.Background(), 1)
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	// 下架与已删除的商品跳过，总额只含在售商品
	if gotInput.Amount != "14.99" {
		t.Fatalf("stale cart items should be skipped, got amount: %s", gotInput.Amount)
	}
	if result.TotalAmount.String() != "14.99" {
		t.Fatalf("unexpected order total: %s", result.TotalAmount.String())
	}
}

func TestCheckoutGatewayRejectedKeepsCart(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "gateway_rejected")
	product := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	seedCartItem(t, db, 1, product.ID)

	gateway.createFn = func(input paypal.CreateInput) (*paypal.CreateResult, error) {
		return nil, fmt.Errorf("%w: create order status 400", paypal.ErrOrderRejected)
	}

	_, err := svc.Checkout(context.Background(), 1)
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got: %v", err)
	}
	if got := countCartItems(t, db, 1); got != 1 {
		t.Fatalf("cart must survive a gateway failure, got %d items", got)
	}
	var count int64
	if err := db.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("no order should be persisted when the gateway rejects")
	}
}

func TestCheckoutInFlightGuard(t *testing.T) {
	db, svc, _ := newCheckoutTestEnv(t, "in_flight")
	product := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	seedCartItem(t, db, 2, product.ID)

	ctx := context.Background()
	acquired, err := cache.AcquireCheckoutGuard(ctx, 2)
	if err != nil || !acquired {
		t.Fatalf("acquire guard failed: %v %v", acquired, err)
	}
	defer func() {
		_ = cache.ReleaseCheckoutGuard(ctx, 2)
	}()

	_, err = svc.Checkout(ctx, 2)
	if !errors.Is(err, ErrCheckoutInFlight) {
		t.Fatalf("expected ErrCheckoutInFlight, got: %v", err)
	}
}

func TestFinalizeCompletesOrderAndClearsCart(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "finalize")
	product := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	seedCartItem(t, db, 1, product.ID)
	seedCartItem(t, db, 9, product.ID)

	result, err := svc.Checkout(context.Background(), 1)
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	var order models.Order
	if err := db.Where("order_no = ?", result.OrderNo).First(&order).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}

	finalized, err := svc.Finalize(context.Background(), order.ProviderRef)
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if finalized.Status != constants.OrderStatusCompleted {
		t.Fatalf("expected completed status, got: %s", finalized.Status)
	}
	if finalized.CaptureRef == "" || finalized.PaidAt == nil {
		t.Fatalf("capture info missing: %+v", finalized)
	}
	if gateway.captureCalls != 1 {
		t.Fatalf("expected exactly one capture, got %d", gateway.captureCalls)
	}
	if got := countCartItems(t, db, 1); got != 0 {
		t.Fatalf("buyer cart should be cleared, got %d items", got)
	}
	// 其他用户的购物车不受影响
	if got := countCartItems(t, db, 9); got != 1 {
		t.Fatalf("other user cart must stay intact, got %d items", got)
	}
}

func TestFinalizeIdempotentOnCompletedOrder(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "finalize_completed")
	now := time.Now()
	order := &models.Order{
		OrderNo:     "SF-DONE",
		UserID:      1,
		Status:      constants.OrderStatusCompleted,
		Currency:    "USD",
		TotalAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(14.99)),
		ProviderRef: "PP-DONE",
		CaptureRef:  "CAP-DONE",
		PaidAt:      &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	result, err := svc.Finalize(context.Background(), "PP-DONE")
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if result.Status != constants.OrderStatusCompleted || result.CaptureRef != "CAP-DONE" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gateway.captureCalls != 0 {
		t.Fatalf("completed order must never be captured again")
	}
}

func TestFinalizePaidOrderRetriesCartClearOnly(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "finalize_paid")
	now := time.Now()
	order := &models.Order{
		OrderNo:     "SF-PAID",
		UserID:      3,
		Status:      constants.OrderStatusPaid,
		Currency:    "USD",
		TotalAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(14.99)),
		ProviderRef: "PP-PAID",
		CaptureRef:  "CAP-PAID",
		PaidAt:      &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	product := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	seedCartItem(t, db, 3, product.ID)

	result, err := svc.Finalize(context.Background(), "PP-PAID")
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if result.Status != constants.OrderStatusCompleted {
		t.Fatalf("expected completed status, got: %s", result.Status)
	}
	if gateway.captureCalls != 0 {
		t.Fatalf("paid order retry must not capture again")
	}
	if got := countCartItems(t, db, 3); got != 0 {
		t.Fatalf("cart should be cleared on retry, got %d items", got)
	}
}

func TestGetByOrderNoSettlesPaidOrder(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "confirm_paid")
	now := time.Now()
	order := &models.Order{
		OrderNo:     "SF-CONFIRM",
		UserID:      5,
		Status:      constants.OrderStatusPaid,
		Currency:    "USD",
		TotalAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(14.99)),
		ProviderRef: "PP-CONFIRM",
		CaptureRef:  "CAP-CONFIRM",
		PaidAt:      &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	product := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	seedCartItem(t, db, 5, product.ID)
	seedCartItem(t, db, 6, product.ID)

	view, err := svc.GetByOrderNo(context.Background(), 5, "SF-CONFIRM")
	if err != nil {
		t.Fatalf("GetByOrderNo error: %v", err)
	}
	if view.Status != constants.OrderStatusCompleted {
		t.Fatalf("paid order should be settled on confirmation, got: %s", view.Status)
	}
	if gateway.captureCalls != 0 {
		t.Fatalf("confirmation must never capture")
	}
	if got := countCartItems(t, db, 5); got != 0 {
		t.Fatalf("buyer cart should be cleared, got %d items", got)
	}
	if got := countCartItems(t, db, 6); got != 1 {
		t.Fatalf("other user cart must stay intact, got %d items", got)
	}

	// 非本人订单不可见
	if _, err := svc.GetByOrderNo(context.Background(), 6, "SF-CONFIRM"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("other user should not see the order, got: %v", err)
	}
}

func TestFinalizeCaptureNotCompleted(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "finalize_declined")
	product := seedCheckoutProduct(t, db, "bottle", 14.99, true)
	seedCartItem(t, db, 1, product.ID)

	result, err := svc.Checkout(context.Background(), 1)
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	gateway.captureFn = func(providerRef string) (*paypal.CaptureResult, error) {
		return &paypal.CaptureResult{OrderID: providerRef, Status: "DECLINED"}, nil
	}

	var order models.Order
	if err := db.Where("order_no = ?", result.OrderNo).First(&order).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	_, err = svc.Finalize(context.Background(), order.ProviderRef)
	if !errors.Is(err, ErrOrderNotPaid) {
		t.Fatalf("expected ErrOrderNotPaid, got: %v", err)
	}

	if err := db.First(&order, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if order.Status != constants.OrderStatusCreated {
		t.Fatalf("declined capture must not advance status, got: %s", order.Status)
	}
	if got := countCartItems(t, db, 1); got != 1 {
		t.Fatalf("cart must stay intact after a declined capture, got %d items", got)
	}
}

func TestFinalizeUnknownToken(t *testing.T) {
	_, svc, _ := newCheckoutTestEnv(t, "finalize_unknown")
	_, err := svc.Finalize(context.Background(), "PP-MISSING")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestFinalizeExpiredOrder(t *testing.T) {
	db, svc, gateway := newCheckoutTestEnv(t, "finalize_expired")
	now := time.Now()
	order := &models.Order{
		OrderNo:     "SF-EXPIRED",
		UserID:      1,
		Status:      constants.OrderStatusExpired,
		Currency:    "USD",
		TotalAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(14.99)),
		ProviderRef: "PP-EXPIRED",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	_, err := svc.Finalize(context.Background(), "PP-EXPIRED")
	if !errors.Is(err, ErrOrderNotApprovable) {
		t.Fatalf("expected ErrOrderNotApprovable, got: %v", err)
	}
	if gateway.captureCalls != 0 {
		t.Fatalf("expired order must not be captured")
	}
}

func TestHandleOrderTimeout(t *testing.T) {
	db, svc, _ := newCheckoutTestEnv(t, "timeout")
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(10 * time.Minute)

	expired := &models.Order{
		OrderNo: "SF-T1", UserID: 1, Status: constants.OrderStatusCreated,
		Currency: "USD", ProviderRef: "PP-T1", ExpiresAt: &past,
		CreatedAt: now, UpdatedAt: now,
	}
	pending := &models.Order{
		OrderNo: "SF-T2", UserID: 1, Status: constants.OrderStatusCreated,
		Currency: "USD", ProviderRef: "PP-T2", ExpiresAt: &future,
		CreatedAt: now, UpdatedAt: now,
	}
	paid := &models.Order{
		OrderNo: "SF-T3", UserID: 1, Status: constants.OrderStatusPaid,
		Currency: "USD", ProviderRef: "PP-T3", ExpiresAt: &past,
		CreatedAt: now, UpdatedAt: now,
	}
	for _, order := range []*models.Order{expired, pending, paid} {
		if err := db.Create(order).Error; err != nil {
			t.Fatalf("create order failed: %v", err)
		}
	}

	for _, order := range []*models.Order{expired, pending, paid} {
		if err := svc.HandleOrderTimeout(order.ID); err != nil {
			t.Fatalf("HandleOrderTimeout error: %v", err)
		}
	}

	assertStatus := func(id uint, want string) {
		var order models.Order
		if err := db.First(&order, id).Error; err != nil {
			t.Fatalf("load order failed: %v", err)
		}
		if order.Status != want {
			t.Fatalf("order %d: expected status %s, got %s", id, want, order.Status)
		}
	}
	assertStatus(expired.ID, constants.OrderStatusExpired)
	assertStatus(pending.ID, constants.OrderStatusCreated)
	assertStatus(paid.ID, constants.OrderStatusPaid)
}
