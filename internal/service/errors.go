package service

import "errors"

// 服务层业务错误
var (
	ErrInvalidInput        = errors.New("invalid_input")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrPasswordTooWeak     = errors.New("password_too_weak")
	ErrEmailExists         = errors.New("email_exists")
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrUserDisabled        = errors.New("user_disabled")
	ErrNotFound            = errors.New("not_found")
	ErrCategoryNotFound    = errors.New("category_not_found")
	ErrProductNotFound     = errors.New("product_not_found")
	ErrProductNotAvailable = errors.New("product_not_available")
	ErrCartEmpty           = errors.New("cart_empty")
	ErrCartItemNotFound    = errors.New("cart_item_not_found")
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrOrderNotPaid        = errors.New("order_not_paid")
	ErrOrderNotApprovable  = errors.New("order_not_approvable")
	ErrCartClearFailed     = errors.New("cart_clear_failed")
	ErrCheckoutInFlight    = errors.New("checkout_in_flight")
	ErrGatewayUnavailable  = errors.New("gateway_unavailable")
	ErrGatewayRejected     = errors.New("gateway_rejected")
)
