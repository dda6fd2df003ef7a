package constants

// 订单状态常量
const (
	OrderStatusCreated   = "created"
	OrderStatusPaid      = "paid"
	OrderStatusCompleted = "completed"
	OrderStatusCanceled  = "canceled"
	OrderStatusExpired   = "expired"
	OrderStatusFailed    = "failed"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 支付环境常量
const (
	PaypalEnvSandbox    = "sandbox"
	PaypalEnvProduction = "production"
)

// 币种常量
const (
	SiteCurrencyDefault = "USD"
)

// 队列常量
const (
	QueueDefault           = "default"
	TaskOrderTimeoutCancel = "order:timeout_cancel"
)
