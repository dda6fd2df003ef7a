package public

import (
	"github.com/storefront-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// CreateCheckout 发起结算：按当前购物车创建待支付订单并返回授权链接
func (h *Handler) CreateCheckout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	result, err := h.CheckoutService.Checkout(c.Request.Context(), uid)
	if err != nil {
		respondCheckoutCreateError(c, err)
		return
	}
	response.Success(c, result)
}

// GetCheckout 查询本人订单的结算状态
func (h *Handler) GetCheckout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderNo := c.Query("order_no")
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "error.order_no_required", nil)
		return
	}

	view, err := h.CheckoutService.GetByOrderNo(c.Request.Context(), uid, orderNo)
	if err != nil {
		respondFinalizeError(c, err)
		return
	}
	response.Success(c, view)
}

// FinalizePayment 支付回跳：按网关 token 捕获收款并完成订单
// 支付方批准后浏览器带 token 跳回此接口
func (h *Handler) FinalizePayment(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, response.CodeBadRequest, "error.payment_token_required", nil)
		return
	}

	result, err := h.CheckoutService.Finalize(c.Request.Context(), token)
	if err != nil {
		respondFinalizeError(c, err)
		return
	}
	response.SuccessWithMsg(c, "payment_completed", result)
}
