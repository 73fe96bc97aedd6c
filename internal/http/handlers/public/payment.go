package public

import (
	"strings"

	handlershared "github.com/carwash-next/internal/http/handlers/shared"
	"github.com/carwash-next/internal/http/response"
	"github.com/carwash-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest 创建支付请求
type CreatePaymentRequest struct {
	OrderNo       string          `json:"order_no" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" binding:"required"`
	Channel       string          `json:"channel"`
	SecurePayload string          `json:"secure_payload"`
	Description   string          `json:"description"`
	ClientIP      string          `json:"client_ip"`
}

// SecurityPublicKeyResponse 卡信息加密公钥
type SecurityPublicKeyResponse struct {
	PublicKey string `json:"public_key"`
	Algorithm string `json:"algorithm"`
}

const cardPayloadAlgorithm = "RSA-OAEP-SHA256"

// CreatePayment 为当前用户的预约单发起支付
func (h *Handler) CreatePayment(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = c.ClientIP()
	}

	result, err := h.PaymentService.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		OrderNo:       req.OrderNo,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Channel:       req.Channel,
		SecurePayload: req.SecurePayload,
		Description:   req.Description,
		ClientIP:      clientIP,
		UserID:        uid,
	})
	if err != nil {
		respondPaymentError(c, err, "error.payment_create_failed")
		return
	}
	response.Success(c, result)
}

// GetPaymentStatus 查询支付状态，待支付时向网关对账
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	paymentNo := strings.TrimSpace(c.Param("paymentNo"))
	if err := h.PaymentService.EnsurePaymentOwner(paymentNo, uid); err != nil {
		respondPaymentError(c, err, "error.payment_fetch_failed")
		return
	}

	result, err := h.PaymentService.QueryPaymentStatus(c.Request.Context(), paymentNo)
	if err != nil {
		respondPaymentError(c, err, "error.payment_fetch_failed")
		return
	}
	response.Success(c, result)
}

// GetPaymentByOrder 查询预约单最近一次支付
func (h *Handler) GetPaymentByOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	result, err := h.PaymentService.GetPaymentByOrderNo(c.Param("orderNo"), uid)
	if err != nil {
		respondPaymentError(c, err, "error.payment_fetch_failed")
		return
	}
	response.Success(c, result)
}

// ListMyPayments 当前用户的支付记录
func (h *Handler) ListMyPayments(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.PaginationFromQuery(c)

	payments, total, err := h.PaymentService.ListUserPayments(uid, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

// GetSecurityPublicKey 返回客户端加密卡信息所用的公钥
func (h *Handler) GetSecurityPublicKey(c *gin.Context) {
	publicKey, err := h.PaymentService.SecurityPublicKey()
	if err != nil {
		respondPaymentError(c, err, "error.security_key_unavailable")
		return
	}
	response.Success(c, SecurityPublicKeyResponse{
		PublicKey: publicKey,
		Algorithm: cardPayloadAlgorithm,
	})
}
