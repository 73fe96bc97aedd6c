package admin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	handlershared "github.com/carwash-next/internal/http/handlers/shared"
	"github.com/carwash-next/internal/http/response"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/repository"
	"github.com/carwash-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RefundRequest 退款请求
type RefundRequest struct {
	PaymentNo string          `json:"payment_no" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason" binding:"required"`
}

// CancelExpiredRequest 手动触发过期清理
type CancelExpiredRequest struct {
	Limit int `json:"limit"`
}

// PaymentMetricsResponse 支付计数与已注册支付方式
type PaymentMetricsResponse struct {
	Counters interface{} `json:"counters"`
	Methods  []string    `json:"methods"`
}

// RefundPayment 发起退款
func (h *Handler) RefundPayment(c *gin.Context) {
	operatorID, ok := getOperatorID(c)
	if !ok {
		return
	}
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	result, err := h.PaymentService.ProcessRefund(c.Request.Context(), service.RefundInput{
		PaymentNo:  req.PaymentNo,
		Amount:     req.Amount,
		Reason:     req.Reason,
		OperatorID: operatorID,
	})
	if err != nil {
		respondPaymentError(c, err, "error.refund_failed")
		return
	}
	requestLog(c).Infow("admin_payment_refund_done",
		"operator_id", operatorID,
		"payment_no", result.PaymentNo,
		"refund_no", result.RefundNo,
		"status", result.Status,
	)
	response.Success(c, result)
}

// ListPayments 支付记录列表
func (h *Handler) ListPayments(c *gin.Context) {
	page, pageSize := handlershared.PaginationFromQuery(c)
	filter, err := buildPaymentFilter(c, page, pageSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	payments, total, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

// ListPaymentRefunds 某笔支付的退款记录
func (h *Handler) ListPaymentRefunds(c *gin.Context) {
	refunds, err := h.PaymentService.ListRefunds(c.Param("paymentNo"))
	if err != nil {
		respondPaymentError(c, err, "error.payment_fetch_failed")
		return
	}
	if refunds == nil {
		refunds = []models.Refund{}
	}
	response.Success(c, refunds)
}

// ListPaymentAudits 支付审计查询
func (h *Handler) ListPaymentAudits(c *gin.Context) {
	page, pageSize := handlershared.PaginationFromQuery(c)
	audits, total, err := h.PaymentService.ListAudits(repository.PaymentAuditListFilter{
		Page:      page,
		PageSize:  pageSize,
		PaymentNo: strings.TrimSpace(c.Query("payment_no")),
		OrderNo:   strings.TrimSpace(c.Query("order_no")),
		EventType: strings.ToUpper(strings.TrimSpace(c.Query("event_type"))),
		Status:    strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.payment_audit_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, audits, response.BuildPagination(page, pageSize, total))
}

// CancelExpiredPayments 立即执行一次过期清理
func (h *Handler) CancelExpiredPayments(c *gin.Context) {
	var req CancelExpiredRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	cancelled, err := h.PaymentService.CancelExpiredPayments(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, response.CodeInternal, "error.payment_cancel_failed", err)
		return
	}
	response.Success(c, gin.H{"cancelled": cancelled})
}

// PaymentMetrics 进程内支付计数
func (h *Handler) PaymentMetrics(c *gin.Context) {
	methods := h.PaymentService.Methods()
	names := make([]string, 0, len(methods))
	for _, method := range methods {
		names = append(names, method.String())
	}
	response.Success(c, PaymentMetricsResponse{
		Counters: h.PaymentService.MonitorSnapshot(),
		Methods:  names,
	})
}

func buildPaymentFilter(c *gin.Context, page, pageSize int) (repository.PaymentListFilter, error) {
	filter := repository.PaymentListFilter{
		Page:          page,
		PageSize:      pageSize,
		OrderNo:       strings.TrimSpace(c.Query("order_no")),
		PaymentNo:     strings.TrimSpace(c.Query("payment_no")),
		PaymentMethod: strings.TrimSpace(c.Query("payment_method")),
		Status:        strings.TrimSpace(c.Query("status")),
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid user_id: %w", err)
		}
		filter.UserID = uint(userID)
	}
	var err error
	if filter.CreatedFrom, err = parseTimeQuery(c.Query("created_from")); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTimeQuery(c.Query("created_to")); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseTimeQuery 支持 RFC3339 与 2006-01-02 两种格式
func parseTimeQuery(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", raw, err)
	}
	return &t, nil
}
