package service

import (
	"context"
	"fmt"
	"time"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/payment"

	"gorm.io/gorm"
)

// RefundResponse 退款结果
type RefundResponse struct {
	PaymentNo       string       `json:"payment_no"`
	RefundNo        string       `json:"refund_no"`
	GatewayRefundNo string       `json:"gateway_refund_no,omitempty"`
	Amount          models.Money `json:"amount"`
	Status          string       `json:"status"`
	PaymentStatus   string       `json:"payment_status"`
	Message         string       `json:"message,omitempty"`
	RefundedAt      *time.Time   `json:"refunded_at,omitempty"`
}

// ProcessRefund 对已支付记录发起部分或全额退款
// 在支付行锁内完成额度校验与网关调用，累计成功退款不超过支付金额。
func (s *PaymentService) ProcessRefund(ctx context.Context, input RefundInput) (*RefundResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateRefundInput(&input); err != nil {
		return nil, err
	}
	log := paymentLogger(
		"payment_no", input.PaymentNo,
		"operator_id", input.OperatorID,
		"amount", input.Amount.StringFixed(2),
	)

	var intent *models.Payment
	var refund *models.Refund
	fullyRefunded := false
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		locked, err := lockPaymentByNo(tx, input.PaymentNo)
		if err != nil {
			return err
		}
		if locked.Status != constants.PaymentStatusPaid {
			return ErrPaymentStatusInvalid
		}

		refundRepo := s.refundRepo.WithTx(tx)
		refunded, err := refundRepo.SumSuccessAmount(locked.ID)
		if err != nil {
			return err
		}
		remaining := locked.Amount.Decimal.Sub(refunded)
		if input.Amount.GreaterThan(remaining) {
			return ErrRefundAmountInvalid
		}

		now := s.now()
		refund = &models.Refund{
			PaymentID:  locked.ID,
			RefundNo:   generateRefundNo(now),
			Amount:     models.NewMoneyFromDecimal(input.Amount),
			Reason:     input.Reason,
			Status:     constants.RefundStatusPending,
			OperatorID: input.OperatorID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := refundRepo.Create(refund); err != nil {
			return fmt.Errorf("%w: %v", ErrRefundCreateFailed, err)
		}
		intent = locked

		result := s.callRefund(ctx, locked, refund)
		finishedAt := s.now()
		refund.GatewayRefNo = result.RefundNo
		refund.Message = truncate(result.Message, 255)
		refund.UpdatedAt = finishedAt
		if !result.Success {
			refund.Status = constants.RefundStatusFailed
			return refundRepo.Update(refund)
		}

		refund.Status = constants.RefundStatusSuccess
		refund.RefundedAt = &finishedAt
		if err := refundRepo.Update(refund); err != nil {
			return err
		}
		if refunded.Add(refund.Amount.Decimal).Cmp(locked.Amount.Decimal) >= 0 {
			locked.Status = constants.PaymentStatusRefunded
			locked.UpdatedAt = finishedAt
			if err := s.paymentRepo.WithTx(tx).Update(locked); err != nil {
				return fmt.Errorf("%w: %v", ErrPaymentUpdateFailed, err)
			}
			if orders := s.orders(tx); orders != nil {
				if err := orders.MarkRefunded(locked.OrderNo); err != nil {
					return fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
				}
			}
			fullyRefunded = true
		}
		return nil
	})
	if err != nil {
		log.Warnw("payment_refund_rejected", "error", err)
		return nil, err
	}

	s.record(ctx, intent, constants.AuditEventRefundRequest, constants.RefundStatusPending, "发起退款请求", "refundNo="+refund.RefundNo, input.OperatorID, moneyPtr(refund.Amount))
	s.monitor.MarkRefund()
	if refund.Status == constants.RefundStatusSuccess {
		s.record(ctx, intent, constants.AuditEventRefundSuccess, refund.Status, "退款成功", "refundNo="+refund.RefundNo, input.OperatorID, moneyPtr(refund.Amount))
		log.Infow("payment_refund_success", "refund_no", refund.RefundNo, "fully_refunded", fullyRefunded)
	} else {
		s.monitor.MarkFailure()
		s.record(ctx, intent, constants.AuditEventRefundFailed, refund.Status, "退款失败", refund.Message, input.OperatorID, moneyPtr(refund.Amount))
		log.Warnw("payment_refund_failed", "refund_no", refund.RefundNo, "message", refund.Message)
	}

	return &RefundResponse{
		PaymentNo:       intent.PaymentNo,
		RefundNo:        refund.RefundNo,
		GatewayRefundNo: refund.GatewayRefNo,
		Amount:          refund.Amount,
		Status:          refund.Status,
		PaymentStatus:   intent.Status,
		Message:         refund.Message,
		RefundedAt:      refund.RefundedAt,
	}, nil
}

// callRefund 网关异常统一视为退款失败
func (s *PaymentService) callRefund(ctx context.Context, intent *models.Payment, refund *models.Refund) *payment.RefundResult {
	gateway, err := s.registry.Lookup(intent.PaymentMethod)
	if err != nil {
		return &payment.RefundResult{Success: false, Status: constants.RefundStatusFailed, Message: err.Error()}
	}
	callCtx, cancel := s.gatewayContext(ctx)
	defer cancel()
	result, err := gateway.Refund(callCtx, payment.RefundRequest{
		PaymentNo: intent.PaymentNo,
		RefundNo:  refund.RefundNo,
		Amount:    refund.Amount.Decimal,
		Reason:    refund.Reason,
	})
	if err != nil {
		return &payment.RefundResult{Success: false, Status: constants.RefundStatusFailed, Message: err.Error()}
	}
	if result == nil {
		return &payment.RefundResult{Success: false, Status: constants.RefundStatusFailed, Message: "empty gateway result"}
	}
	return result
}
