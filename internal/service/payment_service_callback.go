package service

import (
	"context"
	"errors"
	"strings"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/payment"

	"gorm.io/gorm"
)

// HandleCallback 处理网关异步通知，返回是否应向网关应答成功
// 验签失败、支付记录不存在或支付方式不符时返回 false 且不做任何修改；重复通知幂等。
func (s *PaymentService) HandleCallback(ctx context.Context, method string, params map[string]string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	normalized, _ := payment.ParseMethod(method)
	log := paymentLogger("payment_method", normalized.String())
	log.Infow("payment_callback_received", "params_count", len(params))

	if !s.verifier.Verify(method, params) {
		log.Warnw("payment_callback_signature_invalid", "raw_method", method)
		return false
	}

	paymentNo := strings.TrimSpace(params[constants.CallbackFieldOutTradeNo])
	transactionID := strings.TrimSpace(params[constants.CallbackFieldTransactionID])
	if transactionID == "" && normalized == payment.MethodAlipay {
		transactionID = strings.TrimSpace(params[constants.CallbackFieldTradeNo])
	}
	if paymentNo == "" {
		log.Warnw("payment_callback_missing_payment_no")
		return false
	}
	log = log.With("payment_no", paymentNo, "transaction_id", transactionID)
	raw := encodeCallbackParams(params)

	var intent *models.Payment
	alreadyPaid := false
	updated := false
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		locked, err := lockPaymentByNo(tx, paymentNo)
		if err != nil {
			return err
		}
		intent = locked
		if locked.PaymentMethod != normalized.String() {
			return ErrPaymentMethodMismatch
		}
		// 通知次数只做留档计数，不影响支付状态
		if err := tx.Model(&models.Payment{}).Where("id = ?", locked.ID).
			UpdateColumn("notify_count", gorm.Expr("notify_count + ?", 1)).Error; err != nil {
			return err
		}
		locked.NotifyCount++

		switch locked.Status {
		case constants.PaymentStatusPaid, constants.PaymentStatusRefunded:
			alreadyPaid = true
			return nil
		case constants.PaymentStatusPending:
		default:
			log.Warnw("payment_callback_status_conflict", "status", locked.Status)
			return nil
		}

		now := s.now()
		locked.Status = constants.PaymentStatusPaid
		locked.TransactionID = transactionID
		locked.PaidAt = &now
		locked.RawData = raw
		locked.UpdatedAt = now
		if err := s.paymentRepo.WithTx(tx).Update(locked); err != nil {
			return err
		}
		if orders := s.orders(tx); orders != nil {
			if err := orders.MarkPaid(locked.OrderNo, locked.PaymentMethod, now); err != nil {
				return err
			}
		}
		updated = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warnw("payment_callback_payment_not_found")
			return false
		}
		if errors.Is(err, ErrPaymentMethodMismatch) {
			log.Warnw("payment_callback_method_mismatch", "payment_method_stored", intent.PaymentMethod)
			return false
		}
		log.Errorw("payment_callback_update_failed", "error", err)
		return false
	}

	s.record(ctx, intent, constants.AuditEventCallbackVerified, constants.AuditStatusVerified, "回调验签通过", raw, 0, nil)
	if alreadyPaid {
		log.Infow("payment_callback_already_paid", "notify_count", intent.NotifyCount)
		return true
	}
	if updated {
		s.record(ctx, intent, constants.AuditEventCallbackUpdate, intent.Status, "回调更新支付状态为paid", raw, 0, moneyPtr(intent.Amount))
		log.Infow("payment_callback_processed")
	}
	return true
}
