package service

import (
	"context"
	"strings"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"

	"gorm.io/gorm"
)

// CancelExpiredPayments 分批取消全部已过期的待支付记录，返回实际取消数量
// limit 为单批大小，<= 0 时使用配置值；某一批没有任何进展时提前结束，失败的记录留给下一轮。
func (s *PaymentService) CancelExpiredPayments(ctx context.Context, limit int) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = s.settings.SweepBatchSize
	}
	cancelled := 0
	candidates := 0
	for {
		expired, err := s.paymentRepo.ListExpiredPending(s.now(), limit)
		if err != nil {
			return cancelled, err
		}
		candidates += len(expired)
		batchCancelled := 0
		for i := range expired {
			if err := ctx.Err(); err != nil {
				return cancelled, err
			}
			ok, err := s.cancelExpired(ctx, &expired[i])
			if err != nil {
				paymentLogger("payment_no", expired[i].PaymentNo).Errorw("payment_expire_cancel_failed", "error", err)
				continue
			}
			if ok {
				batchCancelled++
			}
		}
		cancelled += batchCancelled
		if len(expired) < limit || batchCancelled == 0 {
			break
		}
	}
	if candidates > 0 {
		paymentLogger().Infow("payment_expire_sweep_done", "candidates", candidates, "cancelled", cancelled)
	}
	return cancelled, nil
}

// ExpirePayment 取消单笔已过期的待支付记录；未过期或已结束的记录忽略
func (s *PaymentService) ExpirePayment(ctx context.Context, paymentNo string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	intent, err := s.paymentRepo.GetByPaymentNo(strings.TrimSpace(paymentNo))
	if err != nil {
		return false, err
	}
	if intent == nil || !intent.IsPending() {
		return false, nil
	}
	if !intent.ExpireAt.Before(s.now()) {
		return false, nil
	}
	return s.cancelExpired(ctx, intent)
}

// cancelExpired 以 status='pending' 为条件更新，已被回调推进的记录不受影响
func (s *PaymentService) cancelExpired(ctx context.Context, intent *models.Payment) (bool, error) {
	now := s.now()
	cancelled := false
	orderCancelled := false
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		ok, err := s.paymentRepo.WithTx(tx).MarkCancelledIfPending(intent.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cancelled = true
		if orders := s.orders(tx); orders != nil {
			orderCancelled, err = orders.CancelIfUnpaid(intent.OrderNo, constants.BookingCancelReasonPaymentTimeout, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || !cancelled {
		return false, err
	}
	intent.Status = constants.PaymentStatusCancelled
	intent.PendingGuard = nil
	intent.UpdatedAt = now
	s.record(ctx, intent, constants.AuditEventCancelExpired, intent.Status, "支付超时自动取消", "", 0, moneyPtr(intent.Amount))
	paymentLogger("payment_no", intent.PaymentNo, "order_no", intent.OrderNo).
		Infow("payment_expire_cancelled", "order_cancelled", orderCancelled)
	return true, nil
}
