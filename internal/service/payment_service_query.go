package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryPaymentStatus 查询支付状态，待支付时向网关对账
// 网关查询失败只计数与记录日志，返回本地状态。
func (s *PaymentService) QueryPaymentStatus(ctx context.Context, paymentNo string) (*PaymentResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	paymentNo = strings.TrimSpace(paymentNo)
	if paymentNo == "" {
		return nil, ErrPaymentNoRequired
	}
	intent, err := s.paymentRepo.GetByPaymentNo(paymentNo)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrPaymentNotFound
	}

	if intent.IsPending() {
		s.record(ctx, intent, constants.AuditEventQueryStatus, intent.Status, "查询第三方支付状态", "", 0, nil)
		if updated, err := s.reconcile(ctx, intent); err != nil {
			s.monitor.MarkFailure()
			paymentLogger("payment_no", intent.PaymentNo).Warnw("payment_query_gateway_failed", "error", err)
		} else if updated != nil {
			intent = updated
		}
	}

	s.monitor.MarkQuery()
	return buildPaymentResponse(intent), nil
}

// reconcile 向网关查单，网关返回 paid 时在行锁内推进状态
func (s *PaymentService) reconcile(ctx context.Context, intent *models.Payment) (*models.Payment, error) {
	gateway, err := s.registry.Lookup(intent.PaymentMethod)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := s.gatewayContext(ctx)
	result, err := gateway.QueryPayment(callCtx, intent.PaymentNo)
	cancel()
	if err != nil {
		return nil, err
	}
	if result == nil || result.Status == intent.Status {
		return nil, nil
	}
	log := paymentLogger("payment_no", intent.PaymentNo, "gateway_status", result.Status)
	if result.Status != constants.PaymentStatusPaid {
		log.Infow("payment_query_status_ignored", "current_status", intent.Status)
		return nil, nil
	}

	var updated *models.Payment
	changed := false
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		locked, err := lockPaymentByNo(tx, intent.PaymentNo)
		if err != nil {
			return err
		}
		if !locked.IsPending() {
			updated = locked
			return nil
		}
		now := s.now()
		locked.Status = constants.PaymentStatusPaid
		locked.PaidAt = &now
		locked.TransactionID = result.TransactionID
		locked.UpdatedAt = now
		if err := s.paymentRepo.WithTx(tx).Update(locked); err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentUpdateFailed, err)
		}
		if orders := s.orders(tx); orders != nil {
			if err := orders.MarkPaid(locked.OrderNo, locked.PaymentMethod, now); err != nil {
				return fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
			}
		}
		updated = locked
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.record(ctx, updated, constants.AuditEventStatusChange, updated.Status, "第三方查询导致状态变化", "transactionId="+result.TransactionID, 0, moneyPtr(updated.Amount))
		log.Infow("payment_query_status_changed", "transaction_id", result.TransactionID)
	}
	return updated, nil
}

func lockPaymentByNo(tx *gorm.DB, paymentNo string) (*models.Payment, error) {
	var locked models.Payment
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_no = ?", paymentNo).
		First(&locked).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &locked, nil
}

// GetPayment 按支付流水号获取记录
func (s *PaymentService) GetPayment(paymentNo string) (*models.Payment, error) {
	intent, err := s.paymentRepo.GetByPaymentNo(strings.TrimSpace(paymentNo))
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrPaymentNotFound
	}
	return intent, nil
}

// EnsurePaymentOwner 校验支付记录归属
func (s *PaymentService) EnsurePaymentOwner(paymentNo string, userID uint) error {
	intent, err := s.GetPayment(paymentNo)
	if err != nil {
		return err
	}
	if intent.UserID != userID {
		return ErrPermissionDenied
	}
	return nil
}

// GetPaymentByOrderNo 获取预约单最近一次支付记录，userID 非 0 时校验归属
func (s *PaymentService) GetPaymentByOrderNo(orderNo string, userID uint) (*PaymentResponse, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrOrderNoRequired
	}
	intent, err := s.paymentRepo.GetLatestByOrderNo(orderNo)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrPaymentNotFound
	}
	if userID != 0 && intent.UserID != userID {
		return nil, ErrPermissionDenied
	}
	return buildPaymentResponse(intent), nil
}

// ListUserPayments 用户支付记录（新到旧）
func (s *PaymentService) ListUserPayments(userID uint, page, pageSize int) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListByUser(userID, page, pageSize)
}

// ListPayments 管理端支付列表
func (s *PaymentService) ListPayments(filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListAdmin(filter)
}

// ListAudits 管理端审计查询
func (s *PaymentService) ListAudits(filter repository.PaymentAuditListFilter) ([]models.PaymentAudit, int64, error) {
	if s.auditRepo == nil {
		return []models.PaymentAudit{}, 0, nil
	}
	return s.auditRepo.List(filter)
}

// ListRefunds 某笔支付的退款记录
func (s *PaymentService) ListRefunds(paymentNo string) ([]models.Refund, error) {
	intent, err := s.GetPayment(paymentNo)
	if err != nil {
		return nil, err
	}
	return s.refundRepo.ListByPaymentID(intent.ID)
}
