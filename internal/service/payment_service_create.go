package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carwash-next/internal/cache"
	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/queue"
	"github.com/carwash-next/internal/repository"

	"gorm.io/gorm"
)

// CreatePayment 为已确认的预约单发起支付
// 同一预约单存在待支付记录时直接返回该记录；卡支付会用新提交的卡信息对该记录重新校验。
func (s *PaymentService) CreatePayment(ctx context.Context, input CreatePaymentInput) (*PaymentResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateCreatePaymentInput(&input); err != nil {
		return nil, err
	}
	log := paymentLogger(
		"order_no", input.OrderNo,
		"user_id", input.UserID,
		"payment_method", input.PaymentMethod,
	)

	lock, ok, err := cache.AcquireLock(ctx, "payment:create:"+input.OrderNo, s.settings.LockTTL)
	if err != nil {
		log.Warnw("payment_create_lock_unavailable", "error", err)
	} else if !ok {
		return nil, ErrPaymentLockBusy
	}
	if lock != nil {
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Warnw("payment_create_lock_release_failed", "error", err)
			}
		}()
	}

	now := s.now()
	var intent *models.Payment
	reusedPending := false
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orders := s.orders(tx)
		if orders == nil {
			orders = repository.NewBookingRepository(tx)
		}
		booking, err := orders.GetByOrderNoForUpdate(input.OrderNo)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrOrderNotFound
		}
		if booking.UserID != input.UserID {
			return ErrPermissionDenied
		}
		if booking.Status != constants.BookingStatusConfirmed {
			return ErrOrderStatusInvalid
		}
		if booking.PaymentStatus == constants.BookingPaymentStatusPaid {
			return ErrOrderAlreadyPaid
		}

		paymentRepo := s.paymentRepo.WithTx(tx)
		existing, err := paymentRepo.GetPendingByOrderNo(input.OrderNo)
		if err != nil {
			return err
		}
		if existing != nil {
			intent = existing
			reusedPending = true
			return nil
		}

		intent = &models.Payment{
			PaymentNo:     generatePaymentNo(now),
			OrderNo:       input.OrderNo,
			PendingGuard:  models.PendingGuardFor(input.OrderNo),
			UserID:        input.UserID,
			Amount:        models.NewMoneyFromDecimal(input.Amount),
			PaymentMethod: input.PaymentMethod,
			Channel:       input.Channel,
			Status:        constants.PaymentStatusPending,
			Description:   input.Description,
			ClientIP:      input.ClientIP,
			ExpireAt:      now.Add(s.settings.ExpireAfter),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := paymentRepo.Create(intent); err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentCreateFailed, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentCreateFailed) {
			// 并发请求已写入待支付记录时由唯一约束拦截
			if existing, lookupErr := s.paymentRepo.GetPendingByOrderNo(input.OrderNo); lookupErr == nil && existing != nil {
				log.Infow("payment_create_reuse_pending", "payment_no", existing.PaymentNo, "reason", "pending_guard")
				return buildPaymentResponse(existing), nil
			}
			log.Errorw("payment_create_persist_failed", "error", err)
		}
		return nil, err
	}

	retryCard := reusedPending &&
		intent.PaymentMethod == constants.PaymentMethodCreditCard &&
		input.PaymentMethod == constants.PaymentMethodCreditCard
	if reusedPending && !retryCard {
		log.Infow("payment_create_reuse_pending", "payment_no", intent.PaymentNo)
		return buildPaymentResponse(intent), nil
	}

	log = log.With("payment_no", intent.PaymentNo)
	if retryCard {
		log.Infow("payment_create_card_retry")
	} else {
		s.record(ctx, intent, constants.AuditEventCreate, intent.Status, "创建支付记录", "", input.UserID, moneyPtr(intent.Amount))
		s.enqueueExpire(intent)
	}

	gateway, err := s.registry.Lookup(intent.PaymentMethod)
	if err != nil {
		log.Errorw("payment_gateway_not_registered", "error", err)
		s.monitor.MarkFailure()
		return nil, err
	}

	result, err := s.callCreate(ctx, gateway, intent, input)
	if err != nil {
		s.monitor.MarkFailure()
		s.record(ctx, intent, constants.AuditEventCallGateway, constants.PaymentStatusFailed, "调用支付网关失败", err.Error(), input.UserID, moneyPtr(intent.Amount))
		log.Errorw("payment_gateway_create_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	intent.QRCode = result.QRCode
	intent.PayURL = result.PayURL
	intent.GatewayMsg = truncate(result.Message, 255)
	intent.RawData = result.Raw
	if strings.TrimSpace(result.TransactionID) != "" {
		intent.TransactionID = result.TransactionID
	}
	intent.UpdatedAt = s.now()
	if err := s.paymentRepo.Update(intent); err != nil {
		log.Errorw("payment_create_update_gateway_result_failed", "error", err)
		return nil, ErrPaymentUpdateFailed
	}

	gatewayStatus := result.Status
	if gatewayStatus == "" {
		gatewayStatus = intent.Status
	}
	raw := fmt.Sprintf("payUrl=%s, qrCode=%s", result.PayURL, result.QRCode)
	s.record(ctx, intent, constants.AuditEventCallGateway, gatewayStatus, "调用支付网关", raw, input.UserID, moneyPtr(intent.Amount))

	resp := buildPaymentResponse(intent)
	resp.Status = gatewayStatus
	if gatewayStatus == constants.PaymentStatusFailed {
		// 卡信息校验失败：记录保持 pending，响应带出失败原因
		resp.ErrorMessage = result.Message
		s.monitor.MarkFailure()
		log.Warnw("payment_create_gateway_rejected", "message", result.Message)
		return resp, nil
	}

	s.monitor.MarkCreate()
	log.Infow("payment_create_success", "status", gatewayStatus)
	return resp, nil
}

func (s *PaymentService) callCreate(ctx context.Context, gateway payment.Gateway, intent *models.Payment, input CreatePaymentInput) (*payment.CreateResult, error) {
	callCtx, cancel := s.gatewayContext(ctx)
	defer cancel()
	result, err := gateway.CreatePayment(callCtx, payment.CreateRequest{
		PaymentNo:     intent.PaymentNo,
		OrderNo:       intent.OrderNo,
		Amount:        intent.Amount.Decimal,
		Channel:       intent.Channel,
		SecurePayload: input.SecurePayload,
		Description:   intent.Description,
		ClientIP:      intent.ClientIP,
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("empty gateway result")
	}
	return result, nil
}

func (s *PaymentService) enqueueExpire(intent *models.Payment) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	delay := intent.ExpireAt.Sub(s.now())
	if err := s.queueClient.EnqueuePaymentExpire(queue.PaymentExpirePayload{PaymentNo: intent.PaymentNo}, delay); err != nil {
		paymentLogger("payment_no", intent.PaymentNo).Warnw("payment_expire_enqueue_failed", "error", err)
	}
}

func truncate(raw string, limit int) string {
	runes := []rune(raw)
	if len(runes) <= limit {
		return raw
	}
	return string(runes[:limit])
}
