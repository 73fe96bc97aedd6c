package worker

import (
	"context"
	"strings"

	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/provider"
	"github.com/carwash-next/internal/queue"

	"github.com/hibiken/asynq"
)

// PaymentExpirer 支付过期处理能力
type PaymentExpirer interface {
	ExpirePayment(ctx context.Context, paymentNo string) (bool, error)
	CancelExpiredPayments(ctx context.Context, limit int) (int, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	Payments PaymentExpirer
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil || c.PaymentService == nil {
		return &Consumer{}
	}
	return &Consumer{Payments: c.PaymentService}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentExpire, c.handlePaymentExpire)
	mux.HandleFunc(queue.TaskPaymentSweep, c.handlePaymentSweep)
}

func (c *Consumer) handlePaymentExpire(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Payments == nil {
		logger.Debugw("worker_payment_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePaymentExpirePayload(task)
	if err != nil {
		logger.Warnw("worker_payment_expire_unmarshal_failed", "error", err)
		return err
	}
	paymentNo := strings.TrimSpace(payload.PaymentNo)
	if paymentNo == "" {
		logger.Debugw("worker_payment_expire_skip_invalid_payload")
		return nil
	}
	cancelled, err := c.Payments.ExpirePayment(ctx, paymentNo)
	if err != nil {
		logger.Warnw("worker_payment_expire_failed", "payment_no", paymentNo, "error", err)
		return err
	}
	logger.Debugw("worker_payment_expire_done", "payment_no", paymentNo, "cancelled", cancelled)
	return nil
}

func (c *Consumer) handlePaymentSweep(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Payments == nil {
		logger.Debugw("worker_payment_sweep_skip_nil", "consumer_nil", c == nil)
		return nil
	}
	payload, err := queue.ParsePaymentSweepPayload(task)
	if err != nil {
		logger.Warnw("worker_payment_sweep_unmarshal_failed", "error", err)
		return err
	}
	if _, err := c.Payments.CancelExpiredPayments(ctx, payload.BatchSize); err != nil {
		logger.Warnw("worker_payment_sweep_failed", "error", err)
		return err
	}
	return nil
}
