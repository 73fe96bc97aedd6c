package worker

import (
	"context"
	"errors"
	"time"

	"github.com/carwash-next/internal/logger"
)

const defaultSweepInterval = 5 * time.Minute

// Sweeper 进程内定时清扫（队列未启用时使用）
type Sweeper struct {
	name      string
	payments  PaymentExpirer
	interval  time.Duration
	batchSize int
	stopped   chan struct{}
}

// NewSweeper 创建定时清扫服务
func NewSweeper(payments PaymentExpirer, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		name:      "payment-sweeper",
		payments:  payments,
		interval:  interval,
		batchSize: batchSize,
		stopped:   make(chan struct{}),
	}
}

// Name 服务名称
func (s *Sweeper) Name() string {
	if s == nil || s.name == "" {
		return "payment-sweeper"
	}
	return s.name
}

// Start 立即清扫一次，之后按间隔执行直到 ctx 结束
func (s *Sweeper) Start(ctx context.Context) error {
	if s == nil || s.payments == nil {
		return errors.New("sweeper not initialized")
	}
	defer close(s.stopped)
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// Stop 等待当前一轮清扫结束
func (s *Sweeper) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	cancelled, err := s.payments.CancelExpiredPayments(ctx, s.batchSize)
	if err != nil {
		logger.Warnw("worker_payment_sweep_failed", "error", err)
		return
	}
	if cancelled > 0 {
		logger.Infow("worker_payment_sweep_cancelled", "count", cancelled)
	}
}
