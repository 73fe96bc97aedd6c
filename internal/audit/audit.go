package audit

import (
	"context"
	"time"

	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/repository"
)

// Writer 支付审计写入器，写入失败只记录日志，不向调用方返回错误
type Writer interface {
	Record(ctx context.Context, entry *models.PaymentAudit)
}

// NopWriter 不落库的审计写入器
type NopWriter struct{}

// Record 实现 Writer
func (NopWriter) Record(context.Context, *models.PaymentAudit) {}

// RepositoryWriter 基于仓库的审计写入器
type RepositoryWriter struct {
	repo repository.PaymentAuditRepository
	now  func() time.Time
}

// NewRepositoryWriter 创建审计写入器，repo 为空时返回 NopWriter
func NewRepositoryWriter(repo repository.PaymentAuditRepository) Writer {
	if repo == nil {
		return NopWriter{}
	}
	return &RepositoryWriter{repo: repo, now: time.Now}
}

// Record 写入一条审计记录
func (w *RepositoryWriter) Record(ctx context.Context, entry *models.PaymentAudit) {
	if entry == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = w.now()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.SW("event_type", entry.EventType, "payment_no", entry.PaymentNo, "panic", r).Warnw("payment_audit_write_panic")
		}
	}()
	if err := w.repo.Create(entry); err != nil {
		logger.SW(
			"event_type", entry.EventType,
			"payment_no", entry.PaymentNo,
			"order_no", entry.OrderNo,
			"error", err,
		).Warnw("payment_audit_write_failed")
	}
}
