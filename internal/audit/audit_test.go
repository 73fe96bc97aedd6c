package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/repository"
)

type memoryAuditRepo struct {
	entries []models.PaymentAudit
	err     error
}

func (m *memoryAuditRepo) Create(audit *models.PaymentAudit) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *audit)
	return nil
}

func (m *memoryAuditRepo) List(repository.PaymentAuditListFilter) ([]models.PaymentAudit, int64, error) {
	return m.entries, int64(len(m.entries)), nil
}

func TestRepositoryWriterStampsCreatedAt(t *testing.T) {
	repo := &memoryAuditRepo{}
	writer := NewRepositoryWriter(repo).(*RepositoryWriter)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	writer.now = func() time.Time { return fixed }

	writer.Record(context.Background(), &models.PaymentAudit{EventType: constants.AuditEventCreate, PaymentNo: "PAY1"})
	writer.Record(context.Background(), nil)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if !repo.entries[0].CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected created_at: %v", repo.entries[0].CreatedAt)
	}
}

func TestRepositoryWriterSwallowsErrors(t *testing.T) {
	writer := NewRepositoryWriter(&memoryAuditRepo{err: errors.New("disk full")})
	writer.Record(context.Background(), &models.PaymentAudit{EventType: constants.AuditEventCreate})
}

func TestNewRepositoryWriterNilRepo(t *testing.T) {
	if _, ok := NewRepositoryWriter(nil).(NopWriter); !ok {
		t.Fatalf("expected nop writer for nil repo")
	}
}
