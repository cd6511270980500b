package reconcile

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
)

// OrderProvider отдает незавершенные заказы, требующие сверки со шлюзом.
type OrderProvider interface {
	PendingForReconciliation(ctx context.Context, olderThan time.Duration, limit int32) ([]domain.Order, error)
}

// Syncer приводит локальный статус заказа к состоянию сделки на шлюзе.
type Syncer interface {
	SyncOrderStatus(ctx context.Context, order domain.Order) error
}
