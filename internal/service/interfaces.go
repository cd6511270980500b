package service

import (
	"context"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/internal/wechatpay"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePassword(password string, hashedPassword string) bool
}

type OrderRepository interface {
	Create(ctx context.Context, args repoargs.CreateOrder) (*domain.Order, error)
	FindByTradeRef(ctx context.Context, tradeRef string) (*domain.Order, error)
	TransitionStatus(
		ctx context.Context,
		tradeRef string,
		from domain.OrderStatusType,
		to domain.OrderStatusType,
	) (bool, error)
	CountUserPurchases(ctx context.Context, userID, packageID int64) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]domain.Order, error)
	GetPendingCreatedBefore(ctx context.Context, before time.Time, limit int32) ([]domain.Order, error)
}

type PackageRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Package, error)
	GetAll(ctx context.Context) ([]domain.Package, error)
}

type CreditTransactionRepository interface {
	Create(ctx context.Context, args repoargs.CreditTransactionCreate) (*domain.CreditTransaction, error)
	LockUser(ctx context.Context, userID int64) error
	CreateSpend(ctx context.Context, userID int64, amount int64) (*domain.CreditTransaction, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]domain.CreditTransaction, error)
}

type UserRepository interface {
	Create(ctx context.Context, args repoargs.CreateUser) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Gateway — операции платежного шлюза, которые нужны сервисам.
type Gateway interface {
	CreateNativeOrder(ctx context.Context, params wechatpay.CreateOrderParams) (string, error)
	QueryOrder(ctx context.Context, tradeRef string) (*wechatpay.TradeResult, error)
}

// NotificationVerifier проверяет подлинность уведомления шлюза.
type NotificationVerifier interface {
	Verify(n wechatpay.Notification) error
}
