package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/service"
	"github.com/fsdevblog/groph-pay/internal/wechatpay"
)

// UserServicer интерфейс исключительно для моков.
type UserServicer interface {
	Register(ctx context.Context, args service.RegisterUserArgs) (*domain.User, string, error)
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
}

type OrderServicer interface {
	StatusForUser(ctx context.Context, userID int64, tradeRef string) (*domain.Order, error)
	GetByUserID(ctx context.Context, userID int64) ([]domain.Order, error)
	Packages(ctx context.Context) ([]domain.Package, error)
}

type PaymentServicer interface {
	InitiatePayment(ctx context.Context, userID, packageID int64) (*service.PaymentIntent, error)
	HandleNotification(ctx context.Context, n wechatpay.Notification) error
	MockPay(ctx context.Context, userID int64, tradeRef string) (*service.MarkPaidResult, error)
}

type CreditServicer interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Spend(ctx context.Context, userID int64, amount int64) (*domain.CreditTransaction, error)
	History(ctx context.Context, userID int64) ([]domain.CreditTransaction, error)
}
