package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/pkg/uow"
)

type OrderService struct {
	uow         uow.UOW
	orderRepo   OrderRepository
	packageRepo PackageRepository
}

func NewOrderService(u uow.UOW) (*OrderService, error) {
	orderRepo, orderRepoErr := uow.GetRepositoryAs[OrderRepository](u, uow.RepositoryName(repoargs.OrderRepoName))
	if orderRepoErr != nil {
		return nil, orderRepoErr
	}
	packageRepo, packageRepoErr := uow.GetRepositoryAs[PackageRepository](u, uow.RepositoryName(repoargs.PackageRepoName))
	if packageRepoErr != nil {
		return nil, packageRepoErr
	}
	return &OrderService{
		uow:         u,
		orderRepo:   orderRepo,
		packageRepo: packageRepo,
	}, nil
}

// Create создает заказ на покупку пакета packageID юзером userID.
//
// Алгоритм работы:
//  1. Загружает пакет. Несуществующий пакет — domain.ErrPackageNotFound.
//  2. Если у пакета есть лимит покупок на юзера, считает его заказы
//     (PENDING и PAID) и при достижении лимита возвращает domain.ErrLimitExceeded.
//  3. Создает заказ в статусе PENDING с новым trade_ref и суммой из пакета.
//
// Проверка лимита и вставка выполняются в одной транзакции.
func (o *OrderService) Create(ctx context.Context, userID, packageID int64) (*domain.Order, *domain.Package, error) {
	var order *domain.Order
	var pkg *domain.Package

	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orderRepo, orderRepoErr := uow.GetAs[OrderRepository](tx, uow.RepositoryName(repoargs.OrderRepoName))
		if orderRepoErr != nil {
			return orderRepoErr //nolint:wrapcheck
		}
		packageRepo, packageRepoErr := uow.GetAs[PackageRepository](tx, uow.RepositoryName(repoargs.PackageRepoName))
		if packageRepoErr != nil {
			return packageRepoErr //nolint:wrapcheck
		}

		var pkgErr error
		pkg, pkgErr = packageRepo.FindByID(c, packageID)
		if pkgErr != nil {
			if errors.Is(pkgErr, domain.ErrRecordNotFound) {
				return domain.ErrPackageNotFound
			}
			return pkgErr //nolint:wrapcheck
		}

		if pkg.LimitPerUser > 0 {
			count, countErr := orderRepo.CountUserPurchases(c, userID, packageID)
			if countErr != nil {
				return countErr //nolint:wrapcheck
			}
			if count >= int64(pkg.LimitPerUser) {
				return domain.ErrLimitExceeded
			}
		}

		var orderErr error
		order, orderErr = orderRepo.Create(c, repoargs.CreateOrder{
			UserID:    userID,
			PackageID: packageID,
			TradeRef:  newTradeRef(),
			Amount:    pkg.Price,
		})
		return orderErr //nolint:wrapcheck
	})

	if txErr != nil {
		return nil, nil, fmt.Errorf("creating order: %w", txErr)
	}
	return order, pkg, nil
}

// MarkPaidResult — результат применения оплаты к заказу.
type MarkPaidResult struct {
	Order *domain.Order
	// AlreadyApplied выставляется когда заказ был оплачен раньше и начисление
	// уже существует. Повторное применение ничего не меняет.
	AlreadyApplied bool
}

// MarkPaid переводит заказ в статус PAID и начисляет кредиты пакета. Ровно один
// вызов из всех конкурирующих выполняет начисление, остальные получают
// AlreadyApplied. Перевод статуса и начисление выполняются в одной транзакции.
//
// paidAmount берется из amount.total уведомления шлюза: это подтвержденная
// сумма заказа, payer_total при купонах может быть меньше. Если paidAmount
// известен (> 0) и не совпадает с суммой заказа, возвращается
// *domain.AmountMismatchError и заказ не меняется.
func (o *OrderService) MarkPaid(ctx context.Context, tradeRef string, paidAmount int64) (*MarkPaidResult, error) {
	var result MarkPaidResult

	txErr := o.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orderRepo, orderRepoErr := uow.GetAs[OrderRepository](tx, uow.RepositoryName(repoargs.OrderRepoName))
		if orderRepoErr != nil {
			return orderRepoErr //nolint:wrapcheck
		}
		packageRepo, packageRepoErr := uow.GetAs[PackageRepository](tx, uow.RepositoryName(repoargs.PackageRepoName))
		if packageRepoErr != nil {
			return packageRepoErr //nolint:wrapcheck
		}
		creditRepo, creditRepoErr := uow.GetAs[CreditTransactionRepository](
			tx, uow.RepositoryName(repoargs.CreditTransactionRepoName))
		if creditRepoErr != nil {
			return creditRepoErr //nolint:wrapcheck
		}

		order, findErr := orderRepo.FindByTradeRef(c, tradeRef)
		if findErr != nil {
			if errors.Is(findErr, domain.ErrRecordNotFound) {
				// Заказы по уведомлениям не создаются. Неизвестный trade_ref
				// означает чужое или испорченное уведомление.
				return domain.ErrUnknownOrder
			}
			return findErr //nolint:wrapcheck
		}

		if order.Status == domain.OrderStatusPaid {
			result = MarkPaidResult{Order: order, AlreadyApplied: true}
			return nil
		}

		if paidAmount > 0 && paidAmount != order.Amount {
			return &domain.AmountMismatchError{TradeRef: tradeRef, Want: order.Amount, Got: paidAmount}
		}

		ok, trErr := orderRepo.TransitionStatus(c, tradeRef, domain.OrderStatusPending, domain.OrderStatusPaid)
		if trErr != nil {
			return trErr //nolint:wrapcheck
		}
		if !ok {
			// Конкурирующий вызов успел раньше. Перечитываем и смотрим куда
			// заказ ушел на самом деле.
			current, reErr := orderRepo.FindByTradeRef(c, tradeRef)
			if reErr != nil {
				return reErr //nolint:wrapcheck
			}
			if current.Status == domain.OrderStatusPaid {
				result = MarkPaidResult{Order: current, AlreadyApplied: true}
				return nil
			}
			return domain.ErrOrderNotPayable
		}

		pkg, pkgErr := packageRepo.FindByID(c, order.PackageID)
		if pkgErr != nil {
			return pkgErr //nolint:wrapcheck
		}

		if _, grantErr := creditRepo.Create(c, repoargs.CreditTransactionCreate{
			UserID:    order.UserID,
			OrderID:   &order.ID,
			Amount:    pkg.Credits,
			Direction: domain.DirectionGrant,
		}); grantErr != nil {
			return grantErr //nolint:wrapcheck
		}

		paid := *order
		paid.Status = domain.OrderStatusPaid
		result = MarkPaidResult{Order: &paid}
		return nil
	})

	if txErr != nil {
		return nil, fmt.Errorf("marking order `%s` paid: %w", tradeRef, txErr)
	}
	return &result, nil
}

// MarkClosed переводит незавершенный заказ в терминальный статус to (FAILED или
// EXPIRED). Возвращает false, если заказ уже не PENDING. Начислений не делает.
func (o *OrderService) MarkClosed(ctx context.Context, tradeRef string, to domain.OrderStatusType) (bool, error) {
	if to != domain.OrderStatusFailed && to != domain.OrderStatusExpired {
		return false, fmt.Errorf("closing order `%s`: status %s is not a close status", tradeRef, to)
	}
	ok, err := o.orderRepo.TransitionStatus(ctx, tradeRef, domain.OrderStatusPending, to)
	if err != nil {
		return false, fmt.Errorf("closing order `%s`: %w", tradeRef, err)
	}
	return ok, nil
}

// StatusForUser возвращает заказ юзера по trade_ref. Чужие и несуществующие
// заказы неразличимы, в обоих случаях возвращается domain.ErrUnknownOrder.
func (o *OrderService) StatusForUser(ctx context.Context, userID int64, tradeRef string) (*domain.Order, error) {
	order, err := o.orderRepo.FindByTradeRef(ctx, tradeRef)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrUnknownOrder
		}
		return nil, fmt.Errorf("getting order status: %w", err)
	}
	if order.UserID != userID {
		return nil, domain.ErrUnknownOrder
	}
	return order, nil
}

// GetByUserID возвращает заказы юзера от новых к старым.
func (o *OrderService) GetByUserID(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := o.orderRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return orders, nil
}

// Packages возвращает справочник пакетов.
func (o *OrderService) Packages(ctx context.Context) ([]domain.Package, error) {
	packages, err := o.packageRepo.GetAll(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return packages, nil
}

// PendingForReconciliation возвращает незавершенные заказы старше olderThan
// для сверки со шлюзом.
func (o *OrderService) PendingForReconciliation(
	ctx context.Context,
	olderThan time.Duration,
	limit int32,
) ([]domain.Order, error) {
	orders, err := o.orderRepo.GetPendingCreatedBefore(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return orders, nil
}

// newTradeRef генерирует внешний номер заказа для шлюза. Формат укладывается в
// ограничения out_trade_no: до 32 символов, только цифры и латиница.
func newTradeRef() string {
	id := uuid.New()
	return fmt.Sprintf("GP%d%X", time.Now().Unix(), id[:8])
}
