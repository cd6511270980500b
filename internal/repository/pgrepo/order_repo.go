package pgrepo

import (
	"context"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/pkg/uow"
)

const (
	ordersInsertQuery = `
		INSERT INTO orders (user_id, package_id, trade_ref, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at, user_id, package_id, trade_ref, amount, status`

	ordersFindByTradeRefQuery = `
		SELECT id, created_at, updated_at, user_id, package_id, trade_ref, amount, status
		FROM orders
		WHERE trade_ref = $1`

	ordersTransitionStatusQuery = `
		UPDATE orders
		SET status = $3, updated_at = now()
		WHERE trade_ref = $1 AND status = $2`

	ordersCountPurchasesQuery = `
		SELECT count(*) FROM orders
		WHERE user_id = $1 AND package_id = $2 AND status IN ('PENDING', 'PAID')`

	ordersGetByUserIDQuery = `
		SELECT id, created_at, updated_at, user_id, package_id, trade_ref, amount, status
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`

	ordersGetPendingBeforeQuery = `
		SELECT id, created_at, updated_at, user_id, package_id, trade_ref, amount, status
		FROM orders
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
)

type OrderRepository struct {
	conn uow.DBTX
}

func NewOrderRepository(conn uow.DBTX) *OrderRepository {
	return &OrderRepository{conn: conn}
}

func (o *OrderRepository) Create(ctx context.Context, args repoargs.CreateOrder) (*domain.Order, error) {
	row := o.conn.QueryRow(ctx, ordersInsertQuery,
		args.UserID, args.PackageID, args.TradeRef, args.Amount, domain.OrderStatusPending)

	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "creating order with trade_ref `%s`", args.TradeRef)
	}
	return order, nil
}

func (o *OrderRepository) FindByTradeRef(ctx context.Context, tradeRef string) (*domain.Order, error) {
	row := o.conn.QueryRow(ctx, ordersFindByTradeRefQuery, tradeRef)

	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "finding order by trade_ref `%s`", tradeRef)
	}
	return order, nil
}

// TransitionStatus атомарно переводит заказ из статуса from в статус to.
// Возвращает false, если заказ уже не в статусе from (перевод не выполнен).
func (o *OrderRepository) TransitionStatus(
	ctx context.Context,
	tradeRef string,
	from domain.OrderStatusType,
	to domain.OrderStatusType,
) (bool, error) {
	tag, err := o.conn.Exec(ctx, ordersTransitionStatusQuery, tradeRef, from, to)
	if err != nil {
		return false, convertErr(err, "transitioning order `%s` from %s to %s", tradeRef, from, to)
	}
	return tag.RowsAffected() > 0, nil
}

// CountUserPurchases считает покупки пакета юзером. Незавершенные заказы
// (PENDING) учитываются наравне с оплаченными.
func (o *OrderRepository) CountUserPurchases(ctx context.Context, userID, packageID int64) (int64, error) {
	var count int64
	err := o.conn.QueryRow(ctx, ordersCountPurchasesQuery, userID, packageID).Scan(&count)
	if err != nil {
		return 0, convertErr(err, "counting purchases of package %d by userID %d", packageID, userID)
	}
	return count, nil
}

// GetByUserID возвращает список заказов по id юзера, отсортированный по дате создания по убыванию.
func (o *OrderRepository) GetByUserID(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := o.conn.Query(ctx, ordersGetByUserIDQuery, userID)
	if err != nil {
		return nil, convertErr(err, "getting orders by userID `%d`", userID)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "scanning order for userID `%d`", userID)
		}
		orders = append(orders, *order)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "iterating orders for userID `%d`", userID)
	}
	return orders, nil
}

// GetPendingCreatedBefore возвращает незавершенные заказы, созданные раньше
// указанного момента. Используется сверкой со шлюзом.
func (o *OrderRepository) GetPendingCreatedBefore(
	ctx context.Context,
	before time.Time,
	limit int32,
) ([]domain.Order, error) {
	rows, err := o.conn.Query(ctx, ordersGetPendingBeforeQuery, before, limit)
	if err != nil {
		return nil, convertErr(err, "getting pending orders before %s", before)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "scanning pending order")
		}
		orders = append(orders, *order)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "iterating pending orders")
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.UserID,
		&order.PackageID,
		&order.TradeRef,
		&order.Amount,
		&order.Status,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
