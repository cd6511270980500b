package pgrepo

import (
	"context"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/pkg/uow"
)

const (
	creditsInsertQuery = `
		INSERT INTO credit_transactions (user_id, order_id, amount, direction)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, user_id, order_id, amount, direction`

	// Списание и проверка остатка выполняются одним запросом: строка вставится
	// только если текущий баланс покрывает сумму. Подзапрос считает баланс по
	// снимку транзакции, поэтому конкурирующие списания одного юзера обязаны
	// сериализоваться через LockUser, иначе оба пройдут проверку и уведут
	// баланс в минус.
	creditsInsertSpendQuery = `
		INSERT INTO credit_transactions (user_id, order_id, amount, direction)
		SELECT $1, NULL, $2, 'spend'
		WHERE (
			SELECT COALESCE(SUM(CASE WHEN direction = 'grant' THEN amount ELSE -amount END), 0)
			FROM credit_transactions
			WHERE user_id = $1
		) >= $2
		RETURNING id, created_at, user_id, order_id, amount, direction`

	creditsBalanceQuery = `
		SELECT COALESCE(SUM(CASE WHEN direction = 'grant' THEN amount ELSE -amount END), 0)
		FROM credit_transactions
		WHERE user_id = $1`

	creditsGetByUserIDQuery = `
		SELECT id, created_at, user_id, order_id, amount, direction
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	creditsLockUserQuery = `SELECT pg_advisory_xact_lock($1)`
)

type CreditTransactionRepository struct {
	conn uow.DBTX
}

func NewCreditTransactionRepository(conn uow.DBTX) *CreditTransactionRepository {
	return &CreditTransactionRepository{conn: conn}
}

// Create создает транзакцию начисления или списания без проверки баланса.
// Для начислений по заказу уникальный индекс по order_id гарантирует не больше
// одного начисления на заказ (повторная вставка вернет domain.ErrDuplicateKey).
func (c *CreditTransactionRepository) Create(
	ctx context.Context,
	args repoargs.CreditTransactionCreate,
) (*domain.CreditTransaction, error) {
	row := c.conn.QueryRow(ctx, creditsInsertQuery, args.UserID, args.OrderID, args.Amount, args.Direction)

	tr, err := scanCreditTransaction(row)
	if err != nil {
		return nil, convertErr(err, "creating %s transaction for userID `%d`", args.Direction, args.UserID)
	}
	return tr, nil
}

// LockUser берет advisory-блокировку на кредиты юзера до конца текущей
// транзакции. Вызывается перед CreateSpend и работает только внутри uow.Do:
// на пуле блокировка повиснет на соединении.
func (c *CreditTransactionRepository) LockUser(ctx context.Context, userID int64) error {
	if _, err := c.conn.Exec(ctx, creditsLockUserQuery, userID); err != nil {
		return convertErr(err, "locking credits of userID `%d`", userID)
	}
	return nil
}

// CreateSpend списывает кредиты с проверкой остатка. Если баланс меньше суммы,
// возвращает domain.ErrRecordNotFound (строка не вставлена).
func (c *CreditTransactionRepository) CreateSpend(
	ctx context.Context,
	userID int64,
	amount int64,
) (*domain.CreditTransaction, error) {
	row := c.conn.QueryRow(ctx, creditsInsertSpendQuery, userID, amount)

	tr, err := scanCreditTransaction(row)
	if err != nil {
		return nil, convertErr(err, "spending %d credits for userID `%d`", amount, userID)
	}
	return tr, nil
}

func (c *CreditTransactionRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	if err := c.conn.QueryRow(ctx, creditsBalanceQuery, userID).Scan(&balance); err != nil {
		return 0, convertErr(err, "getting balance for userID `%d`", userID)
	}
	return balance, nil
}

// GetByUserID возвращает историю транзакций юзера от новых к старым.
func (c *CreditTransactionRepository) GetByUserID(
	ctx context.Context,
	userID int64,
) ([]domain.CreditTransaction, error) {
	rows, err := c.conn.Query(ctx, creditsGetByUserIDQuery, userID)
	if err != nil {
		return nil, convertErr(err, "getting transactions by userID `%d`", userID)
	}
	defer rows.Close()

	var transactions []domain.CreditTransaction
	for rows.Next() {
		tr, scanErr := scanCreditTransaction(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "scanning transaction for userID `%d`", userID)
		}
		transactions = append(transactions, *tr)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "iterating transactions for userID `%d`", userID)
	}
	return transactions, nil
}

func scanCreditTransaction(row rowScanner) (*domain.CreditTransaction, error) {
	var tr domain.CreditTransaction
	err := row.Scan(
		&tr.ID,
		&tr.CreatedAt,
		&tr.UserID,
		&tr.OrderID,
		&tr.Amount,
		&tr.Direction,
	)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}
