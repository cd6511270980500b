package repoargs

import "github.com/fsdevblog/groph-pay/internal/domain"

type CreditTransactionCreate struct {
	UserID    int64
	OrderID   *int64
	Amount    int64
	Direction domain.DirectionType
}
