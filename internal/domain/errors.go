package domain

import (
	"errors"
	"fmt"
)

// Ошибки слоя репозитория.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrUnknown        = errors.New("unknown error")
)

// Бизнес-ошибки жизненного цикла заказа и баланса. Наружу отдаются как отказ
// операции и никогда не ретраятся.
var (
	ErrPackageNotFound     = errors.New("package not found")
	ErrLimitExceeded       = errors.New("package purchase limit exceeded")
	ErrUnknownOrder        = errors.New("unknown order")
	ErrOrderNotPayable     = errors.New("order is not payable")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrPasswordMissMatch   = errors.New("password mismatch")
)

// AmountMismatchError возвращается когда оплаченная сумма из уведомления шлюза
// не совпадает с суммой заказа. Начисление в этом случае не выполняется.
type AmountMismatchError struct {
	TradeRef string
	Want     int64
	Got      int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf(
		"paid amount %d does not match order %s amount %d",
		e.Got, e.TradeRef, e.Want,
	)
}
