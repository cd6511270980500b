package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/pkg/uow"
)

type CreditService struct {
	uow        uow.UOW
	creditRepo CreditTransactionRepository
}

func NewCreditService(u uow.UOW) (*CreditService, error) {
	creditRepo, err := uow.GetRepositoryAs[CreditTransactionRepository](
		u, uow.RepositoryName(repoargs.CreditTransactionRepoName))
	if err != nil {
		return nil, err
	}
	return &CreditService{
		uow:        u,
		creditRepo: creditRepo,
	}, nil
}

// Balance возвращает текущий баланс кредитов юзера.
func (s *CreditService) Balance(ctx context.Context, userID int64) (int64, error) {
	balance, err := s.creditRepo.GetBalance(ctx, userID)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}
	return balance, nil
}

// Spend списывает amount кредитов с баланса юзера. Баланс не может уйти в
// минус: при нехватке кредитов возвращается domain.ErrInsufficientCredits, при
// этом конкурирующие списания тоже не могут увести его в минус.
//
// Списания одного юзера сериализуются advisory-блокировкой на время
// транзакции. Без нее условная вставка считает баланс по своему снимку: два
// параллельных списания не видят вставок друг друга, оба проходят проверку и
// оба коммитятся.
func (s *CreditService) Spend(ctx context.Context, userID int64, amount int64) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("spending credits: amount %d must be positive", amount)
	}

	var tr *domain.CreditTransaction
	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		creditRepo, repoErr := uow.GetAs[CreditTransactionRepository](
			tx, uow.RepositoryName(repoargs.CreditTransactionRepoName))
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}

		if lockErr := creditRepo.LockUser(c, userID); lockErr != nil {
			return lockErr //nolint:wrapcheck
		}

		var spendErr error
		tr, spendErr = creditRepo.CreateSpend(c, userID, amount)
		return spendErr //nolint:wrapcheck
	})
	if txErr != nil {
		if errors.Is(txErr, domain.ErrRecordNotFound) {
			return nil, domain.ErrInsufficientCredits
		}
		return nil, fmt.Errorf("spending credits: %w", txErr)
	}
	return tr, nil
}

// History возвращает историю движений кредитов юзера от новых к старым.
func (s *CreditService) History(ctx context.Context, userID int64) ([]domain.CreditTransaction, error) {
	transactions, err := s.creditRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return transactions, nil
}
