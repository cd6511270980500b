package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/gin-gonic/gin"
)

type BalanceHandler struct {
	svs CreditServicer
}

func NewBalanceHandler(svs CreditServicer) *BalanceHandler {
	return &BalanceHandler{
		svs: svs,
	}
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

func (b *BalanceHandler) Index(c *gin.Context) {
	currentUserID := getUserIDFromContext(c)

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	balance, err := b.svs.Balance(reqCtx, currentUserID)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	c.JSON(http.StatusOK, &BalanceResponse{Balance: balance})
}

type ConsumeParams struct {
	Amount int64 `binding:"required,gt=0" json:"amount"`
}

// Consume POST RouteGroup + ConsumeRoute. Списывает кредиты с баланса.
func (b *BalanceHandler) Consume(c *gin.Context) {
	currentUserID := getUserIDFromContext(c)

	var params ConsumeParams
	if bindErr := c.ShouldBindJSON(&params); bindErr != nil {
		_ = c.AbortWithError(http.StatusBadRequest, bindErr).
			SetType(gin.ErrorTypeBind)
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	tr, err := b.svs.Spend(reqCtx, currentUserID, params.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			_ = c.AbortWithError(http.StatusPaymentRequired, errors.New("insufficient credits")).
				SetType(gin.ErrorTypePublic)
			return
		}
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	c.JSON(http.StatusOK, gin.H{"spent": tr.Amount})
}

type TransactionResponse struct {
	CreatedAt time.Time            `json:"processed_at"`
	Direction domain.DirectionType `json:"direction"`
	Amount    int64                `json:"amount"`
	OrderID   *int64               `json:"order_id,omitempty"`
}

// History GET RouteGroup + HistoryRoute. История движения кредитов.
func (b *BalanceHandler) History(c *gin.Context) {
	currentUserID := getUserIDFromContext(c)

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	transactions, err := b.svs.History(reqCtx, currentUserID)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	if len(transactions) == 0 {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}

	var response = make([]TransactionResponse, len(transactions))
	for i, tr := range transactions {
		response[i] = TransactionResponse{
			CreatedAt: tr.CreatedAt,
			Direction: tr.Direction,
			Amount:    tr.Amount,
			OrderID:   tr.OrderID,
		}
	}
	c.JSON(http.StatusOK, response)
}
