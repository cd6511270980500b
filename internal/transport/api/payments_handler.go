package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/gin-gonic/gin"
)

type PaymentsHandler struct {
	orderSvs   OrderServicer
	paymentSvs PaymentServicer
}

func NewPaymentsHandler(orderSvs OrderServicer, paymentSvs PaymentServicer) *PaymentsHandler {
	return &PaymentsHandler{
		orderSvs:   orderSvs,
		paymentSvs: paymentSvs,
	}
}

type CreateOrderParams struct {
	PackageID int64 `binding:"required,gt=0" json:"package_id"`
}

type PaymentIntentResponse struct {
	TradeRef string `json:"out_trade_no"`
	CodeURL  string `json:"code_url"`
	Amount   int64  `json:"amount"`
	Credits  int64  `json:"credits"`
}

// Create POST RouteGroup + OrdersRoute. Создает заказ и возвращает code_url
// для отрисовки платежного QR-кода.
func (h *PaymentsHandler) Create(c *gin.Context) {
	currentUserID := getUserIDFromContext(c)

	var params CreateOrderParams
	if bindErr := c.ShouldBindJSON(&params); bindErr != nil {
		_ = c.AbortWithError(http.StatusBadRequest, bindErr).
			SetType(gin.ErrorTypeBind)
		return
	}

	// Таймаут шире обычного: внутри синхронный вызов шлюза.
	reqCtx, cancel := context.WithTimeout(c, PaymentServiceTimeout)
	defer cancel()

	intent, err := h.paymentSvs.InitiatePayment(reqCtx, currentUserID, params.PackageID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPackageNotFound):
			_ = c.AbortWithError(http.StatusUnprocessableEntity, errors.New("package does not exist")).
				SetType(gin.ErrorTypePublic)
		case errors.Is(err, domain.ErrLimitExceeded):
			_ = c.AbortWithError(http.StatusConflict, errors.New("package purchase limit reached")).
				SetType(gin.ErrorTypePublic)
		default:
			_ = c.AbortWithError(http.StatusInternalServerError, err).
				SetType(gin.ErrorTypePrivate)
		}
		return
	}

	c.JSON(http.StatusCreated, PaymentIntentResponse{
		TradeRef: intent.TradeRef,
		CodeURL:  intent.CodeURL,
		Amount:   intent.Amount,
		Credits:  intent.Credits,
	})
}

type OrderStatusResponse struct {
	TradeRef  string                 `json:"out_trade_no"`
	Status    domain.OrderStatusType `json:"status"`
	Amount    int64                  `json:"amount"`
	CreatedAt time.Time              `json:"created_at"`
}

// Status GET RouteGroup + OrderStatusRoute. Поллинг статуса заказа фронтом
// пока юзер оплачивает QR-код.
func (h *PaymentsHandler) Status(c *gin.Context) {
	currentUserID := getUserIDFromContext(c)
	tradeRef := c.Param("tradeRef")

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	order, err := h.orderSvs.StatusForUser(reqCtx, currentUserID, tradeRef)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownOrder) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	c.JSON(http.StatusOK, OrderStatusResponse{
		TradeRef:  order.TradeRef,
		Status:    order.Status,
		Amount:    order.Amount,
		CreatedAt: order.CreatedAt,
	})
}

// Index GET RouteGroup + OrdersRoute.
func (h *PaymentsHandler) Index(c *gin.Context) {
	currentUserID := getUserIDFromContext(c)

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	orders, err := h.orderSvs.GetByUserID(reqCtx, currentUserID)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	if len(orders) == 0 {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}

	var response = make([]OrderStatusResponse, len(orders))
	for i, order := range orders {
		response[i] = OrderStatusResponse{
			TradeRef:  order.TradeRef,
			Status:    order.Status,
			Amount:    order.Amount,
			CreatedAt: order.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, response)
}

type PackageResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Credits      int64  `json:"credits"`
	LimitPerUser int32  `json:"limit_per_user,omitempty"`
}

// Packages GET RouteGroup + PackagesRoute. Справочник пакетов для витрины.
func (h *PaymentsHandler) Packages(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	packages, err := h.orderSvs.Packages(reqCtx)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	var response = make([]PackageResponse, len(packages))
	for i, pkg := range packages {
		response[i] = PackageResponse{
			ID:           pkg.ID,
			Name:         pkg.Name,
			Price:        pkg.Price,
			Credits:      pkg.Credits,
			LimitPerUser: pkg.LimitPerUser,
		}
	}
	c.JSON(http.StatusOK, response)
}

type MockPayParams struct {
	TradeRef string `binding:"required,max=32" json:"out_trade_no"`
}

// MockPay POST RouteGroup + MockPayRoute. Помечает заказ оплаченным без шлюза.
// Роут регистрируется только при включенном флаге конфигурации.
func (h *PaymentsHandler) MockPay(c *gin.Context) {
	currentUserID := getUserIDFromContext(c)

	var params MockPayParams
	if bindErr := c.ShouldBindJSON(&params); bindErr != nil {
		_ = c.AbortWithError(http.StatusBadRequest, bindErr).
			SetType(gin.ErrorTypeBind)
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	result, err := h.paymentSvs.MockPay(reqCtx, currentUserID, params.TradeRef)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownOrder):
			c.AbortWithStatus(http.StatusNotFound)
		case errors.Is(err, domain.ErrOrderNotPayable):
			_ = c.AbortWithError(http.StatusConflict, errors.New("order is not payable")).
				SetType(gin.ErrorTypePublic)
		default:
			_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"out_trade_no":    result.Order.TradeRef,
		"status":          result.Order.Status,
		"already_applied": result.AlreadyApplied,
	})
}
