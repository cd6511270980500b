package api

import (
	"time"

	"github.com/fsdevblog/groph-pay/internal/transport/api/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	DefaultServiceTimeout = 3 * time.Second
	// PaymentServiceTimeout шире обычного: создание заказа синхронно ходит в шлюз.
	PaymentServiceTimeout = 35 * time.Second
)

const (
	RouteGroup       = "/api"
	RegisterRoute    = "/user/register"
	LoginRoute       = "/user/login"
	PackagesRoute    = "/packages"
	OrdersRoute      = "/user/orders"
	OrderStatusRoute = "/user/orders/:tradeRef/status"
	BalanceRoute     = "/user/balance"
	HistoryRoute     = "/user/credits/history"
	ConsumeRoute     = "/user/credits/consume"
	WebhookRoute     = "/payment/webhook"
	MockPayRoute     = "/payment/mock-success"
)

type RouterArgs struct {
	Logger         *logrus.Logger
	UserService    UserServicer
	OrderService   OrderServicer
	PaymentService PaymentServicer
	CreditService  CreditServicer
	JWTSecretKey   []byte
	// AllowMockPay включает роут оплаты без шлюза. Только для локальной
	// разработки.
	AllowMockPay bool
}

func New(args RouterArgs) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if args.Logger != nil {
		r.Use(middlewares.Logger(args.Logger))
	}
	r.Use(middlewares.Errors())

	authHandler := NewAuthHandler(args.UserService)
	paymentsHandler := NewPaymentsHandler(args.OrderService, args.PaymentService)
	webhookHandler := NewWebhookHandler(args.PaymentService)
	balanceHandler := NewBalanceHandler(args.CreditService)

	api := r.Group(RouteGroup)

	api.POST(RegisterRoute, middlewares.NonAuthRequired(args.JWTSecretKey), authHandler.Register)
	api.POST(LoginRoute, middlewares.NonAuthRequired(args.JWTSecretKey), authHandler.Login)
	api.GET(PackagesRoute, paymentsHandler.Packages)

	// Уведомления шлюза авторизуются подписью платформы, не токеном.
	api.POST(WebhookRoute, webhookHandler.Notify)

	authorized := api.Group("")
	authorized.Use(middlewares.AuthRequired(args.JWTSecretKey))
	// ниже все роуты группы требуют авторизованного пользователя.
	authorized.POST(OrdersRoute, paymentsHandler.Create)
	authorized.GET(OrdersRoute, paymentsHandler.Index)
	authorized.GET(OrderStatusRoute, paymentsHandler.Status)

	authorized.GET(BalanceRoute, balanceHandler.Index)
	authorized.POST(ConsumeRoute, balanceHandler.Consume)
	authorized.GET(HistoryRoute, balanceHandler.History)

	if args.AllowMockPay {
		authorized.POST(MockPayRoute, paymentsHandler.MockPay)
	}
	return r
}
