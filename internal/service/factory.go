package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/groph-pay/pkg/uow"
)

type AppServices struct {
	UserService    *UserService
	OrderService   *OrderService
	CreditService  *CreditService
	PaymentService *PaymentService
}

type FactoryArgs struct {
	UnitOfWork uow.UOW
	Hasher     PasswordHasher
	JWTSecret  []byte
	Gateway    Gateway
	Verifier   NotificationVerifier
	APIKey     []byte
	NotifyURL  string
	Logger     *logrus.Logger
}

func Factory(args FactoryArgs) (*AppServices, error) {
	userService, userServiceErr := NewUserService(args.UnitOfWork, args.Hasher, args.JWTSecret)
	if userServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", userServiceErr.Error())
	}

	orderService, orderServiceErr := NewOrderService(args.UnitOfWork)
	if orderServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", orderServiceErr.Error())
	}

	creditService, creditServiceErr := NewCreditService(args.UnitOfWork)
	if creditServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", creditServiceErr.Error())
	}

	paymentService := NewPaymentService(
		orderService, args.Gateway, args.Verifier, args.APIKey, args.NotifyURL, args.Logger)

	return &AppServices{
		UserService:    userService,
		OrderService:   orderService,
		CreditService:  creditService,
		PaymentService: paymentService,
	}, nil
}
