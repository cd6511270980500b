package app

import (
	"context"
	"fmt"
	"time"

	"os/signal"
	"syscall"

	"github.com/fsdevblog/groph-pay/internal/config"
	"github.com/fsdevblog/groph-pay/internal/repository/pgrepo"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/internal/service"
	"github.com/fsdevblog/groph-pay/internal/service/psswd"
	"github.com/fsdevblog/groph-pay/internal/transport/api"
	"github.com/fsdevblog/groph-pay/internal/transport/reconcile"
	"github.com/fsdevblog/groph-pay/internal/wechatpay"
	"github.com/fsdevblog/groph-pay/pkg/uow"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const certRefreshTimeout = 30 * time.Second

type App struct {
	Config *config.Config
	Logger *logrus.Logger
}

func New(conf *config.Config, l *logrus.Logger) *App {
	return &App{
		Config: conf,
		Logger: l,
	}
}

func (a *App) Run() error {
	notifyCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Logger.WithField("RunAddress", a.Config.RunAddress).Info("Starting app")
	conn, connErr := pgrepo.Connect(notifyCtx, a.Config.MigrationsDir, a.Config.DatabaseDSN, a.Logger)
	if connErr != nil {
		return fmt.Errorf("app run: %s", connErr.Error())
	}
	defer conn.Close()

	unitOfWork, uowErr := initUOW(conn)
	if uowErr != nil {
		return fmt.Errorf("app run: %s", uowErr.Error())
	}

	gateway, verifier, initErr := a.initWechatPay(notifyCtx)
	if initErr != nil {
		return fmt.Errorf("app run: %s", initErr.Error())
	}

	services, sErr := service.Factory(service.FactoryArgs{
		UnitOfWork: unitOfWork,
		Hasher:     psswd.PasswordHash(""),
		JWTSecret:  []byte(a.Config.JWTUserSecret),
		Gateway:    gateway,
		Verifier:   verifier,
		APIKey:     []byte(a.Config.WechatAPIv3Key),
		NotifyURL:  a.Config.WechatNotifyURL,
		Logger:     a.Logger,
	})
	if sErr != nil {
		return fmt.Errorf("app run: %s", sErr.Error())
	}

	router := api.New(api.RouterArgs{
		Logger:         a.Logger,
		UserService:    services.UserService,
		OrderService:   services.OrderService,
		PaymentService: services.PaymentService,
		CreditService:  services.CreditService,
		JWTSecretKey:   []byte(a.Config.JWTUserSecret),
		AllowMockPay:   a.Config.AllowMockPay,
	})

	errChan := make(chan error, 1)

	go func() {
		if runErr := router.Run(a.Config.RunAddress); runErr != nil {
			errChan <- runErr
		}
	}()

	processor := reconcile.New(services.OrderService, services.PaymentService, a.Logger)
	go processor.Run(notifyCtx)

	select {
	case <-notifyCtx.Done():
		return notifyCtx.Err() //nolint:wrapcheck
	case err := <-errChan:
		return err
	}
}

// initWechatPay собирает подписанта, клиента шлюза и проверку уведомлений из
// конфигурации. Платформенный сертификат из конфига кладется в хранилище
// сразу, затем хранилище дополняется загрузкой с API шлюза.
func (a *App) initWechatPay(ctx context.Context) (*wechatpay.Client, *wechatpay.Verifier, error) {
	mchKey, keyErr := wechatpay.ParsePrivateKey([]byte(a.Config.WechatMchPrivateKey))
	if keyErr != nil {
		return nil, nil, fmt.Errorf("init wechatpay: %s", keyErr.Error())
	}

	signer := wechatpay.NewSigner(a.Config.WechatMchID, a.Config.WechatMchSerialNo, mchKey)
	client := wechatpay.NewClient(
		a.Config.WechatAPIBaseURL,
		a.Config.WechatAppID,
		a.Config.WechatMchID,
		signer,
		[]byte(a.Config.WechatAPIv3Key),
	)

	store := wechatpay.NewCertStore()
	if a.Config.WechatPlatformCert != "" {
		serial, pubKey, certErr := wechatpay.ParseCertificate([]byte(a.Config.WechatPlatformCert))
		if certErr != nil {
			return nil, nil, fmt.Errorf("init wechatpay: %s", certErr.Error())
		}
		if a.Config.WechatPlatformSerial != "" {
			serial = a.Config.WechatPlatformSerial
		}
		store.Add(serial, pubKey)
	}

	// Загрузка сертификатов с API дополняет (и обновляет) хранилище. Сбой не
	// фатален, пока есть сертификат из конфига.
	refreshCtx, cancel := context.WithTimeout(ctx, certRefreshTimeout)
	defer cancel()
	if keys, dlErr := client.DownloadCertificates(refreshCtx); dlErr != nil {
		a.Logger.WithError(dlErr).Warn("platform certificates download failed")
	} else {
		store.Merge(keys)
	}

	if store.Len() == 0 {
		return nil, nil, fmt.Errorf("init wechatpay: no platform certificates available")
	}

	return client, wechatpay.NewVerifier(store), nil
}

func initUOW(conn *pgxpool.Pool) (*uow.UnitOfWork, error) {
	unitOfWork := uow.NewUnitOfWork(conn)

	// user repo
	userRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewUserRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.UserRepoName), userRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// order repo
	orderRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewOrderRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.OrderRepoName), orderRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// package repo
	packageRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewPackageRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.PackageRepoName), packageRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// credit transaction repo
	creditRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewCreditTransactionRepository(dbtx)
	}
	if regErr := unitOfWork.Register(
		uow.RepositoryName(repoargs.CreditTransactionRepoName),
		creditRepoFactoryFn,
	); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	return unitOfWork, nil
}
