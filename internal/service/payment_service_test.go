package service

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/internal/service/mocks"
	"github.com/fsdevblog/groph-pay/internal/wechatpay"
	"github.com/fsdevblog/groph-pay/pkg/uow"
	uowmocks "github.com/fsdevblog/groph-pay/pkg/uow/mocks"
	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

const (
	testPlatformSerial = "PLATFORMSERIAL01"
	testNotifyURL      = "https://pay.example.com/api/payment/webhook"
)

type PaymentServiceTestSuite struct {
	suite.Suite
	mockCtrl        *gomock.Controller
	mockUOW         *uowmocks.MockUOW
	mockTX          *uowmocks.MockTX
	mockOrderRepo   *mocks.MockOrderRepository
	mockPackageRepo *mocks.MockPackageRepository
	mockCreditRepo  *mocks.MockCreditTransactionRepository
	mockGateway     *mocks.MockGateway

	platformKey *rsa.PrivateKey
	apiKey      []byte

	paymentService *PaymentService
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceTestSuite))
}

func (s *PaymentServiceTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockUOW = uowmocks.NewMockUOW(s.mockCtrl)
	s.mockTX = uowmocks.NewMockTX(s.mockCtrl)
	s.mockOrderRepo = mocks.NewMockOrderRepository(s.mockCtrl)
	s.mockPackageRepo = mocks.NewMockPackageRepository(s.mockCtrl)
	s.mockCreditRepo = mocks.NewMockCreditTransactionRepository(s.mockCtrl)
	s.mockGateway = mocks.NewMockGateway(s.mockCtrl)

	s.mockUOW.EXPECT().GetRepository(uow.RepositoryName(repoargs.OrderRepoName)).
		Return(s.mockOrderRepo, nil).AnyTimes()
	s.mockUOW.EXPECT().GetRepository(uow.RepositoryName(repoargs.PackageRepoName)).
		Return(s.mockPackageRepo, nil).AnyTimes()
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.OrderRepoName)).
		Return(s.mockOrderRepo, nil).AnyTimes()
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.PackageRepoName)).
		Return(s.mockPackageRepo, nil).AnyTimes()
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.CreditTransactionRepoName)).
		Return(s.mockCreditRepo, nil).AnyTimes()
	s.mockUOW.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, uow.TX) error) error {
			return fn(ctx, s.mockTX)
		}).AnyTimes()

	// Проверка подписи уведомлений идет через настоящий Verifier с настоящим
	// RSA ключом, мокается только слой хранения и шлюз.
	key, keyErr := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(keyErr)
	s.platformKey = key

	s.apiKey = []byte("0123456789abcdef0123456789abcdef")

	store := wechatpay.NewCertStore()
	store.Add(testPlatformSerial, &key.PublicKey)
	verifier := wechatpay.NewVerifier(store)

	orderService, servErr := NewOrderService(s.mockUOW)
	s.Require().NoError(servErr)

	logger := logrus.New()
	s.paymentService = NewPaymentService(
		orderService, s.mockGateway, verifier, s.apiKey, testNotifyURL, logger)
}

func (s *PaymentServiceTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

// newPaidNotification собирает уведомление об успешной оплате так, как его
// собрал бы шлюз: результат сделки шифруется ключом APIv3, тело подписывается
// платформенным ключом.
func (s *PaymentServiceTestSuite) newPaidNotification(tradeRef string, amount int64) wechatpay.Notification {
	return s.newNotification(wechatpay.TradeResult{
		OutTradeNo:    tradeRef,
		TransactionID: "4200001234202601019999999999",
		TradeState:    wechatpay.TradeStateSuccess,
		Amount: wechatpay.TradeAmount{
			Total:      amount,
			PayerTotal: amount,
			Currency:   "CNY",
		},
	})
}

func (s *PaymentServiceTestSuite) newNotification(result wechatpay.TradeResult) wechatpay.Notification {
	plaintext, marshalErr := json.Marshal(result)
	s.Require().NoError(marshalErr)

	associatedData := "transaction"
	nonce := "abc123def456"

	block, blockErr := aes.NewCipher(s.apiKey)
	s.Require().NoError(blockErr)
	gcm, gcmErr := cipher.NewGCM(block)
	s.Require().NoError(gcmErr)
	sealed := gcm.Seal(nil, []byte(nonce), plaintext, []byte(associatedData))

	envelope := map[string]any{
		"id":            "EV-2026010100000001",
		"event_type":    "TRANSACTION.SUCCESS",
		"resource_type": "encrypt-resource",
		"resource": wechatpay.EncryptedResource{
			Algorithm:      "AEAD_AES_256_GCM",
			Ciphertext:     base64.StdEncoding.EncodeToString(sealed),
			AssociatedData: associatedData,
			OriginalType:   "transaction",
			Nonce:          nonce,
		},
	}
	body, bodyErr := json.Marshal(envelope)
	s.Require().NoError(bodyErr)

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	nonceStr := "NOTIFYNONCE00001"

	digest := sha256.Sum256([]byte(timestamp + "\n" + nonceStr + "\n" + string(body) + "\n"))
	signature, signErr := rsa.SignPKCS1v15(rand.Reader, s.platformKey, crypto.SHA256, digest[:])
	s.Require().NoError(signErr)

	return wechatpay.Notification{
		Timestamp: timestamp,
		Nonce:     nonceStr,
		Signature: base64.StdEncoding.EncodeToString(signature),
		Serial:    testPlatformSerial,
		Body:      body,
	}
}

func (s *PaymentServiceTestSuite) TestInitiatePayment() {
	pkg := domain.Package{ID: 3, Name: "Starter", Price: 1500, Credits: 100}

	s.mockPackageRepo.EXPECT().FindByID(gomock.Any(), pkg.ID).Return(&pkg, nil)
	s.mockOrderRepo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, args repoargs.CreateOrder) (*domain.Order, error) {
			return &domain.Order{
				ID:        1,
				UserID:    args.UserID,
				PackageID: args.PackageID,
				TradeRef:  args.TradeRef,
				Amount:    args.Amount,
				Status:    domain.OrderStatusPending,
			}, nil
		})
	s.mockGateway.EXPECT().
		CreateNativeOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params wechatpay.CreateOrderParams) (string, error) {
			s.Equal(pkg.Name, params.Description)
			s.Equal(pkg.Price, params.Amount)
			s.Equal(testNotifyURL, params.NotifyURL)
			s.NotEmpty(params.TradeRef)
			return "weixin://wxpay/bizpayurl?pr=test123", nil
		})

	intent, err := s.paymentService.InitiatePayment(context.Background(), 42, pkg.ID)
	s.Require().NoError(err)
	s.Equal("weixin://wxpay/bizpayurl?pr=test123", intent.CodeURL)
	s.Equal(pkg.Price, intent.Amount)
	s.Equal(pkg.Credits, intent.Credits)
	s.NotEmpty(intent.TradeRef)
}

func (s *PaymentServiceTestSuite) TestInitiatePaymentGatewayError() {
	pkg := domain.Package{ID: 3, Name: "Starter", Price: 1500, Credits: 100}
	gwErr := errors.New("gateway unavailable")

	s.mockPackageRepo.EXPECT().FindByID(gomock.Any(), pkg.ID).Return(&pkg, nil)
	s.mockOrderRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&domain.Order{ID: 1, TradeRef: "GPREF", Amount: pkg.Price}, nil)
	s.mockGateway.EXPECT().CreateNativeOrder(gomock.Any(), gomock.Any()).Return("", gwErr)

	_, err := s.paymentService.InitiatePayment(context.Background(), 42, pkg.ID)
	s.Require().ErrorIs(err, gwErr)
}

func (s *PaymentServiceTestSuite) TestHandleNotification() {
	order := domain.Order{
		ID:        10,
		UserID:    42,
		PackageID: 3,
		TradeRef:  "GP1700000000AABBCCDD",
		Amount:    1500,
		Status:    domain.OrderStatusPending,
	}
	pkg := domain.Package{ID: 3, Price: 1500, Credits: 100}

	s.mockOrderRepo.EXPECT().FindByTradeRef(gomock.Any(), order.TradeRef).Return(&order, nil)
	s.mockOrderRepo.EXPECT().
		TransitionStatus(gomock.Any(), order.TradeRef, domain.OrderStatusPending, domain.OrderStatusPaid).
		Return(true, nil)
	s.mockPackageRepo.EXPECT().FindByID(gomock.Any(), pkg.ID).Return(&pkg, nil)
	s.mockCreditRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&domain.CreditTransaction{ID: 1}, nil)

	n := s.newPaidNotification(order.TradeRef, order.Amount)
	s.Require().NoError(s.paymentService.HandleNotification(context.Background(), n))
}

// Оплата с купоном шлюза: payer_total меньше total, но сделка успешна и
// amount.total совпадает с заказом. Начисление обязано пройти.
func (s *PaymentServiceTestSuite) TestHandleNotificationCouponPayment() {
	order := domain.Order{
		ID:        10,
		UserID:    42,
		PackageID: 3,
		TradeRef:  "GP1700000000AABBCCDD",
		Amount:    1500,
		Status:    domain.OrderStatusPending,
	}
	pkg := domain.Package{ID: 3, Price: 1500, Credits: 100}

	s.mockOrderRepo.EXPECT().FindByTradeRef(gomock.Any(), order.TradeRef).Return(&order, nil)
	s.mockOrderRepo.EXPECT().
		TransitionStatus(gomock.Any(), order.TradeRef, domain.OrderStatusPending, domain.OrderStatusPaid).
		Return(true, nil)
	s.mockPackageRepo.EXPECT().FindByID(gomock.Any(), pkg.ID).Return(&pkg, nil)
	s.mockCreditRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&domain.CreditTransaction{ID: 1}, nil)

	n := s.newNotification(wechatpay.TradeResult{
		OutTradeNo:    order.TradeRef,
		TransactionID: "4200001234202601019999999999",
		TradeState:    wechatpay.TradeStateSuccess,
		Amount: wechatpay.TradeAmount{
			Total:      1500,
			PayerTotal: 1300,
			Currency:   "CNY",
		},
	})
	s.Require().NoError(s.paymentService.HandleNotification(context.Background(), n))
}

// Повторная доставка того же уведомления подтверждается, но второго начисления
// не происходит.
func (s *PaymentServiceTestSuite) TestHandleNotificationReplay() {
	order := domain.Order{
		ID:        10,
		UserID:    42,
		PackageID: 3,
		TradeRef:  "GP1700000000AABBCCDD",
		Amount:    1500,
		Status:    domain.OrderStatusPending,
	}
	pkg := domain.Package{ID: 3, Price: 1500, Credits: 100}

	grants := 0
	// Стейт заказа живет между доставками: после первой он PAID.
	s.mockOrderRepo.EXPECT().
		FindByTradeRef(gomock.Any(), order.TradeRef).
		DoAndReturn(func(context.Context, string) (*domain.Order, error) {
			current := order
			return &current, nil
		}).Times(2)
	s.mockOrderRepo.EXPECT().
		TransitionStatus(gomock.Any(), order.TradeRef, domain.OrderStatusPending, domain.OrderStatusPaid).
		DoAndReturn(func(context.Context, string, domain.OrderStatusType, domain.OrderStatusType) (bool, error) {
			order.Status = domain.OrderStatusPaid
			return true, nil
		})
	s.mockPackageRepo.EXPECT().FindByID(gomock.Any(), pkg.ID).Return(&pkg, nil)
	s.mockCreditRepo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, repoargs.CreditTransactionCreate) (*domain.CreditTransaction, error) {
			grants++
			return &domain.CreditTransaction{ID: 1}, nil
		})

	n := s.newPaidNotification(order.TradeRef, order.Amount)
	s.Require().NoError(s.paymentService.HandleNotification(context.Background(), n))
	s.Require().NoError(s.paymentService.HandleNotification(context.Background(), n))
	s.Equal(1, grants)
}

func (s *PaymentServiceTestSuite) TestHandleNotificationBadSignature() {
	n := s.newPaidNotification("GPREF", 1500)
	n.Body = append([]byte{}, n.Body...)
	n.Body[len(n.Body)/2] ^= 0x01

	err := s.paymentService.HandleNotification(context.Background(), n)
	s.Require().ErrorIs(err, wechatpay.ErrBadSignature)
}

func (s *PaymentServiceTestSuite) TestHandleNotificationUnknownSerial() {
	n := s.newPaidNotification("GPREF", 1500)
	n.Serial = "DEADBEEF00000001"

	err := s.paymentService.HandleNotification(context.Background(), n)
	s.Require().ErrorIs(err, wechatpay.ErrUnknownSerial)
}

func (s *PaymentServiceTestSuite) TestHandleNotificationUnknownOrder() {
	s.mockOrderRepo.EXPECT().FindByTradeRef(gomock.Any(), "GPGHOST").
		Return(nil, domain.ErrRecordNotFound)

	n := s.newPaidNotification("GPGHOST", 1500)
	err := s.paymentService.HandleNotification(context.Background(), n)
	s.Require().ErrorIs(err, domain.ErrUnknownOrder)
}

func (s *PaymentServiceTestSuite) TestHandleNotificationAmountMismatch() {
	order := domain.Order{
		ID:       10,
		TradeRef: "GP1700000000AABBCCDD",
		Amount:   1500,
		Status:   domain.OrderStatusPending,
	}

	s.mockOrderRepo.EXPECT().FindByTradeRef(gomock.Any(), order.TradeRef).Return(&order, nil)

	n := s.newPaidNotification(order.TradeRef, 1400)
	err := s.paymentService.HandleNotification(context.Background(), n)

	var mismatchErr *domain.AmountMismatchError
	s.Require().ErrorAs(err, &mismatchErr)
}

// Уведомление о не-успешном состоянии подтверждается без какого-либо
// воздействия на заказ.
func (s *PaymentServiceTestSuite) TestHandleNotificationNonSuccessState() {
	n := s.newNotification(wechatpay.TradeResult{
		OutTradeNo: "GPREF",
		TradeState: wechatpay.TradeStateNotPay,
	})

	s.Require().NoError(s.paymentService.HandleNotification(context.Background(), n))
}

func (s *PaymentServiceTestSuite) TestSyncOrderStatusRecoversPayment() {
	order := domain.Order{
		ID:        10,
		UserID:    42,
		PackageID: 3,
		TradeRef:  "GP1700000000AABBCCDD",
		Amount:    1500,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().Add(-20 * time.Minute),
	}
	pkg := domain.Package{ID: 3, Price: 1500, Credits: 100}

	s.mockGateway.EXPECT().QueryOrder(gomock.Any(), order.TradeRef).
		Return(&wechatpay.TradeResult{
			OutTradeNo: order.TradeRef,
			TradeState: wechatpay.TradeStateSuccess,
			Amount:     wechatpay.TradeAmount{Total: 1500, PayerTotal: 1500},
		}, nil)
	s.mockOrderRepo.EXPECT().FindByTradeRef(gomock.Any(), order.TradeRef).Return(&order, nil)
	s.mockOrderRepo.EXPECT().
		TransitionStatus(gomock.Any(), order.TradeRef, domain.OrderStatusPending, domain.OrderStatusPaid).
		Return(true, nil)
	s.mockPackageRepo.EXPECT().FindByID(gomock.Any(), pkg.ID).Return(&pkg, nil)
	s.mockCreditRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&domain.CreditTransaction{ID: 1}, nil)

	s.Require().NoError(s.paymentService.SyncOrderStatus(context.Background(), order))
}

func (s *PaymentServiceTestSuite) TestSyncOrderStatusClosed() {
	order := domain.Order{
		TradeRef:  "GPREF",
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().Add(-20 * time.Minute),
	}

	s.mockGateway.EXPECT().QueryOrder(gomock.Any(), order.TradeRef).
		Return(&wechatpay.TradeResult{
			OutTradeNo: order.TradeRef,
			TradeState: wechatpay.TradeStateClosed,
		}, nil)
	s.mockOrderRepo.EXPECT().
		TransitionStatus(gomock.Any(), order.TradeRef, domain.OrderStatusPending, domain.OrderStatusFailed).
		Return(true, nil)

	s.Require().NoError(s.paymentService.SyncOrderStatus(context.Background(), order))
}

func (s *PaymentServiceTestSuite) TestSyncOrderStatusExpiresStale() {
	order := domain.Order{
		TradeRef:  "GPREF",
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().Add(-3 * time.Hour),
	}

	s.mockGateway.EXPECT().QueryOrder(gomock.Any(), order.TradeRef).
		Return(&wechatpay.TradeResult{
			OutTradeNo: order.TradeRef,
			TradeState: wechatpay.TradeStateNotPay,
		}, nil)
	s.mockOrderRepo.EXPECT().
		TransitionStatus(gomock.Any(), order.TradeRef, domain.OrderStatusPending, domain.OrderStatusExpired).
		Return(true, nil)

	s.Require().NoError(s.paymentService.SyncOrderStatus(context.Background(), order))
}

// Свежий NOTPAY заказ не трогаем: юзер еще может оплатить.
func (s *PaymentServiceTestSuite) TestSyncOrderStatusFreshNotPay() {
	order := domain.Order{
		TradeRef:  "GPREF",
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().Add(-20 * time.Minute),
	}

	s.mockGateway.EXPECT().QueryOrder(gomock.Any(), order.TradeRef).
		Return(&wechatpay.TradeResult{
			OutTradeNo: order.TradeRef,
			TradeState: wechatpay.TradeStateNotPay,
		}, nil)

	s.Require().NoError(s.paymentService.SyncOrderStatus(context.Background(), order))
}

func (s *PaymentServiceTestSuite) TestMockPay() {
	order := domain.Order{
		ID:        10,
		UserID:    42,
		PackageID: 3,
		TradeRef:  "GPREF",
		Amount:    1500,
		Status:    domain.OrderStatusPending,
	}
	pkg := domain.Package{ID: 3, Price: 1500, Credits: 100}

	s.mockOrderRepo.EXPECT().FindByTradeRef(gomock.Any(), order.TradeRef).Return(&order, nil).Times(2)
	s.mockOrderRepo.EXPECT().
		TransitionStatus(gomock.Any(), order.TradeRef, domain.OrderStatusPending, domain.OrderStatusPaid).
		Return(true, nil)
	s.mockPackageRepo.EXPECT().FindByID(gomock.Any(), pkg.ID).Return(&pkg, nil)
	s.mockCreditRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&domain.CreditTransaction{ID: 1}, nil)

	result, err := s.paymentService.MockPay(context.Background(), order.UserID, order.TradeRef)
	s.Require().NoError(err)
	s.False(result.AlreadyApplied)
}
