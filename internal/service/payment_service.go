package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/wechatpay"
)

// gatewayCallTimeout ограничивает обращение к шлюзу после того, как заказ уже
// создан и запрос отвязан от контекста клиента.
const gatewayCallTimeout = 30 * time.Second

// pendingOrderTTL — срок, после которого неоплаченный (NOTPAY) заказ при сверке
// переводится в EXPIRED.
const pendingOrderTTL = 2 * time.Hour

// PaymentIntent — данные для оплаты созданного заказа.
type PaymentIntent struct {
	TradeRef string
	CodeURL  string
	Amount   int64
	Credits  int64
}

type PaymentService struct {
	orders    *OrderService
	gateway   Gateway
	verifier  NotificationVerifier
	apiKey    []byte
	notifyURL string
	log       *logrus.Entry
}

func NewPaymentService(
	orders *OrderService,
	gateway Gateway,
	verifier NotificationVerifier,
	apiKey []byte,
	notifyURL string,
	l *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		orders:    orders,
		gateway:   gateway,
		verifier:  verifier,
		apiKey:    apiKey,
		notifyURL: notifyURL,
		log:       l.WithField("module", "payment_service"),
	}
}

// InitiatePayment создает заказ и регистрирует его на шлюзе. Возвращает
// code_url для оплаты по QR-коду.
//
// Обращение к шлюзу идет с контекстом, отвязанным от отмены ctx: если клиент
// оборвал соединение после вставки заказа, регистрация на шлюзе все равно
// завершается и заказ остается оплачиваемым.
func (p *PaymentService) InitiatePayment(ctx context.Context, userID, packageID int64) (*PaymentIntent, error) {
	order, pkg, err := p.orders.Create(ctx, userID, packageID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	gwCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gatewayCallTimeout)
	defer cancel()

	codeURL, gwErr := p.gateway.CreateNativeOrder(gwCtx, wechatpay.CreateOrderParams{
		Description: pkg.Name,
		TradeRef:    order.TradeRef,
		Amount:      order.Amount,
		NotifyURL:   p.notifyURL,
	})
	if gwErr != nil {
		// Заказ остается PENDING, его добьет сверка: либо юзер успеет оплатить
		// после ретрая, либо заказ истечет.
		p.log.WithError(gwErr).WithField("trade_ref", order.TradeRef).
			Error("gateway order registration failed")
		return nil, fmt.Errorf("initiating payment for order `%s`: %w", order.TradeRef, gwErr)
	}

	return &PaymentIntent{
		TradeRef: order.TradeRef,
		CodeURL:  codeURL,
		Amount:   order.Amount,
		Credits:  pkg.Credits,
	}, nil
}

// HandleNotification обрабатывает платежное уведомление шлюза. Возвращает nil,
// если уведомление можно подтверждать (ack): шлюз перестанет его доставлять.
// Любая ошибка означает отказ, шлюз доставит уведомление повторно.
//
// Порядок строгий: сначала проверка подписи, расшифровка только после нее.
func (p *PaymentService) HandleNotification(ctx context.Context, n wechatpay.Notification) error {
	if err := p.verifier.Verify(n); err != nil {
		p.log.WithError(err).WithField("serial", n.Serial).Warn("notification rejected")
		return fmt.Errorf("handling notification: %w", err)
	}

	result, decErr := wechatpay.DecodeTradeResult(n.Body, p.apiKey)
	if decErr != nil {
		p.log.WithError(decErr).Warn("notification resource decryption failed")
		return fmt.Errorf("handling notification: %w", decErr)
	}

	log := p.log.WithFields(logrus.Fields{
		"trade_ref":   result.OutTradeNo,
		"trade_state": result.TradeState,
	})

	if !result.Paid() {
		// Не-успешные состояния подтверждаем без изменений заказа: финальный
		// вердикт по ним выносит сверка через QueryOrder.
		log.Info("non-success notification acknowledged")
		return nil
	}

	// Сверяем amount.total заказа: payer_total может быть меньше при купонах
	// шлюза, успешный платеж с купоном остается успешным.
	markRes, markErr := p.orders.MarkPaid(ctx, result.OutTradeNo, result.Amount.Total)
	if markErr != nil {
		log.WithError(markErr).Error("applying paid notification failed")
		return fmt.Errorf("handling notification: %w", markErr)
	}

	if markRes.AlreadyApplied {
		log.Info("duplicate paid notification acknowledged")
	} else {
		log.Info("order paid, credits granted")
	}
	return nil
}

// SyncOrderStatus сверяет незавершенный заказ со шлюзом и приводит локальный
// статус к состоянию сделки.
func (p *PaymentService) SyncOrderStatus(ctx context.Context, order domain.Order) error {
	result, err := p.gateway.QueryOrder(ctx, order.TradeRef)
	if err != nil {
		var scErr *wechatpay.StatusCodeError
		if errors.As(err, &scErr) && scErr.Code == "ORDER_NOT_EXIST" {
			// Шлюз о заказе не знает: регистрация не прошла. Дожидаемся
			// истечения TTL и закрываем.
			if time.Since(order.CreatedAt) > pendingOrderTTL {
				return p.expireOrder(ctx, order.TradeRef)
			}
			return nil
		}
		return fmt.Errorf("syncing order `%s`: %w", order.TradeRef, err)
	}

	switch result.TradeState {
	case wechatpay.TradeStateSuccess:
		if _, markErr := p.orders.MarkPaid(ctx, order.TradeRef, result.Amount.Total); markErr != nil {
			return fmt.Errorf("syncing order `%s`: %w", order.TradeRef, markErr)
		}
		p.log.WithField("trade_ref", order.TradeRef).Info("missed payment recovered by reconciliation")
	case wechatpay.TradeStateClosed, wechatpay.TradeStateRevoked, wechatpay.TradeStatePayError:
		if _, closeErr := p.orders.MarkClosed(ctx, order.TradeRef, domain.OrderStatusFailed); closeErr != nil {
			return fmt.Errorf("syncing order `%s`: %w", order.TradeRef, closeErr)
		}
	case wechatpay.TradeStateNotPay:
		if time.Since(order.CreatedAt) > pendingOrderTTL {
			return p.expireOrder(ctx, order.TradeRef)
		}
	default:
		// USERPAYING и прочие промежуточные состояния: ждем следующего круга.
	}
	return nil
}

// MockPay помечает заказ оплаченным в обход шлюза. Только для локальной
// разработки, в проде роут выключен конфигом.
func (p *PaymentService) MockPay(ctx context.Context, userID int64, tradeRef string) (*MarkPaidResult, error) {
	order, err := p.orders.StatusForUser(ctx, userID, tradeRef)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	result, markErr := p.orders.MarkPaid(ctx, order.TradeRef, order.Amount)
	if markErr != nil {
		return nil, markErr //nolint:wrapcheck
	}
	return result, nil
}

func (p *PaymentService) expireOrder(ctx context.Context, tradeRef string) error {
	if _, err := p.orders.MarkClosed(ctx, tradeRef, domain.OrderStatusExpired); err != nil {
		return fmt.Errorf("expiring order `%s`: %w", tradeRef, err)
	}
	p.log.WithField("trade_ref", tradeRef).Info("pending order expired")
	return nil
}
