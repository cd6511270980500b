package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/wechatpay"
	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	paymentSvs PaymentServicer
}

func NewWebhookHandler(paymentSvs PaymentServicer) *WebhookHandler {
	return &WebhookHandler{
		paymentSvs: paymentSvs,
	}
}

// webhookReply — формат ответа, который ожидает шлюз. Любой не-2xx статус
// приводит к повторной доставке уведомления.
type webhookReply struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Notify POST RouteGroup + WebhookRoute. Принимает платежное уведомление шлюза.
// Роут не авторизуется токеном: подлинность удостоверяет подпись платформы в
// заголовках.
func (h *WebhookHandler) Notify(c *gin.Context) {
	body, bodyErr := c.GetRawData()
	if bodyErr != nil {
		_ = c.Error(bodyErr).SetType(gin.ErrorTypePrivate)
		c.AbortWithStatusJSON(http.StatusBadRequest, webhookReply{Code: "FAIL", Message: "unreadable body"})
		return
	}

	n := wechatpay.Notification{
		Timestamp: c.GetHeader(wechatpay.HeaderTimestamp),
		Nonce:     c.GetHeader(wechatpay.HeaderNonce),
		Signature: c.GetHeader(wechatpay.HeaderSignature),
		Serial:    c.GetHeader(wechatpay.HeaderSerial),
		Body:      body,
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	if err := h.paymentSvs.HandleNotification(reqCtx, n); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypePrivate)
		c.AbortWithStatusJSON(webhookFailStatus(err), webhookReply{Code: "FAIL", Message: "notification rejected"})
		return
	}

	c.JSON(http.StatusOK, webhookReply{Code: "SUCCESS"})
}

// webhookFailStatus подбирает http статус отказа. Для шлюза значим только сам
// факт не-2xx, статус различается ради диагностики по логам доставки.
func webhookFailStatus(err error) int {
	switch {
	case errors.Is(err, wechatpay.ErrUnknownSerial),
		errors.Is(err, wechatpay.ErrBadSignature),
		errors.Is(err, wechatpay.ErrStaleTimestamp):
		return http.StatusUnauthorized
	case errors.Is(err, wechatpay.ErrDecrypt),
		errors.Is(err, domain.ErrUnknownOrder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
