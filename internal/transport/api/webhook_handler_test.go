package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/logger"
	"github.com/fsdevblog/groph-pay/internal/transport/api/mocks"
	"github.com/fsdevblog/groph-pay/internal/transport/api/testutils"
	"github.com/fsdevblog/groph-pay/internal/wechatpay"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/suite"
)

type WebhookHandlerTestSuite struct {
	suite.Suite
	router             *gin.Engine
	mockPaymentService *mocks.MockPaymentServicer
}

func TestWebhookHandlerSuite(t *testing.T) {
	suite.Run(t, new(WebhookHandlerTestSuite))
}

func (s *WebhookHandlerTestSuite) SetupTest() {
	mockCtrl := gomock.NewController(s.T())
	defer mockCtrl.Finish()

	s.mockPaymentService = mocks.NewMockPaymentServicer(mockCtrl)

	s.router = New(RouterArgs{
		Logger:         logger.New(os.Stdout),
		PaymentService: s.mockPaymentService,
		JWTSecretKey:   []byte("super secret key"),
	})
}

// notify шлет уведомление с платформенными заголовками и возвращает ответ.
func (s *WebhookHandlerTestSuite) notify(body []byte) *http.Response {
	res, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + WebhookRoute,
		Body:   bytes.NewReader(body),
	},
		testutils.WithHeader(wechatpay.HeaderTimestamp, "1700000000"),
		testutils.WithHeader(wechatpay.HeaderNonce, "nonce-1"),
		testutils.WithHeader(wechatpay.HeaderSignature, "c2lnbmF0dXJl"),
		testutils.WithHeader(wechatpay.HeaderSerial, "PLATFORMSERIAL01"),
		testutils.WithHeader("Content-Type", "application/json"),
	)
	s.Require().NoError(err)
	return res
}

func (s *WebhookHandlerTestSuite) TestNotify() {
	body := []byte(`{"id": "evt-1", "resource": {}}`)

	// Заголовки должны попасть в уведомление как есть.
	s.mockPaymentService.EXPECT().
		HandleNotification(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, n wechatpay.Notification) error {
			s.Equal("1700000000", n.Timestamp)
			s.Equal("nonce-1", n.Nonce)
			s.Equal("c2lnbmF0dXJl", n.Signature)
			s.Equal("PLATFORMSERIAL01", n.Serial)
			s.Equal(body, n.Body)
			return nil
		}).Times(1)

	res := s.notify(body)
	defer func() {
		closeErr := res.Body.Close()
		s.Require().NoError(closeErr)
	}()

	s.Equal(http.StatusOK, res.StatusCode)

	var reply webhookReply
	s.Require().NoError(json.NewDecoder(res.Body).Decode(&reply))
	s.Equal("SUCCESS", reply.Code)
}

func (s *WebhookHandlerTestSuite) TestNotifyRejected() {
	cases := []struct {
		name       string
		svcErr     error
		wantStatus int
	}{
		{
			name:       "bad signature",
			svcErr:     wechatpay.ErrBadSignature,
			wantStatus: http.StatusUnauthorized,
		}, {
			name:       "unknown serial",
			svcErr:     wechatpay.ErrUnknownSerial,
			wantStatus: http.StatusUnauthorized,
		}, {
			name:       "stale timestamp",
			svcErr:     wechatpay.ErrStaleTimestamp,
			wantStatus: http.StatusUnauthorized,
		}, {
			name:       "decrypt failed",
			svcErr:     wechatpay.ErrDecrypt,
			wantStatus: http.StatusBadRequest,
		}, {
			name:       "unknown order",
			svcErr:     domain.ErrUnknownOrder,
			wantStatus: http.StatusBadRequest,
		}, {
			name:       "storage failure",
			svcErr:     errors.New("db is down"),
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, t := range cases {
		s.Run(t.name, func() {
			s.mockPaymentService.EXPECT().
				HandleNotification(gomock.Any(), gomock.Any()).
				Return(t.svcErr).Times(1)

			res := s.notify([]byte(`{"id": "evt-1"}`))
			defer func() {
				closeErr := res.Body.Close()
				s.Require().NoError(closeErr)
			}()

			s.Equal(t.wantStatus, res.StatusCode)

			var reply webhookReply
			s.Require().NoError(json.NewDecoder(res.Body).Decode(&reply))
			s.Equal("FAIL", reply.Code)
		})
	}
}
