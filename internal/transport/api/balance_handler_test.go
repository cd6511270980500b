package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/logger"
	"github.com/fsdevblog/groph-pay/internal/transport/api/mocks"
	"github.com/fsdevblog/groph-pay/internal/transport/api/testutils"
	"github.com/fsdevblog/groph-pay/internal/transport/api/tokens"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/suite"
)

type BalanceHandlerTestSuite struct {
	suite.Suite
	router            *gin.Engine
	mockCreditService *mocks.MockCreditServicer
	jwtSecret         []byte
}

func TestBalanceHandlerSuite(t *testing.T) {
	suite.Run(t, new(BalanceHandlerTestSuite))
}

func (s *BalanceHandlerTestSuite) SetupTest() {
	mockCtrl := gomock.NewController(s.T())
	defer mockCtrl.Finish()

	s.mockCreditService = mocks.NewMockCreditServicer(mockCtrl)
	s.jwtSecret = []byte("super secret key")

	s.router = New(RouterArgs{
		Logger:        logger.New(os.Stdout),
		CreditService: s.mockCreditService,
		JWTSecretKey:  s.jwtSecret,
	})
}

func (s *BalanceHandlerTestSuite) authHeader(userID int64) func(*testutils.RequestOptions) {
	token, err := tokens.GenerateUserJWT(userID, time.Hour, s.jwtSecret)
	s.Require().NoError(err)
	return testutils.WithHeader("Authorization", fmt.Sprintf("Bearer %s", token))
}

func (s *BalanceHandlerTestSuite) TestIndex() {
	var currentUserID int64 = 1

	s.mockCreditService.EXPECT().Balance(gomock.Any(), currentUserID).Return(int64(42), nil)

	res, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodGet,
		URL:    RouteGroup + BalanceRoute,
	}, s.authHeader(currentUserID))
	defer func() {
		closeErr := res.Body.Close()
		s.Require().NoError(closeErr)
	}()

	s.Require().NoError(err)
	s.Equal(http.StatusOK, res.StatusCode)

	var body BalanceResponse
	s.Require().NoError(json.NewDecoder(res.Body).Decode(&body))
	s.Equal(int64(42), body.Balance)
}

func (s *BalanceHandlerTestSuite) TestConsume() {
	var currentUserID int64 = 1
	var brokeUserID int64 = 2

	s.mockCreditService.EXPECT().
		Spend(gomock.Any(), currentUserID, int64(3)).
		Return(&domain.CreditTransaction{UserID: currentUserID, Amount: 3, Direction: domain.DirectionSpend}, nil).
		Times(1)
	s.mockCreditService.EXPECT().
		Spend(gomock.Any(), brokeUserID, int64(100)).
		Return(nil, domain.ErrInsufficientCredits).Times(1)

	cases := []struct {
		name       string
		userID     int64
		payload    []byte
		authorized bool
		wantStatus int
	}{
		{
			name:       "all ok",
			userID:     currentUserID,
			payload:    []byte(`{"amount": 3}`),
			authorized: true,
			wantStatus: http.StatusOK,
		}, {
			name:       "insufficient credits",
			userID:     brokeUserID,
			payload:    []byte(`{"amount": 100}`),
			authorized: true,
			wantStatus: http.StatusPaymentRequired,
		}, {
			name:       "negative amount",
			userID:     currentUserID,
			payload:    []byte(`{"amount": -1}`),
			authorized: true,
			wantStatus: http.StatusBadRequest,
		}, {
			name:       "not authorized",
			payload:    []byte(`{"amount": 3}`),
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, t := range cases {
		s.Run(t.name, func() {
			reqOpts := []func(*testutils.RequestOptions){
				testutils.WithHeader("Content-Type", "application/json"),
			}
			if t.authorized {
				reqOpts = append(reqOpts, s.authHeader(t.userID))
			}
			res, err := testutils.MakeRequest(testutils.RequestArgs{
				Router: s.router,
				Method: http.MethodPost,
				URL:    RouteGroup + ConsumeRoute,
				Body:   bytes.NewReader(t.payload),
			}, reqOpts...)

			defer func() {
				closeErr := res.Body.Close()
				s.Require().NoError(closeErr)
			}()

			s.Require().NoError(err)
			s.Equal(t.wantStatus, res.StatusCode)
		})
	}
}

func (s *BalanceHandlerTestSuite) TestHistory() {
	var userID int64 = 1
	var emptyUserID int64 = 2
	orderID := int64(10)

	transactions := []domain.CreditTransaction{
		{
			ID:        2,
			CreatedAt: time.Now(),
			UserID:    userID,
			Amount:    3,
			Direction: domain.DirectionSpend,
		}, {
			ID:        1,
			CreatedAt: time.Now().Add(-time.Hour),
			UserID:    userID,
			OrderID:   &orderID,
			Amount:    10,
			Direction: domain.DirectionGrant,
		},
	}
	s.mockCreditService.EXPECT().History(gomock.Any(), userID).Return(transactions, nil)
	s.mockCreditService.EXPECT().History(gomock.Any(), emptyUserID).Return(nil, nil)

	cases := []struct {
		name       string
		userID     int64
		wantStatus int
		wantLen    int
	}{
		{
			name:       "all ok",
			userID:     userID,
			wantStatus: http.StatusOK,
			wantLen:    2,
		}, {
			name:       "empty history",
			userID:     emptyUserID,
			wantStatus: http.StatusNoContent,
		},
	}
	for _, t := range cases {
		s.Run(t.name, func() {
			res, err := testutils.MakeRequest(testutils.RequestArgs{
				Router: s.router,
				Method: http.MethodGet,
				URL:    RouteGroup + HistoryRoute,
			}, s.authHeader(t.userID))

			defer func() {
				closeErr := res.Body.Close()
				s.Require().NoError(closeErr)
			}()

			s.Require().NoError(err)
			s.Equal(t.wantStatus, res.StatusCode)

			if t.wantLen > 0 {
				var body []TransactionResponse
				s.Require().NoError(json.NewDecoder(res.Body).Decode(&body))
				s.Require().Len(body, t.wantLen)
				s.Equal(domain.DirectionSpend, body[0].Direction)
				s.Require().NotNil(body[1].OrderID)
				s.Equal(orderID, *body[1].OrderID)
			}
		})
	}
}
