package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/transport/reconcile/mocks"
	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type ProcessorTestSuite struct {
	suite.Suite
	processor    *Processor
	mockProvider *mocks.MockOrderProvider
	mockSyncer   *mocks.MockSyncer
	ctrl         *gomock.Controller
}

func (s *ProcessorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.mockProvider = mocks.NewMockOrderProvider(s.ctrl)
	s.mockSyncer = mocks.NewMockSyncer(s.ctrl)

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	s.processor = New(s.mockProvider, s.mockSyncer, logger)
}

func (s *ProcessorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorTestSuite))
}

// TestProcess_NoOrders Тест на случай, когда нет заказов для сверки.
func (s *ProcessorTestSuite) TestProcess_NoOrders() {
	s.mockProvider.EXPECT().
		PendingForReconciliation(gomock.Any(), s.processor.minOrderAge, s.processor.limitPerIteration).
		Return([]domain.Order{}, nil)

	s.Require().NoError(s.processor.process(s.T().Context()))
}

func (s *ProcessorTestSuite) TestProcess_ProviderError() {
	providerErr := errors.New("db gone")
	s.mockProvider.EXPECT().
		PendingForReconciliation(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, providerErr)

	err := s.processor.process(s.T().Context())
	s.Require().ErrorIs(err, providerErr)
}

// TestProcess_AllOrdersSynced каждый заказ из выборки сверяется ровно один раз.
func (s *ProcessorTestSuite) TestProcess_AllOrdersSynced() {
	testOrders := []domain.Order{
		{ID: 1, TradeRef: "GP001", Status: domain.OrderStatusPending},
		{ID: 2, TradeRef: "GP002", Status: domain.OrderStatusPending},
		{ID: 3, TradeRef: "GP003", Status: domain.OrderStatusPending},
	}

	s.mockProvider.EXPECT().
		PendingForReconciliation(gomock.Any(), s.processor.minOrderAge, s.processor.limitPerIteration).
		Return(testOrders, nil)

	var mu sync.Mutex
	synced := make(map[string]int)
	s.mockSyncer.EXPECT().
		SyncOrderStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order domain.Order) error {
			mu.Lock()
			defer mu.Unlock()
			synced[order.TradeRef]++
			return nil
		}).Times(len(testOrders))

	s.Require().NoError(s.processor.process(s.T().Context()))

	s.Len(synced, 3)
	for ref, count := range synced {
		s.Equalf(1, count, "order %s synced more than once", ref)
	}
}

// TestProcess_SyncErrorDoesNotStopSweep ошибка сверки одного заказа не мешает
// обработке остальных.
func (s *ProcessorTestSuite) TestProcess_SyncErrorDoesNotStopSweep() {
	testOrders := []domain.Order{
		{ID: 1, TradeRef: "GP001", Status: domain.OrderStatusPending},
		{ID: 2, TradeRef: "GP002", Status: domain.OrderStatusPending},
	}

	s.mockProvider.EXPECT().
		PendingForReconciliation(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(testOrders, nil)

	var mu sync.Mutex
	var syncedRefs []string
	s.mockSyncer.EXPECT().
		SyncOrderStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order domain.Order) error {
			mu.Lock()
			syncedRefs = append(syncedRefs, order.TradeRef)
			mu.Unlock()
			if order.TradeRef == "GP001" {
				return errors.New("gateway timeout")
			}
			return nil
		}).Times(len(testOrders))

	s.Require().NoError(s.processor.process(s.T().Context()))
	s.Len(syncedRefs, 2)
}

// TestRun_StopsOnContextCancel процессор выходит из Run после отмены контекста.
func (s *ProcessorTestSuite) TestRun_StopsOnContextCancel() {
	s.processor.SetSweepInterval(10 * time.Millisecond)

	s.mockProvider.EXPECT().
		PendingForReconciliation(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]domain.Order{}, nil).
		AnyTimes()

	ctx, cancel := context.WithCancel(s.T().Context())

	done := make(chan struct{})
	go func() {
		s.processor.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("processor did not stop after context cancellation")
	}
}

func (s *ProcessorTestSuite) TestSetters() {
	s.processor.
		SetSweepInterval(time.Minute).
		SetMinOrderAge(5 * time.Minute).
		SetLimitPerIteration(10).
		SetReconcileWorkers(2)

	s.Equal(time.Minute, s.processor.sweepInterval)
	s.Equal(5*time.Minute, s.processor.minOrderAge)
	s.Equal(int32(10), s.processor.limitPerIteration)
	s.Equal(uint(2), s.processor.reconcileWorkers)
}
