// Package reconcile сверяет незавершенные заказы со шлюзом: уведомление могло
// потеряться, а заказ так и останется PENDING без внешнего опроса.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/groph-pay/internal/domain"
)

const (
	defaultServiceTimeout = 3 * time.Second
	defaultSyncTimeout    = 40 * time.Second

	defaultSweepInterval = 2 * time.Minute
	defaultMinOrderAge   = 15 * time.Minute

	defaultLimitPerIteration int32 = 100
	defaultReconcileWorkers  uint  = 5
)

// Processor периодически запрашивает зависшие заказы и параллельно сверяет
// каждый со шлюзом.
type Processor struct {
	provider          OrderProvider
	syncer            Syncer
	l                 *logrus.Entry
	sweepInterval     time.Duration
	minOrderAge       time.Duration
	limitPerIteration int32
	reconcileWorkers  uint
}

// New создает новый экземпляр процессора сверки.
func New(provider OrderProvider, syncer Syncer, l *logrus.Logger) *Processor {
	loggerEntry := l.WithFields(logrus.Fields{
		"component": "reconcile",
		"module":    "processor",
	})

	return &Processor{
		provider:          provider,
		syncer:            syncer,
		l:                 loggerEntry,
		sweepInterval:     defaultSweepInterval,
		minOrderAge:       defaultMinOrderAge,
		limitPerIteration: defaultLimitPerIteration,
		reconcileWorkers:  defaultReconcileWorkers,
	}
}

// SetSweepInterval устанавливает паузу между итерациями сверки.
func (p *Processor) SetSweepInterval(interval time.Duration) *Processor {
	p.sweepInterval = interval
	return p
}

// SetMinOrderAge устанавливает минимальный возраст заказа для сверки. Совсем
// свежие заказы не опрашиваются: юзер скорее всего еще оплачивает QR-код и
// уведомление придет само.
func (p *Processor) SetMinOrderAge(age time.Duration) *Processor {
	p.minOrderAge = age
	return p
}

// SetLimitPerIteration устанавливает кол-во заказов, обрабатываемых в одной итерации.
func (p *Processor) SetLimitPerIteration(limit int32) *Processor {
	p.limitPerIteration = limit
	return p
}

// SetReconcileWorkers устанавливает кол-во воркеров, опрашивающих шлюз.
func (p *Processor) SetReconcileWorkers(workers uint) *Processor {
	p.reconcileWorkers = workers
	return p
}

// Run запускает сверку в бесконечном цикле до отмены контекста.
//
// Алгоритм работы:
//  1. Каждые sweepInterval запрашивает через сервисный слой зависшие заказы
//     (PENDING старше minOrderAge), объем лимитируется SetLimitPerIteration.
//  2. Для каждой итерации создаются N воркеров (SetReconcileWorkers), каждый
//     опрашивает шлюз и применяет вердикт через сервисный слой.
//
// Вердикт по каждому заказу применяется идемпотентно, поэтому гонка сверки с
// опоздавшим уведомлением безопасна.
func (p *Processor) Run(ctx context.Context) {
	p.l.WithFields(logrus.Fields{
		"sweepInterval":     p.sweepInterval.String(),
		"minOrderAge":       p.minOrderAge.String(),
		"limitPerIteration": p.limitPerIteration,
		"reconcileWorkers":  p.reconcileWorkers,
	}).Info("Starting")

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.l.Info("Got stop signal, exiting...")
			return
		case <-ticker.C:
			if err := p.process(ctx); err != nil {
				p.l.WithError(err).Error("process error")
			}
		}
	}
}

// process выполняет одну итерацию: получение списка зависших заказов и их сверку.
func (p *Processor) process(ctx context.Context) error {
	orders, ordersErr := p.produce(ctx)
	if ordersErr != nil {
		return fmt.Errorf("process: %w", ordersErr)
	}
	if len(orders) == 0 {
		return nil
	}

	failures := p.runWorkers(ctx, orders)
	p.l.WithFields(logrus.Fields{
		"orders":   len(orders),
		"failures": failures,
	}).Info("sweep finished")
	return nil
}

// runWorkers разбирает заказы пулом воркеров. Возвращает количество заказов,
// сверка которых завершилась ошибкой (они попадут в следующую итерацию).
func (p *Processor) runWorkers(ctx context.Context, orders []domain.Order) int {
	var taskCh = make(chan domain.Order, len(orders))
	for _, order := range orders {
		taskCh <- order
	}
	close(taskCh)

	var failureCh = make(chan struct{}, len(orders))

	wg := new(sync.WaitGroup)
	wg.Add(int(p.reconcileWorkers)) // nolint:gosec

	for i := range p.reconcileWorkers {
		go p.worker(ctx, wg, i+1, taskCh, failureCh)
	}
	wg.Wait()
	close(failureCh)

	return len(failureCh)
}

// worker сверяет заказы из канала по одному до исчерпания канала или отмены контекста.
func (p *Processor) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	workerID uint,
	taskCh <-chan domain.Order,
	failureCh chan<- struct{},
) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-taskCh:
			if !ok {
				return
			}

			syncCtx, cancel := context.WithTimeout(ctx, defaultSyncTimeout)
			err := p.syncer.SyncOrderStatus(syncCtx, task)
			cancel()

			if err != nil {
				p.l.WithError(err).WithFields(logrus.Fields{
					"worker":    workerID,
					"trade_ref": task.TradeRef,
				}).Error("order reconciliation failed")
				failureCh <- struct{}{}
			}
		}
	}
}

// produce получает список зависших заказов для сверки.
func (p *Processor) produce(ctx context.Context) ([]domain.Order, error) {
	produceCtx, cancel := context.WithTimeout(ctx, defaultServiceTimeout)
	defer cancel()

	orders, ordersErr := p.provider.PendingForReconciliation(produceCtx, p.minOrderAge, p.limitPerIteration)
	if ordersErr != nil {
		return nil, fmt.Errorf("produce: %w", ordersErr)
	}
	return orders, nil
}
