package inventory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gofalre.io/inventory/models"
)

type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event *models.StockEvent, stock *models.Stock) error
}

type WorkerPool struct {
	tasks     chan func()
	wg        sync.WaitGroup
	logger    *zap.Logger
	publisher StockEventPublisher
}

func NewWorkerPool(size int, publisher StockEventPublisher, logger *zap.Logger) *WorkerPool {
	wp := &WorkerPool{
		tasks:     make(chan func(), 1000),
		logger:    logger,
		publisher: publisher,
	}

	wp.wg.Add(size)
	for i := 0; i < size; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task()
	}
}

func (wp *WorkerPool) Submit(ctx context.Context, event *models.StockEvent, stock *models.Stock) {
	wp.tasks <- func() {
		if err := wp.publisher.PublishStockEvent(ctx, event, stock); err != nil {
			wp.logger.Error("Failed to publish stock event",
				zap.Error(err),
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID))
		}
	}
}

// Shutdown stops accepting work and blocks until every queued event has been
// published.
func (wp *WorkerPool) Shutdown() {
	close(wp.tasks)
	wp.wg.Wait()
}
