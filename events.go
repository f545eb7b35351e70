package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gofalre.io/inventory/event"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
)

const (
	SubjectOutOfStock  = "inventory.stock.out_of_stock"
	SubjectBackInStock = "inventory.stock.back_in_stock"
)

type stockEventPayload struct {
	EventID           string    `json:"event_id"`
	Type              string    `json:"type"`
	StockID           uint64    `json:"stock_id"`
	VariantID         uint64    `json:"variant_id"`
	WarehouseID       uint64    `json:"warehouse_id"`
	Quantity          int       `json:"quantity"`
	QuantityAllocated int       `json:"quantity_allocated"`
	OccurredAt        time.Time `json:"occurred_at"`
}

var _ StockNotifier = (*EventManager)(nil)

// EventManager publishes availability transitions to NATS. It is handed
// stock snapshots strictly after commit and hands the actual publishing to a
// worker pool, so a slow broker never blocks a request handler.
type EventManager struct {
	natsConn *nats.Conn
	events   event.Repository
	logger   *zap.Logger
	pool     *WorkerPool
}

func NewEventManager(natsConn *nats.Conn, events event.Repository, logger *zap.Logger) *EventManager {
	em := &EventManager{
		natsConn: natsConn,
		events:   events,
		logger:   logger,
	}
	em.pool = NewWorkerPool(10, em, logger)
	return em
}

func (em *EventManager) OutOfStock(st *models.Stock) {
	em.submit(st, enum.StockEventTypeOutOfStock)
}

func (em *EventManager) BackInStock(st *models.Stock) {
	em.submit(st, enum.StockEventTypeBackInStock)
}

func (em *EventManager) submit(st *models.Stock, eventType enum.StockEventType) {
	now := time.Now()
	ev := &models.StockEvent{
		ID:          uuid.NewString(),
		StockID:     st.ID,
		VariantID:   st.VariantID,
		WarehouseID: st.WarehouseID,
		Type:        eventType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	em.pool.Submit(context.Background(), ev, st)
}

// PublishStockEvent records the event in the audit ledger and publishes it.
// The ledger write is best-effort; a failed audit row never suppresses the
// notification.
func (em *EventManager) PublishStockEvent(ctx context.Context, ev *models.StockEvent, st *models.Stock) error {
	if em.events != nil {
		if err := em.events.Create(ctx, ev); err != nil {
			em.logger.Warn("failed to record stock event", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}

	payload := stockEventPayload{
		EventID:           ev.ID,
		Type:              string(ev.Type),
		StockID:           st.ID,
		VariantID:         st.VariantID,
		WarehouseID:       st.WarehouseID,
		Quantity:          st.Quantity,
		QuantityAllocated: st.QuantityAllocated,
		OccurredAt:        ev.CreatedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	subject := SubjectOutOfStock
	if ev.Type == enum.StockEventTypeBackInStock {
		subject = SubjectBackInStock
	}
	if err = em.natsConn.Publish(subject, data); err != nil {
		return err
	}

	if em.events != nil {
		if err := em.events.MarkAsPublished(ctx, ev.ID); err != nil {
			em.logger.Warn("failed to mark stock event as published", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}

	em.logger.Info("stock event published",
		zap.String("event_id", ev.ID),
		zap.String("subject", subject),
		zap.Uint64("stock_id", ev.StockID))

	return nil
}

// Shutdown drains the publishing pool.
func (em *EventManager) Shutdown() {
	em.pool.Shutdown()
}
