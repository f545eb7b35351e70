package event

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
)

var _ Repository = (*repository)(nil)

// Repository keeps an audit ledger of emitted stock notifications.
type Repository interface {
	Create(ctx context.Context, event *models.StockEvent) error
	GetByID(ctx context.Context, id string) (*models.StockEvent, error)
	MarkAsPublished(ctx context.Context, id string) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

func (r *repository) Create(ctx context.Context, ev *models.StockEvent) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO stock_events (id, stock_id, variant_id, warehouse_id, type, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, int64(ev.StockID), int64(ev.VariantID), int64(ev.WarehouseID), string(ev.Type), ev.Published,
		pgtype.Timestamptz{Time: ev.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: ev.UpdatedAt, Valid: true})
	if err != nil {
		r.logger.Error("failed to create stock event", zap.String("event_id", ev.ID), zap.Error(err))
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.StockEvent, error) {
	var ev models.StockEvent
	var eventType string
	err := r.conn.QueryRow(ctx, `
		SELECT id, stock_id, variant_id, warehouse_id, type, published, created_at, updated_at
		FROM stock_events
		WHERE id = $1`, id).
		Scan(&ev.ID, &ev.StockID, &ev.VariantID, &ev.WarehouseID, &eventType, &ev.Published, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ev.Type = enum.StockEventType(eventType)
	return &ev, nil
}

func (r *repository) MarkAsPublished(ctx context.Context, id string) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE stock_events SET published = true, updated_at = $1 WHERE id = $2`,
		pgtype.Timestamptz{Time: time.Now(), Valid: true}, id)
	return err
}
