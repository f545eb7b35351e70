package channel

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	GetBySlug(ctx context.Context, tx pgx.Tx, slug string) (*models.Channel, error)

	// WarehouseOrder returns the channel's warehouse priority as a
	// warehouse id to position map. Consumed by the sorting-order strategy.
	WarehouseOrder(ctx context.Context, tx pgx.Tx, channelID uint64) (map[uint64]int, error)
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

func (r *repository) GetBySlug(ctx context.Context, tx pgx.Tx, slug string) (*models.Channel, error) {
	query := `SELECT id, slug, allocation_strategy FROM channels WHERE slug = $1`

	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, query, slug)
	} else {
		row = r.conn.QueryRow(ctx, query, slug)
	}

	var ch models.Channel
	var strategy string
	if err := row.Scan(&ch.ID, &ch.Slug, &strategy); err != nil {
		r.logger.Error("failed to get channel", zap.String("slug", slug), zap.Error(err))
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	ch.AllocationStrategy = enum.AllocationStrategy(strategy)
	return &ch, nil
}

func (r *repository) WarehouseOrder(ctx context.Context, tx pgx.Tx, channelID uint64) (map[uint64]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT warehouse_id, sort_order
		FROM channel_warehouses
		WHERE channel_id = $1
		ORDER BY sort_order`,
		int64(channelID))
	if err != nil {
		return nil, fmt.Errorf("failed to get channel warehouse order: %w", err)
	}
	defer rows.Close()

	order := make(map[uint64]int)
	for rows.Next() {
		var warehouseID uint64
		var sortOrder int
		if err = rows.Scan(&warehouseID, &sortOrder); err != nil {
			return nil, err
		}
		order[warehouseID] = sortOrder
	}
	return order, rows.Err()
}
