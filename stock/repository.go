package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	// GetStocksForUpdate locks and returns the stocks of the given variants
	// in the given warehouses, ordered ascending by row id. The fixed lock
	// order is what keeps concurrent allocations from deadlocking.
	GetStocksForUpdate(ctx context.Context, tx pgx.Tx, variantIDs, warehouseIDs []uint64) ([]*models.Stock, error)

	// GetStocksForUpdateByIDs locks and returns stocks by primary key,
	// ordered ascending by row id.
	GetStocksForUpdateByIDs(ctx context.Context, tx pgx.Tx, stockIDs []uint64) ([]*models.Stock, error)

	// GetStocksForUpdateByPairs locks the stocks matching the exact
	// (variant, warehouse) pairs, ordered ascending by row id.
	GetStocksForUpdateByPairs(ctx context.Context, tx pgx.Tx, variantIDs, warehouseIDs []uint64) ([]*models.Stock, error)

	// GetOrCreateForUpdate returns the locked stock row for the pair,
	// creating an empty one first if none exists.
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, variantID, warehouseID uint64) (*models.Stock, error)

	// IncrementQuantities applies database-side increments to quantity.
	IncrementQuantities(ctx context.Context, tx pgx.Tx, adjustments []QuantityAdjustment) error

	// IncrementAllocated applies database-side increments to quantity_allocated.
	IncrementAllocated(ctx context.Context, tx pgx.Tx, adjustments []QuantityAdjustment) error

	// GetStock reads one stock row, through the cache when no transaction is
	// given.
	GetStock(ctx context.Context, tx pgx.Tx, stockID uint64) (*models.Stock, error)
}

type repository struct {
	conn   driver.PostgresPool
	cache  *redis.Client
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, cache *redis.Client, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		cache:  cache,
		logger: logger,
	}
}

const stockColumns = `id, variant_id, warehouse_id, quantity, quantity_allocated, created_at, updated_at`

const cacheTTL = 5 * time.Minute

func (r *repository) GetStocksForUpdate(ctx context.Context, tx pgx.Tx, variantIDs, warehouseIDs []uint64) ([]*models.Stock, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		WHERE variant_id = ANY($1) AND warehouse_id = ANY($2)
		ORDER BY id
		FOR UPDATE`,
		int64Slice(variantIDs), int64Slice(warehouseIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock stocks: %w", err)
	}
	return scanStocks(rows)
}

func (r *repository) GetStocksForUpdateByIDs(ctx context.Context, tx pgx.Tx, stockIDs []uint64) ([]*models.Stock, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`,
		int64Slice(stockIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock stocks: %w", err)
	}
	return scanStocks(rows)
}

func (r *repository) GetStocksForUpdateByPairs(ctx context.Context, tx pgx.Tx, variantIDs, warehouseIDs []uint64) ([]*models.Stock, error) {
	rows, err := tx.Query(ctx, `
		SELECT s.id, s.variant_id, s.warehouse_id, s.quantity, s.quantity_allocated, s.created_at, s.updated_at
		FROM stocks s
		JOIN unnest($1::bigint[], $2::bigint[]) AS d(variant_id, warehouse_id)
		  ON s.variant_id = d.variant_id AND s.warehouse_id = d.warehouse_id
		ORDER BY s.id
		FOR UPDATE OF s`,
		int64Slice(variantIDs), int64Slice(warehouseIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock stocks: %w", err)
	}
	return scanStocks(rows)
}

func (r *repository) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, variantID, warehouseID uint64) (*models.Stock, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO stocks (variant_id, warehouse_id, quantity, quantity_allocated)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (variant_id, warehouse_id) DO NOTHING`,
		int64(variantID), int64(warehouseID)); err != nil {
		return nil, fmt.Errorf("failed to create stock: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		WHERE variant_id = $1 AND warehouse_id = $2
		FOR UPDATE`,
		int64(variantID), int64(warehouseID))

	stock, err := scanStock(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock: %w", err)
	}
	return stock, nil
}

func (r *repository) IncrementQuantities(ctx context.Context, tx pgx.Tx, adjustments []QuantityAdjustment) error {
	return r.increment(ctx, tx, "quantity", adjustments)
}

func (r *repository) IncrementAllocated(ctx context.Context, tx pgx.Tx, adjustments []QuantityAdjustment) error {
	return r.increment(ctx, tx, "quantity_allocated", adjustments)
}

// increment queues one UPDATE per adjustment. The increment happens in the
// database, not client-side, so concurrent transactions on disjoint lock
// sets cannot lose updates on the same column.
func (r *repository) increment(ctx context.Context, tx pgx.Tx, column string, adjustments []QuantityAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, adj := range adjustments {
		batch.Queue(
			`UPDATE stocks SET `+column+` = `+column+` + $1, updated_at = now() WHERE id = $2`,
			adj.Delta, int64(adj.StockID))
	}

	results := tx.SendBatch(ctx, batch)
	for range adjustments {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to execute batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		r.logger.Error("failed to close batch", zap.Error(err))
		return err
	}

	for _, adj := range adjustments {
		r.invalidateCache(ctx, adj.StockID)
	}
	return nil
}

func (r *repository) GetStock(ctx context.Context, tx pgx.Tx, stockID uint64) (*models.Stock, error) {
	cacheKey := fmt.Sprintf("stock:%d", stockID)

	if tx == nil && r.cache != nil {
		raw, err := r.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var stock models.Stock
			if err = json.Unmarshal(raw, &stock); err == nil {
				return &stock, nil
			}
			r.logger.Warn("failed to decode cached stock", zap.Uint64("stock_id", stockID), zap.Error(err))
		} else if !errors.Is(err, redis.Nil) {
			r.logger.Warn("failed to get stock from cache", zap.Uint64("stock_id", stockID), zap.Error(err))
		}
	}

	var row pgx.Row
	query := `SELECT ` + stockColumns + ` FROM stocks WHERE id = $1`
	if tx != nil {
		row = tx.QueryRow(ctx, query, int64(stockID))
	} else {
		row = r.conn.QueryRow(ctx, query, int64(stockID))
	}

	stock, err := scanStock(row)
	if err != nil {
		r.logger.Error("failed to get stock", zap.Uint64("stock_id", stockID), zap.Error(err))
		return nil, err
	}

	if tx == nil && r.cache != nil {
		if raw, err := json.Marshal(stock); err == nil {
			if err = r.cache.Set(ctx, cacheKey, raw, cacheTTL).Err(); err != nil {
				r.logger.Warn("failed to cache stock", zap.Uint64("stock_id", stockID), zap.Error(err))
			}
		}
	}

	return stock, nil
}

func (r *repository) invalidateCache(ctx context.Context, stockID uint64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, fmt.Sprintf("stock:%d", stockID)).Err(); err != nil {
		r.logger.Warn("failed to invalidate stock cache", zap.Uint64("stock_id", stockID), zap.Error(err))
	}
}

func scanStock(row pgx.Row) (*models.Stock, error) {
	var stock models.Stock
	if err := row.Scan(&stock.ID, &stock.VariantID, &stock.WarehouseID,
		&stock.Quantity, &stock.QuantityAllocated, &stock.CreatedAt, &stock.UpdatedAt); err != nil {
		return nil, err
	}
	return &stock, nil
}

func scanStocks(rows pgx.Rows) ([]*models.Stock, error) {
	defer rows.Close()

	var stocks []*models.Stock
	for rows.Next() {
		var stock models.Stock
		if err := rows.Scan(&stock.ID, &stock.VariantID, &stock.WarehouseID,
			&stock.Quantity, &stock.QuantityAllocated, &stock.CreatedAt, &stock.UpdatedAt); err != nil {
			return nil, err
		}
		stocks = append(stocks, &stock)
	}
	return stocks, rows.Err()
}

func int64Slice(ids []uint64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
