package allocation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
)

var _ Repository = (*repository)(nil)

// QuantityUpdate sets one allocation's committed quantity to an absolute value.
type QuantityUpdate struct {
	AllocationID uint64
	Quantity     int
}

type Repository interface {
	// GetForOrderLinesForUpdate locks the allocations of the given order
	// lines together with their stocks, ordered ascending by stock id. Both
	// row sets are locked in one statement so deallocation follows the same
	// lock discipline as allocation.
	GetForOrderLinesForUpdate(ctx context.Context, tx pgx.Tx, orderLineIDs []uint64) ([]*models.Allocation, error)

	// AllocatedByStock aggregates committed quantity per stock.
	AllocatedByStock(ctx context.Context, tx pgx.Tx, stockIDs []uint64) (map[uint64]int, error)

	BulkCreate(ctx context.Context, tx pgx.Tx, allocations []*models.Allocation) error

	// IncreaseOrCreate adds quantity to the allocation of (line, stock),
	// creating it when absent.
	IncreaseOrCreate(ctx context.Context, tx pgx.Tx, orderLineID, stockID uint64, quantity int) error

	UpdateQuantities(ctx context.Context, tx pgx.Tx, updates []QuantityUpdate) error

	DeleteByIDs(ctx context.Context, tx pgx.Tx, allocationIDs []uint64) error

	// ZeroOutForOrderLines forces the allocations of the given lines to zero.
	// Recovery path for allocations that could not be cleanly unwound.
	ZeroOutForOrderLines(ctx context.Context, tx pgx.Tx, orderLineIDs []uint64) error
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

func (r *repository) GetForOrderLinesForUpdate(ctx context.Context, tx pgx.Tx, orderLineIDs []uint64) ([]*models.Allocation, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.id, a.order_line_id, a.stock_id, a.quantity_allocated
		FROM allocations a
		JOIN stocks s ON s.id = a.stock_id
		WHERE a.order_line_id = ANY($1)
		ORDER BY s.id, a.id
		FOR UPDATE OF a, s`,
		int64Slice(orderLineIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock allocations: %w", err)
	}
	defer rows.Close()

	var allocations []*models.Allocation
	for rows.Next() {
		var alloc models.Allocation
		if err = rows.Scan(&alloc.ID, &alloc.OrderLineID, &alloc.StockID, &alloc.QuantityAllocated); err != nil {
			return nil, err
		}
		allocations = append(allocations, &alloc)
	}
	return allocations, rows.Err()
}

func (r *repository) AllocatedByStock(ctx context.Context, tx pgx.Tx, stockIDs []uint64) (map[uint64]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT stock_id, COALESCE(SUM(quantity_allocated), 0)
		FROM allocations
		WHERE stock_id = ANY($1)
		GROUP BY stock_id`,
		int64Slice(stockIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate allocations: %w", err)
	}
	defer rows.Close()

	totals := make(map[uint64]int, len(stockIDs))
	for rows.Next() {
		var stockID uint64
		var total int
		if err = rows.Scan(&stockID, &total); err != nil {
			return nil, err
		}
		totals[stockID] = total
	}
	return totals, rows.Err()
}

func (r *repository) BulkCreate(ctx context.Context, tx pgx.Tx, allocations []*models.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, alloc := range allocations {
		batch.Queue(`
			INSERT INTO allocations (order_line_id, stock_id, quantity_allocated)
			VALUES ($1, $2, $3)`,
			int64(alloc.OrderLineID), int64(alloc.StockID), alloc.QuantityAllocated)
	}
	return r.execBatch(ctx, tx, batch, len(allocations))
}

func (r *repository) IncreaseOrCreate(ctx context.Context, tx pgx.Tx, orderLineID, stockID uint64, quantity int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO allocations (order_line_id, stock_id, quantity_allocated)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_line_id, stock_id)
		DO UPDATE SET quantity_allocated = allocations.quantity_allocated + EXCLUDED.quantity_allocated`,
		int64(orderLineID), int64(stockID), quantity)
	if err != nil {
		return fmt.Errorf("failed to upsert allocation: %w", err)
	}
	return nil
}

func (r *repository) UpdateQuantities(ctx context.Context, tx pgx.Tx, updates []QuantityUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, upd := range updates {
		batch.Queue(
			`UPDATE allocations SET quantity_allocated = $1 WHERE id = $2`,
			upd.Quantity, int64(upd.AllocationID))
	}
	return r.execBatch(ctx, tx, batch, len(updates))
}

func (r *repository) DeleteByIDs(ctx context.Context, tx pgx.Tx, allocationIDs []uint64) error {
	if len(allocationIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM allocations WHERE id = ANY($1)`,
		int64Slice(allocationIDs)); err != nil {
		return fmt.Errorf("failed to delete allocations: %w", err)
	}
	return nil
}

func (r *repository) ZeroOutForOrderLines(ctx context.Context, tx pgx.Tx, orderLineIDs []uint64) error {
	if len(orderLineIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`UPDATE allocations SET quantity_allocated = 0 WHERE order_line_id = ANY($1)`,
		int64Slice(orderLineIDs)); err != nil {
		return fmt.Errorf("failed to zero allocations: %w", err)
	}
	return nil
}

func (r *repository) execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, n int) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to execute batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		r.logger.Error("failed to close batch", zap.Error(err))
		return err
	}
	return nil
}

func int64Slice(ids []uint64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
