package reservation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
)

var _ Repository = (*repository)(nil)

// Repository aggregates checkout reservations. The allocation service only
// ever consumes totals; the checkout domain owns the rows.
type Repository interface {
	// ReservedByStock sums active, non-expired reservation quantity per
	// stock, excluding the given checkout lines. The exclusion keeps a
	// checkout's own reservation from blocking its conversion to an order.
	ReservedByStock(ctx context.Context, tx pgx.Tx, stockIDs, excludeCheckoutLineIDs []uint64) (map[uint64]int, error)

	// ReservedByListing is the preorder analogue, per variant channel listing.
	ReservedByListing(ctx context.Context, tx pgx.Tx, listingIDs, excludeCheckoutLineIDs []uint64) (map[uint64]int, error)
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

func (r *repository) ReservedByStock(ctx context.Context, tx pgx.Tx, stockIDs, excludeCheckoutLineIDs []uint64) (map[uint64]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT stock_id, COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE stock_id = ANY($1)
		  AND reserved_until > now()
		  AND NOT (checkout_line_id = ANY($2))
		GROUP BY stock_id`,
		int64Slice(stockIDs), int64Slice(excludeCheckoutLineIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reservations: %w", err)
	}
	return scanTotals(rows)
}

func (r *repository) ReservedByListing(ctx context.Context, tx pgx.Tx, listingIDs, excludeCheckoutLineIDs []uint64) (map[uint64]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT channel_listing_id, COALESCE(SUM(quantity), 0)
		FROM preorder_reservations
		WHERE channel_listing_id = ANY($1)
		  AND reserved_until > now()
		  AND NOT (checkout_line_id = ANY($2))
		GROUP BY channel_listing_id`,
		int64Slice(listingIDs), int64Slice(excludeCheckoutLineIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate preorder reservations: %w", err)
	}
	return scanTotals(rows)
}

func scanTotals(rows pgx.Rows) (map[uint64]int, error) {
	defer rows.Close()

	totals := make(map[uint64]int)
	for rows.Next() {
		var id uint64
		var total int
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		totals[id] = total
	}
	return totals, rows.Err()
}

func int64Slice(ids []uint64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
