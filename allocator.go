package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
	"gofalre.io/inventory/stock"
)

// AllocateStocks commits stock of the channel's warehouses to the given
// demand lines. The call is all-or-nothing: when any line cannot be
// satisfied, nothing is written and the returned InsufficientStockError
// lists every failing line.
func (s *service) AllocateStocks(ctx context.Context, lines []*models.OrderLineInfo, channel *models.Channel, countryCode string, opts AllocationOptions) error {
	// 1. Only variants that track inventory and are not in active preorder
	// allocate against real stock.
	eligible := trackedLines(lines, time.Now())
	if len(eligible) == 0 {
		return nil
	}

	return s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, hooks *driver.PostCommit) error {
		return s.allocateStocks(ctx, tx, hooks, eligible, channel, countryCode, opts)
	})
}

// allocateStocks is the locked body of AllocateStocks, shared with
// IncreaseAllocations so both run under the same lock discipline.
func (s *service) allocateStocks(ctx context.Context, tx pgx.Tx, hooks *driver.PostCommit, lines []*models.OrderLineInfo, channel *models.Channel, countryCode string, opts AllocationOptions) error {
	// 2. Resolve candidate warehouses: the click-and-collect point when one
	// is designated, otherwise every channel warehouse shipping to the
	// order's country.
	var warehouseIDs []uint64
	if opts.CollectionPointWarehouseID != nil {
		warehouseIDs = []uint64{*opts.CollectionPointWarehouseID}
	} else {
		var err error
		warehouseIDs, err = s.warehouse.ApplicableForChannelAndCountry(ctx, tx, channel.ID, countryCode)
		if err != nil {
			return fmt.Errorf("failed to resolve warehouses: %w", err)
		}
	}
	if len(warehouseIDs) == 0 {
		return &InsufficientStockError{Lines: insufficientForAll(lines)}
	}

	// 3. Lock the stock rows, ascending by row id. Concurrent allocations
	// touching overlapping rows serialize on this order instead of
	// deadlocking.
	stocks, err := s.stock.GetStocksForUpdate(ctx, tx, uniqueVariantIDs(lines), warehouseIDs)
	if err != nil {
		return err
	}

	// 4. Aggregate committed and reserved quantity under the locks so the
	// planner sees a consistent snapshot.
	ids := stockIDs(stocks)
	allocated := map[uint64]int{}
	if len(ids) > 0 {
		if allocated, err = s.allocation.AllocatedByStock(ctx, tx, ids); err != nil {
			return err
		}
	}

	reserved := map[uint64]int{}
	if opts.CheckReservations && len(ids) > 0 {
		if reserved, err = s.reservation.ReservedByStock(ctx, tx, ids, opts.ExcludedCheckoutLineIDs); err != nil {
			return err
		}
	}

	// 5. Rank and plan.
	warehouseOrder := map[uint64]int{}
	if channel.AllocationStrategy == enum.AllocationStrategyPrioritizeSortingOrder {
		if warehouseOrder, err = s.channel.WarehouseOrder(ctx, tx, channel.ID); err != nil {
			return err
		}
	}

	ranked := sortStocksForChannel(stocks, channel.AllocationStrategy, allocated, warehouseOrder, opts.CollectionPointWarehouseID)
	planned, insufficient := planAllocations(lines, groupStocksByVariant(ranked), allocated, reserved)

	// 6. Any shortfall aborts the whole transaction.
	if len(insufficient) > 0 {
		return &InsufficientStockError{Lines: insufficient}
	}

	// 7. Persist the new allocations and bump quantity_allocated with
	// database-side increments.
	allocations := make([]*models.Allocation, 0, len(planned))
	deltas := make(map[uint64]int)
	for _, plan := range planned {
		allocations = append(allocations, &models.Allocation{
			OrderLineID:       plan.Line.ID,
			StockID:           plan.StockID,
			QuantityAllocated: plan.Quantity,
		})
		deltas[plan.StockID] += plan.Quantity
	}

	if err = s.allocation.BulkCreate(ctx, tx, allocations); err != nil {
		return fmt.Errorf("failed to create allocations: %w", err)
	}

	adjustments := make([]stock.QuantityAdjustment, 0, len(deltas))
	for stockID, delta := range deltas {
		adjustments = append(adjustments, stock.QuantityAdjustment{StockID: stockID, Delta: delta})
	}
	if err = s.stock.IncrementAllocated(ctx, tx, adjustments); err != nil {
		return fmt.Errorf("failed to increment allocated quantity: %w", err)
	}

	// 8. Queue out-of-stock notifications for stocks left with no available
	// quantity; they fire only after the transaction commits.
	byID := stocksByID(stocks)
	for stockID, delta := range deltas {
		st := byID[stockID]
		newAllocated := allocated[stockID] + delta
		if st.Quantity-newAllocated > 0 {
			continue
		}
		snapshot := *st
		snapshot.QuantityAllocated = newAllocated
		hooks.Register(func() {
			s.notifier.OutOfStock(&snapshot)
		})
	}

	s.logger.Info("stocks allocated",
		zap.String("channel", channel.Slug),
		zap.Int("lines", len(lines)),
		zap.Int("allocations", len(allocations)))

	return nil
}

func insufficientForAll(lines []*models.OrderLineInfo) []InsufficientStockLine {
	out := make([]InsufficientStockLine, 0, len(lines))
	for _, info := range lines {
		lineID := info.Line.ID
		out = append(out, InsufficientStockLine{
			VariantID:   info.Line.VariantID,
			OrderLineID: &lineID,
			WarehouseID: info.WarehouseID,
		})
	}
	return out
}
