package inventory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/allocation"
	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/stock"
)

// DeallocateStock releases each line's requested quantity back to its
// stocks. Unlike allocation this is best-effort per line: lines that fully
// reconcile are persisted even when others fall short, and the shortfalls
// are reported together in an AllocationError after the commit.
func (s *service) DeallocateStock(ctx context.Context, lines []*models.OrderLineInfo) error {
	if len(lines) == 0 {
		return nil
	}

	var failed []uint64

	err := s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, hooks *driver.PostCommit) error {
		// 1. Lock the lines' allocations together with their stocks,
		// ascending by stock id — the same discipline as allocation, applied
		// in reverse.
		allocations, err := s.allocation.GetForOrderLinesForUpdate(ctx, tx, orderLineIDs(lines))
		if err != nil {
			return err
		}

		byLine := make(map[uint64][]*models.Allocation, len(lines))
		uniqueStocks := make(map[uint64]struct{})
		var ids []uint64
		for _, alloc := range allocations {
			byLine[alloc.OrderLineID] = append(byLine[alloc.OrderLineID], alloc)
			if _, ok := uniqueStocks[alloc.StockID]; !ok {
				uniqueStocks[alloc.StockID] = struct{}{}
				ids = append(ids, alloc.StockID)
			}
		}

		var stocks []*models.Stock
		if len(ids) > 0 {
			if stocks, err = s.stock.GetStocksForUpdateByIDs(ctx, tx, ids); err != nil {
				return err
			}
		}
		byID := stocksByID(stocks)

		// 2. Consume each line's allocations in lock order until the
		// requested amount is removed or the allocations run out.
		var updates []allocation.QuantityUpdate
		removedByStock := make(map[uint64]int)
		for _, info := range lines {
			remaining := info.Quantity
			for _, alloc := range byLine[info.Line.ID] {
				if remaining == 0 {
					break
				}
				take := remaining
				if alloc.QuantityAllocated < take {
					take = alloc.QuantityAllocated
				}
				if take == 0 {
					continue
				}
				updates = append(updates, allocation.QuantityUpdate{
					AllocationID: alloc.ID,
					Quantity:     alloc.QuantityAllocated - take,
				})
				removedByStock[alloc.StockID] += take
				remaining -= take
			}
			if remaining > 0 {
				failed = append(failed, info.Line.ID)
			}
		}

		// 3. Persist everything, including partial progress on the lines
		// that fell short.
		if err = s.allocation.UpdateQuantities(ctx, tx, updates); err != nil {
			return fmt.Errorf("failed to update allocations: %w", err)
		}

		adjustments := make([]stock.QuantityAdjustment, 0, len(removedByStock))
		for stockID, removed := range removedByStock {
			adjustments = append(adjustments, stock.QuantityAdjustment{StockID: stockID, Delta: -removed})
		}
		if err = s.stock.IncrementAllocated(ctx, tx, adjustments); err != nil {
			return fmt.Errorf("failed to decrement allocated quantity: %w", err)
		}

		// 4. Queue back-in-stock notifications for stocks that crossed from
		// zero availability.
		for stockID, removed := range removedByStock {
			st := byID[stockID]
			if st == nil {
				continue
			}
			before := st.Quantity - st.QuantityAllocated
			after := st.Quantity - (st.QuantityAllocated - removed)
			if before > 0 || after <= 0 {
				continue
			}
			snapshot := *st
			snapshot.QuantityAllocated -= removed
			hooks.Register(func() {
				s.notifier.BackInStock(&snapshot)
			})
		}

		return nil
	})
	if err != nil {
		return err
	}

	if len(failed) > 0 {
		s.logger.Warn("some order lines could not be fully deallocated",
			zap.Uint64s("order_line_ids", failed))
		return &AllocationError{OrderLineIDs: failed}
	}
	return nil
}
