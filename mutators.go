package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/stock"
)

// IncreaseStock receives quantity into the warehouse's stock row for the
// line's variant, creating the row if needed. With allocate set, the same
// amount is also committed to the line.
func (s *service) IncreaseStock(ctx context.Context, line *models.OrderLineInfo, warehouseID uint64, quantity int, allocate bool) error {
	return s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, _ *driver.PostCommit) error {
		st, err := s.stock.GetOrCreateForUpdate(ctx, tx, line.Line.VariantID, warehouseID)
		if err != nil {
			return err
		}

		if err = s.stock.IncrementQuantities(ctx, tx, []stock.QuantityAdjustment{{StockID: st.ID, Delta: quantity}}); err != nil {
			return fmt.Errorf("failed to increase stock quantity: %w", err)
		}

		if !allocate {
			return nil
		}

		if err = s.allocation.IncreaseOrCreate(ctx, tx, line.Line.ID, st.ID, quantity); err != nil {
			return err
		}
		return s.stock.IncrementAllocated(ctx, tx, []stock.QuantityAdjustment{{StockID: st.ID, Delta: quantity}})
	})
}

// DecreaseStock removes consumed quantity from the lines' warehouses. The
// lines' allocations are unwound first; a line whose allocations cannot
// cover the requested amount has its allocation forced to zero instead of
// failing the operation. Quantity subtraction is all-or-nothing: violations
// are collected across every line and raised before any write.
func (s *service) DecreaseStock(ctx context.Context, lines []*models.OrderLineInfo, opts DecreaseStockOptions) error {
	// 1. Unwind allocations; an unreconciled shortfall is a correctable
	// bookkeeping anomaly, not a reason to fail the caller.
	if err := s.DeallocateStock(ctx, lines); err != nil {
		var allocErr *AllocationError
		if !errors.As(err, &allocErr) {
			return err
		}

		s.logger.Warn("forcing unreconciled allocations to zero",
			zap.Uint64s("order_line_ids", allocErr.OrderLineIDs))

		err = s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, _ *driver.PostCommit) error {
			return s.allocation.ZeroOutForOrderLines(ctx, tx, allocErr.OrderLineIDs)
		})
		if err != nil {
			return err
		}
	}

	if !opts.UpdateStocks {
		return nil
	}

	// 2. Subtract the consumed quantity under lock.
	return s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, hooks *driver.PostCommit) error {
		var variantIDs, warehouseIDs []uint64
		for _, info := range lines {
			if info.WarehouseID == nil {
				continue
			}
			variantIDs = append(variantIDs, info.Line.VariantID)
			warehouseIDs = append(warehouseIDs, *info.WarehouseID)
		}
		if len(variantIDs) == 0 {
			return nil
		}

		stocks, err := s.stock.GetStocksForUpdateByPairs(ctx, tx, variantIDs, warehouseIDs)
		if err != nil {
			return err
		}

		type pair struct{ variantID, warehouseID uint64 }
		byPair := make(map[pair]*models.Stock, len(stocks))
		for _, st := range stocks {
			byPair[pair{st.VariantID, st.WarehouseID}] = st
		}

		// 3. Collect every violation before touching any row.
		var insufficient []InsufficientStockLine
		deltas := make(map[uint64]int)
		for _, info := range lines {
			if info.WarehouseID == nil {
				continue
			}
			st := byPair[pair{info.Line.VariantID, *info.WarehouseID}]
			if st == nil {
				// no stock row means nothing on hand for the pair
				if !opts.AllowStockToBeExceeded {
					lineID := info.Line.ID
					insufficient = append(insufficient, InsufficientStockLine{
						VariantID:   info.Line.VariantID,
						OrderLineID: &lineID,
						WarehouseID: info.WarehouseID,
					})
				}
				continue
			}
			if st.Quantity-deltas[st.ID]-info.Quantity < 0 && !opts.AllowStockToBeExceeded {
				lineID := info.Line.ID
				insufficient = append(insufficient, InsufficientStockLine{
					VariantID:         info.Line.VariantID,
					OrderLineID:       &lineID,
					WarehouseID:       info.WarehouseID,
					AvailableQuantity: st.Quantity - deltas[st.ID],
				})
				continue
			}
			deltas[st.ID] += info.Quantity
		}
		if len(insufficient) > 0 {
			return &InsufficientStockError{Lines: insufficient}
		}

		adjustments := make([]stock.QuantityAdjustment, 0, len(deltas))
		for stockID, delta := range deltas {
			adjustments = append(adjustments, stock.QuantityAdjustment{StockID: stockID, Delta: -delta})
		}
		if err = s.stock.IncrementQuantities(ctx, tx, adjustments); err != nil {
			return fmt.Errorf("failed to decrease stock quantity: %w", err)
		}

		// 4. Queue out-of-stock notifications for stocks left without
		// available quantity.
		byID := stocksByID(stocks)
		for stockID, delta := range deltas {
			st := byID[stockID]
			newQuantity := st.Quantity - delta
			if newQuantity-st.QuantityAllocated > 0 {
				continue
			}
			snapshot := *st
			snapshot.Quantity = newQuantity
			hooks.Register(func() {
				s.notifier.OutOfStock(&snapshot)
			})
		}

		return nil
	})
}

// IncreaseAllocations grows the lines' committed quantity. It is an undo
// followed by a redo through the normal allocation path — not an incremental
// patch — so locking order and strategy ranking stay uniform across call
// sites.
func (s *service) IncreaseAllocations(ctx context.Context, lines []*models.OrderLineInfo, channel *models.Channel, countryCode string, opts AllocationOptions) error {
	eligible := trackedLines(lines, time.Now())
	if len(eligible) == 0 {
		return nil
	}

	return s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, hooks *driver.PostCommit) error {
		// 1. Lock and collect the lines' current allocations.
		allocations, err := s.allocation.GetForOrderLinesForUpdate(ctx, tx, orderLineIDs(eligible))
		if err != nil {
			return err
		}

		heldByLine := make(map[uint64]int)
		returnedByStock := make(map[uint64]int)
		ids := make([]uint64, 0, len(allocations))
		for _, alloc := range allocations {
			heldByLine[alloc.OrderLineID] += alloc.QuantityAllocated
			returnedByStock[alloc.StockID] += alloc.QuantityAllocated
			ids = append(ids, alloc.ID)
		}

		// 2. Return the held quantity to the stocks and drop the rows.
		adjustments := make([]stock.QuantityAdjustment, 0, len(returnedByStock))
		for stockID, returned := range returnedByStock {
			adjustments = append(adjustments, stock.QuantityAdjustment{StockID: stockID, Delta: -returned})
		}
		if err = s.stock.IncrementAllocated(ctx, tx, adjustments); err != nil {
			return fmt.Errorf("failed to return allocated quantity: %w", err)
		}
		if err = s.allocation.DeleteByIDs(ctx, tx, ids); err != nil {
			return err
		}

		// 3. Redo with the previously held amount folded into each line's
		// request.
		combined := make([]*models.OrderLineInfo, 0, len(eligible))
		for _, info := range eligible {
			clone := *info
			clone.Quantity = info.Quantity + heldByLine[info.Line.ID]
			combined = append(combined, &clone)
		}
		return s.allocateStocks(ctx, tx, hooks, combined, channel, countryCode, opts)
	})
}
