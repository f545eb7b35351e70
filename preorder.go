package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/preorder"
	"gofalre.io/inventory/stock"
)

// AllocatePreorders commits preorder demand against the variants' channel
// listings. The shape mirrors AllocateStocks, but availability comes from
// the channel and global thresholds instead of physical stock.
func (s *service) AllocatePreorders(ctx context.Context, lines []*models.OrderLineInfo, channel *models.Channel, opts AllocationOptions) error {
	now := time.Now()
	eligible := make([]*models.OrderLineInfo, 0, len(lines))
	for _, info := range lines {
		if info.Variant == nil || !isPreorderActive(info.Variant, now) {
			continue
		}
		eligible = append(eligible, info)
	}
	if len(eligible) == 0 {
		return nil
	}

	return s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, _ *driver.PostCommit) error {
		// 1. Lock the channel listings ascending by row id; they play the
		// role stock rows play in regular allocation.
		listings, err := s.preorder.GetListingsForUpdate(ctx, tx, uniqueVariantIDs(eligible))
		if err != nil {
			return err
		}

		listingIDs := make([]uint64, 0, len(listings))
		for _, listing := range listings {
			listingIDs = append(listingIDs, listing.ID)
		}

		// 2. Aggregate the committed and reserved quantities under lock.
		allocated := map[uint64]int{}
		if len(listingIDs) > 0 {
			if allocated, err = s.preorder.AllocatedByListing(ctx, tx, listingIDs); err != nil {
				return err
			}
		}

		reserved := map[uint64]int{}
		if opts.CheckReservations && len(listingIDs) > 0 {
			if reserved, err = s.reservation.ReservedByListing(ctx, tx, listingIDs, opts.ExcludedCheckoutLineIDs); err != nil {
				return err
			}
		}

		// 3. Plan against the budgets; any shortfall aborts everything.
		planned, insufficient := planPreorderAllocations(eligible, channel.ID, listings, allocated, reserved)
		if len(insufficient) > 0 {
			return &InsufficientStockError{Lines: insufficient}
		}

		allocations := make([]*models.PreorderAllocation, 0, len(planned))
		for _, plan := range planned {
			allocations = append(allocations, &models.PreorderAllocation{
				OrderLineID:      plan.Line.ID,
				ChannelListingID: plan.ListingID,
				Quantity:         plan.Quantity,
			})
		}
		if err = s.preorder.BulkCreate(ctx, tx, allocations); err != nil {
			return fmt.Errorf("failed to create preorder allocations: %w", err)
		}

		s.logger.Info("preorders allocated",
			zap.String("channel", channel.Slug),
			zap.Int("lines", len(eligible)))

		return nil
	})
}

// DeactivatePreorderForVariant migrates every outstanding preorder
// allocation of the variant into real stock, then clears the variant's
// preorder state. Runs once when a variant stops being sold as preorder.
func (s *service) DeactivatePreorderForVariant(ctx context.Context, variant *models.ProductVariant) error {
	return s.transactionManager.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, _ *driver.PostCommit) error {
		details, err := s.preorder.GetDetailsForVariantForUpdate(ctx, tx, variant.ID)
		if err != nil {
			return err
		}

		migrated := make([]uint64, 0, len(details))
		for _, detail := range details {
			wh, err := s.resolvePreorderWarehouse(ctx, tx, detail)
			if err != nil {
				return err
			}

			st, err := s.stock.GetOrCreateForUpdate(ctx, tx, detail.OrderLine.VariantID, wh.ID)
			if err != nil {
				return err
			}
			if err = s.stock.IncrementAllocated(ctx, tx, []stock.QuantityAdjustment{{StockID: st.ID, Delta: detail.Allocation.Quantity}}); err != nil {
				return err
			}
			if err = s.allocation.IncreaseOrCreate(ctx, tx, detail.OrderLine.ID, st.ID, detail.Allocation.Quantity); err != nil {
				return err
			}
			migrated = append(migrated, detail.Allocation.ID)
		}

		if err = s.preorder.DeleteByIDs(ctx, tx, migrated); err != nil {
			return err
		}
		return s.preorder.ClearPreorderFields(ctx, tx, variant.ID)
	})
}

// resolvePreorderWarehouse picks the warehouse a finalized preorder ships
// from: a warehouse covering the order's shipping method when there is one,
// otherwise the first warehouse whose shipping zone covers the order's
// country.
func (s *service) resolvePreorderWarehouse(ctx context.Context, tx pgx.Tx, detail *preorder.AllocationDetail) (*models.Warehouse, error) {
	if detail.ShippingMethodID != nil {
		warehouses, err := s.warehouse.ForShippingMethod(ctx, tx, *detail.ShippingMethodID)
		if err != nil {
			return nil, err
		}
		if len(warehouses) > 0 {
			return warehouses[0], nil
		}
	}

	warehouses, err := s.warehouse.ForCountry(ctx, tx, detail.CountryCode)
	if err != nil {
		return nil, err
	}
	if len(warehouses) > 0 {
		return warehouses[0], nil
	}

	return nil, &PreorderAllocationError{OrderLineID: detail.OrderLine.ID}
}
