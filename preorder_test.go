package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
	"gofalre.io/inventory/preorder"
)

func TestAllocatePreordersCreatesAllocation(t *testing.T) {
	f := newFixture()
	f.preorders.listings = []*models.VariantChannelListing{
		{ID: 10, VariantID: 100, ChannelID: 1, PreorderQuantityThreshold: intPtr(5)},
	}

	err := f.svc.AllocatePreorders(context.Background(),
		[]*models.OrderLineInfo{preorderLine(1, 100, 3, nil)},
		salesChannel(enum.AllocationStrategyPrioritizeHighStock), AllocationOptions{})

	require.NoError(t, err)
	require.Len(t, f.preorders.allocations, 1)
	assert.Equal(t, uint64(10), f.preorders.allocations[0].ChannelListingID)
	assert.Equal(t, 3, f.preorders.allocations[0].Quantity)
}

func TestAllocatePreordersGlobalThresholdSpansChannels(t *testing.T) {
	f := newFixture()
	f.preorders.listings = []*models.VariantChannelListing{
		{ID: 10, VariantID: 100, ChannelID: 1},
		{ID: 11, VariantID: 100, ChannelID: 2},
	}
	// 4 already committed across both channels against a global budget of 10
	f.preorders.allocations = []*models.PreorderAllocation{
		{ID: 1, OrderLineID: 90, ChannelListingID: 10, Quantity: 1},
		{ID: 2, OrderLineID: 91, ChannelListingID: 11, Quantity: 3},
	}
	f.preorders.nextID = 2

	err := f.svc.AllocatePreorders(context.Background(),
		[]*models.OrderLineInfo{preorderLine(1, 100, 7, intPtr(10))},
		salesChannel(enum.AllocationStrategyPrioritizeHighStock), AllocationOptions{})

	var insufficientErr *InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	require.Len(t, insufficientErr.Lines, 1)
	assert.Equal(t, 6, insufficientErr.Lines[0].AvailableQuantity)
	assert.Len(t, f.preorders.allocations, 2)

	require.NoError(t, f.svc.AllocatePreorders(context.Background(),
		[]*models.OrderLineInfo{preorderLine(1, 100, 6, intPtr(10))},
		salesChannel(enum.AllocationStrategyPrioritizeHighStock), AllocationOptions{}))
	assert.Len(t, f.preorders.allocations, 3)
}

func TestAllocatePreordersRespectsReservations(t *testing.T) {
	f := newFixture()
	f.preorders.listings = []*models.VariantChannelListing{
		{ID: 10, VariantID: 100, ChannelID: 1, PreorderQuantityThreshold: intPtr(5)},
	}
	f.reservations.listingReservations = []fakeReservation{
		{targetID: 10, checkoutLineID: 77, quantity: 3},
	}

	err := f.svc.AllocatePreorders(context.Background(),
		[]*models.OrderLineInfo{preorderLine(1, 100, 4, nil)},
		salesChannel(enum.AllocationStrategyPrioritizeHighStock),
		AllocationOptions{CheckReservations: true})

	var insufficientErr *InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 2, insufficientErr.Lines[0].AvailableQuantity)
}

func TestAllocatePreordersSkipsInactiveVariants(t *testing.T) {
	f := newFixture()

	ended := time.Now().Add(-time.Hour)
	expired := preorderLine(1, 100, 3, nil)
	expired.Variant.PreorderEndDate = &ended

	regular := demandLine(2, 200, 3)

	err := f.svc.AllocatePreorders(context.Background(),
		[]*models.OrderLineInfo{expired, regular},
		salesChannel(enum.AllocationStrategyPrioritizeHighStock), AllocationOptions{})

	require.NoError(t, err)
	assert.Zero(t, f.tx.calls)
}

func TestDeactivatePreorderMigratesToStock(t *testing.T) {
	f := newFixture()
	f.warehouses.byShippingMethod = map[uint64][]*models.Warehouse{
		7: {{ID: 20, Slug: "east"}},
	}
	f.preorders.allocations = []*models.PreorderAllocation{
		{ID: 1, OrderLineID: 50, ChannelListingID: 10, Quantity: 4},
	}
	f.preorders.details = []*preorder.AllocationDetail{
		{
			Allocation:       f.preorders.allocations[0],
			OrderLine:        &models.OrderLine{ID: 50, OrderID: 5, VariantID: 100, Quantity: 4},
			ShippingMethodID: uint64Ptr(7),
			CountryCode:      "US",
		},
	}

	err := f.svc.DeactivatePreorderForVariant(context.Background(),
		&models.ProductVariant{ID: 100, IsPreorder: true})

	require.NoError(t, err)

	// a stock row in the shipping method's warehouse carries the quantity now
	require.Len(t, f.stocks.stocks, 1)
	st := f.stocks.stocks[0]
	assert.Equal(t, uint64(20), st.WarehouseID)
	assert.Equal(t, 4, st.QuantityAllocated)

	require.Len(t, f.allocations.allocations, 1)
	assert.Equal(t, uint64(50), f.allocations.allocations[0].OrderLineID)
	assert.Equal(t, 4, f.allocations.allocations[0].QuantityAllocated)

	assert.Empty(t, f.preorders.allocations)
	assert.Equal(t, []uint64{100}, f.preorders.cleared)
}

func TestDeactivatePreorderFallsBackToCountry(t *testing.T) {
	f := newFixture()
	f.warehouses.byCountry = map[string][]*models.Warehouse{
		"DE": {{ID: 21, Slug: "eu"}},
	}
	f.preorders.allocations = []*models.PreorderAllocation{
		{ID: 1, OrderLineID: 50, ChannelListingID: 10, Quantity: 2},
	}
	f.preorders.details = []*preorder.AllocationDetail{
		{
			Allocation:  f.preorders.allocations[0],
			OrderLine:   &models.OrderLine{ID: 50, OrderID: 5, VariantID: 100, Quantity: 2},
			CountryCode: "DE",
		},
	}

	err := f.svc.DeactivatePreorderForVariant(context.Background(),
		&models.ProductVariant{ID: 100, IsPreorder: true})

	require.NoError(t, err)
	require.Len(t, f.stocks.stocks, 1)
	assert.Equal(t, uint64(21), f.stocks.stocks[0].WarehouseID)
}

func TestDeactivatePreorderNoWarehouseFails(t *testing.T) {
	f := newFixture()
	f.preorders.allocations = []*models.PreorderAllocation{
		{ID: 1, OrderLineID: 50, ChannelListingID: 10, Quantity: 2},
	}
	f.preorders.details = []*preorder.AllocationDetail{
		{
			Allocation:  f.preorders.allocations[0],
			OrderLine:   &models.OrderLine{ID: 50, OrderID: 5, VariantID: 100, Quantity: 2},
			CountryCode: "FR",
		},
	}

	err := f.svc.DeactivatePreorderForVariant(context.Background(),
		&models.ProductVariant{ID: 100, IsPreorder: true})

	var preorderErr *PreorderAllocationError
	require.ErrorAs(t, err, &preorderErr)
	assert.Equal(t, uint64(50), preorderErr.OrderLineID)
	assert.Empty(t, f.preorders.cleared)
}
