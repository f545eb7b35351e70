package inventory

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/allocation"
	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
	"gofalre.io/inventory/preorder"
	"gofalre.io/inventory/stock"
)

// fakeTxRunner mimics the transaction manager's contract: the body runs
// once, and hooks fire only when it returns nil.
type fakeTxRunner struct {
	calls int
}

func (r *fakeTxRunner) ExecuteTransactionWithHooks(ctx context.Context, fn func(tx pgx.Tx, hooks *driver.PostCommit) error) error {
	r.calls++
	hooks := new(driver.PostCommit)
	if err := fn(nil, hooks); err != nil {
		return err
	}
	hooks.Invoke()
	return nil
}

type recordingNotifier struct {
	outOfStock  []*models.Stock
	backInStock []*models.Stock
}

func (n *recordingNotifier) OutOfStock(st *models.Stock)  { n.outOfStock = append(n.outOfStock, st) }
func (n *recordingNotifier) BackInStock(st *models.Stock) { n.backInStock = append(n.backInStock, st) }

type fakeStockRepo struct {
	stocks []*models.Stock
	nextID uint64
}

func (f *fakeStockRepo) add(variantID, warehouseID uint64, quantity, allocated int) *models.Stock {
	f.nextID++
	st := &models.Stock{
		ID:                f.nextID,
		VariantID:         variantID,
		WarehouseID:       warehouseID,
		Quantity:          quantity,
		QuantityAllocated: allocated,
	}
	f.stocks = append(f.stocks, st)
	return st
}

func (f *fakeStockRepo) find(stockID uint64) *models.Stock {
	for _, st := range f.stocks {
		if st.ID == stockID {
			return st
		}
	}
	return nil
}

// snapshot returns copies sorted ascending by id, the way the locking
// queries return rows.
func snapshot(stocks []*models.Stock) []*models.Stock {
	out := make([]*models.Stock, 0, len(stocks))
	for _, st := range stocks {
		clone := *st
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (f *fakeStockRepo) GetStocksForUpdate(_ context.Context, _ pgx.Tx, variantIDs, warehouseIDs []uint64) ([]*models.Stock, error) {
	var matched []*models.Stock
	for _, st := range f.stocks {
		if contains(variantIDs, st.VariantID) && contains(warehouseIDs, st.WarehouseID) {
			matched = append(matched, st)
		}
	}
	return snapshot(matched), nil
}

func (f *fakeStockRepo) GetStocksForUpdateByIDs(_ context.Context, _ pgx.Tx, stockIDs []uint64) ([]*models.Stock, error) {
	var matched []*models.Stock
	for _, st := range f.stocks {
		if contains(stockIDs, st.ID) {
			matched = append(matched, st)
		}
	}
	return snapshot(matched), nil
}

func (f *fakeStockRepo) GetStocksForUpdateByPairs(_ context.Context, _ pgx.Tx, variantIDs, warehouseIDs []uint64) ([]*models.Stock, error) {
	var matched []*models.Stock
	for i := range variantIDs {
		for _, st := range f.stocks {
			if st.VariantID == variantIDs[i] && st.WarehouseID == warehouseIDs[i] {
				matched = append(matched, st)
			}
		}
	}
	return snapshot(matched), nil
}

func (f *fakeStockRepo) GetOrCreateForUpdate(_ context.Context, _ pgx.Tx, variantID, warehouseID uint64) (*models.Stock, error) {
	for _, st := range f.stocks {
		if st.VariantID == variantID && st.WarehouseID == warehouseID {
			clone := *st
			return &clone, nil
		}
	}
	st := f.add(variantID, warehouseID, 0, 0)
	clone := *st
	return &clone, nil
}

func (f *fakeStockRepo) IncrementQuantities(_ context.Context, _ pgx.Tx, adjustments []stock.QuantityAdjustment) error {
	for _, adj := range adjustments {
		if st := f.find(adj.StockID); st != nil {
			st.Quantity += adj.Delta
		}
	}
	return nil
}

func (f *fakeStockRepo) IncrementAllocated(_ context.Context, _ pgx.Tx, adjustments []stock.QuantityAdjustment) error {
	for _, adj := range adjustments {
		if st := f.find(adj.StockID); st != nil {
			st.QuantityAllocated += adj.Delta
		}
	}
	return nil
}

func (f *fakeStockRepo) GetStock(_ context.Context, _ pgx.Tx, stockID uint64) (*models.Stock, error) {
	if st := f.find(stockID); st != nil {
		clone := *st
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeAllocationRepo struct {
	allocations []*models.Allocation
	nextID      uint64
}

func (f *fakeAllocationRepo) add(orderLineID, stockID uint64, quantity int) *models.Allocation {
	f.nextID++
	alloc := &models.Allocation{
		ID:                f.nextID,
		OrderLineID:       orderLineID,
		StockID:           stockID,
		QuantityAllocated: quantity,
	}
	f.allocations = append(f.allocations, alloc)
	return alloc
}

func (f *fakeAllocationRepo) forLine(orderLineID uint64) []*models.Allocation {
	var out []*models.Allocation
	for _, alloc := range f.allocations {
		if alloc.OrderLineID == orderLineID {
			out = append(out, alloc)
		}
	}
	return out
}

func (f *fakeAllocationRepo) GetForOrderLinesForUpdate(_ context.Context, _ pgx.Tx, orderLineIDs []uint64) ([]*models.Allocation, error) {
	var matched []*models.Allocation
	for _, alloc := range f.allocations {
		if contains(orderLineIDs, alloc.OrderLineID) {
			clone := *alloc
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StockID != matched[j].StockID {
			return matched[i].StockID < matched[j].StockID
		}
		return matched[i].ID < matched[j].ID
	})
	return matched, nil
}

func (f *fakeAllocationRepo) AllocatedByStock(_ context.Context, _ pgx.Tx, stockIDs []uint64) (map[uint64]int, error) {
	totals := make(map[uint64]int)
	for _, alloc := range f.allocations {
		if contains(stockIDs, alloc.StockID) {
			totals[alloc.StockID] += alloc.QuantityAllocated
		}
	}
	return totals, nil
}

func (f *fakeAllocationRepo) BulkCreate(_ context.Context, _ pgx.Tx, allocations []*models.Allocation) error {
	for _, alloc := range allocations {
		f.add(alloc.OrderLineID, alloc.StockID, alloc.QuantityAllocated)
	}
	return nil
}

func (f *fakeAllocationRepo) IncreaseOrCreate(_ context.Context, _ pgx.Tx, orderLineID, stockID uint64, quantity int) error {
	for _, alloc := range f.allocations {
		if alloc.OrderLineID == orderLineID && alloc.StockID == stockID {
			alloc.QuantityAllocated += quantity
			return nil
		}
	}
	f.add(orderLineID, stockID, quantity)
	return nil
}

func (f *fakeAllocationRepo) UpdateQuantities(_ context.Context, _ pgx.Tx, updates []allocation.QuantityUpdate) error {
	for _, upd := range updates {
		for _, alloc := range f.allocations {
			if alloc.ID == upd.AllocationID {
				alloc.QuantityAllocated = upd.Quantity
			}
		}
	}
	return nil
}

func (f *fakeAllocationRepo) DeleteByIDs(_ context.Context, _ pgx.Tx, allocationIDs []uint64) error {
	var kept []*models.Allocation
	for _, alloc := range f.allocations {
		if !contains(allocationIDs, alloc.ID) {
			kept = append(kept, alloc)
		}
	}
	f.allocations = kept
	return nil
}

func (f *fakeAllocationRepo) ZeroOutForOrderLines(_ context.Context, _ pgx.Tx, orderLineIDs []uint64) error {
	for _, alloc := range f.allocations {
		if contains(orderLineIDs, alloc.OrderLineID) {
			alloc.QuantityAllocated = 0
		}
	}
	return nil
}

type fakeReservation struct {
	targetID       uint64
	checkoutLineID uint64
	quantity       int
}

type fakeReservationRepo struct {
	stockReservations   []fakeReservation
	listingReservations []fakeReservation
}

func sumReservations(reservations []fakeReservation, targetIDs, exclude []uint64) map[uint64]int {
	totals := make(map[uint64]int)
	for _, res := range reservations {
		if !contains(targetIDs, res.targetID) || contains(exclude, res.checkoutLineID) {
			continue
		}
		totals[res.targetID] += res.quantity
	}
	return totals
}

func (f *fakeReservationRepo) ReservedByStock(_ context.Context, _ pgx.Tx, stockIDs, excludeCheckoutLineIDs []uint64) (map[uint64]int, error) {
	return sumReservations(f.stockReservations, stockIDs, excludeCheckoutLineIDs), nil
}

func (f *fakeReservationRepo) ReservedByListing(_ context.Context, _ pgx.Tx, listingIDs, excludeCheckoutLineIDs []uint64) (map[uint64]int, error) {
	return sumReservations(f.listingReservations, listingIDs, excludeCheckoutLineIDs), nil
}

type fakePreorderRepo struct {
	listings    []*models.VariantChannelListing
	allocations []*models.PreorderAllocation
	details     []*preorder.AllocationDetail
	cleared     []uint64
	nextID      uint64
}

func (f *fakePreorderRepo) GetListingsForUpdate(_ context.Context, _ pgx.Tx, variantIDs []uint64) ([]*models.VariantChannelListing, error) {
	var matched []*models.VariantChannelListing
	for _, listing := range f.listings {
		if contains(variantIDs, listing.VariantID) {
			matched = append(matched, listing)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func (f *fakePreorderRepo) AllocatedByListing(_ context.Context, _ pgx.Tx, listingIDs []uint64) (map[uint64]int, error) {
	totals := make(map[uint64]int)
	for _, alloc := range f.allocations {
		if contains(listingIDs, alloc.ChannelListingID) {
			totals[alloc.ChannelListingID] += alloc.Quantity
		}
	}
	return totals, nil
}

func (f *fakePreorderRepo) BulkCreate(_ context.Context, _ pgx.Tx, allocations []*models.PreorderAllocation) error {
	for _, alloc := range allocations {
		f.nextID++
		f.allocations = append(f.allocations, &models.PreorderAllocation{
			ID:               f.nextID,
			OrderLineID:      alloc.OrderLineID,
			ChannelListingID: alloc.ChannelListingID,
			Quantity:         alloc.Quantity,
		})
	}
	return nil
}

func (f *fakePreorderRepo) GetDetailsForVariantForUpdate(_ context.Context, _ pgx.Tx, variantID uint64) ([]*preorder.AllocationDetail, error) {
	var matched []*preorder.AllocationDetail
	for _, detail := range f.details {
		if detail.OrderLine.VariantID == variantID {
			matched = append(matched, detail)
		}
	}
	return matched, nil
}

func (f *fakePreorderRepo) DeleteByIDs(_ context.Context, _ pgx.Tx, allocationIDs []uint64) error {
	var kept []*models.PreorderAllocation
	for _, alloc := range f.allocations {
		if !contains(allocationIDs, alloc.ID) {
			kept = append(kept, alloc)
		}
	}
	f.allocations = kept
	return nil
}

func (f *fakePreorderRepo) ClearPreorderFields(_ context.Context, _ pgx.Tx, variantID uint64) error {
	f.cleared = append(f.cleared, variantID)
	return nil
}

type fakeChannelRepo struct {
	channel        *models.Channel
	warehouseOrder map[uint64]int
}

func (f *fakeChannelRepo) GetBySlug(_ context.Context, _ pgx.Tx, slug string) (*models.Channel, error) {
	if f.channel == nil || f.channel.Slug != slug {
		return nil, pgx.ErrNoRows
	}
	return f.channel, nil
}

func (f *fakeChannelRepo) WarehouseOrder(_ context.Context, _ pgx.Tx, _ uint64) (map[uint64]int, error) {
	return f.warehouseOrder, nil
}

type fakeWarehouseRepo struct {
	applicable       []uint64
	byShippingMethod map[uint64][]*models.Warehouse
	byCountry        map[string][]*models.Warehouse
}

func (f *fakeWarehouseRepo) ApplicableForChannelAndCountry(_ context.Context, _ pgx.Tx, _ uint64, _ string) ([]uint64, error) {
	return f.applicable, nil
}

func (f *fakeWarehouseRepo) ForShippingMethod(_ context.Context, _ pgx.Tx, shippingMethodID uint64) ([]*models.Warehouse, error) {
	return f.byShippingMethod[shippingMethodID], nil
}

func (f *fakeWarehouseRepo) ForCountry(_ context.Context, _ pgx.Tx, countryCode string) ([]*models.Warehouse, error) {
	return f.byCountry[countryCode], nil
}

type fixture struct {
	stocks       *fakeStockRepo
	allocations  *fakeAllocationRepo
	reservations *fakeReservationRepo
	preorders    *fakePreorderRepo
	channels     *fakeChannelRepo
	warehouses   *fakeWarehouseRepo
	tx           *fakeTxRunner
	notifier     *recordingNotifier
	svc          Service
}

func newFixture() *fixture {
	f := &fixture{
		stocks:       &fakeStockRepo{},
		allocations:  &fakeAllocationRepo{},
		reservations: &fakeReservationRepo{},
		preorders:    &fakePreorderRepo{},
		channels:     &fakeChannelRepo{},
		warehouses:   &fakeWarehouseRepo{},
		tx:           &fakeTxRunner{},
		notifier:     &recordingNotifier{},
	}
	f.svc = NewService(f.stocks, f.allocations, f.reservations, f.preorders, f.channels, f.warehouses, f.tx, f.notifier, zap.NewNop())
	return f
}

func demandLine(lineID, variantID uint64, quantity int) *models.OrderLineInfo {
	return &models.OrderLineInfo{
		Line:     &models.OrderLine{ID: lineID, OrderID: 1, VariantID: variantID, Quantity: quantity},
		Variant:  &models.ProductVariant{ID: variantID, TrackInventory: true},
		Quantity: quantity,
	}
}

func salesChannel(strategy enum.AllocationStrategy) *models.Channel {
	return &models.Channel{ID: 1, Slug: "web", AllocationStrategy: strategy}
}

func uint64Ptr(v uint64) *uint64 { return &v }
func intPtr(v int) *int          { return &v }
