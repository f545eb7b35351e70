package inventory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/allocation"
	"gofalre.io/inventory/channel"
	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/preorder"
	"gofalre.io/inventory/reservation"
	"gofalre.io/inventory/stock"
	"gofalre.io/inventory/warehouse"
)

// TransactionRunner runs a function inside one atomic transaction and fires
// the registered hooks only after a successful commit.
type TransactionRunner interface {
	ExecuteTransactionWithHooks(ctx context.Context, fn func(tx pgx.Tx, hooks *driver.PostCommit) error) error
}

// StockNotifier receives availability transitions strictly after commit.
// Implementations must be fire-and-forget; their failures never reach the
// transaction that triggered them.
type StockNotifier interface {
	OutOfStock(stock *models.Stock)
	BackInStock(stock *models.Stock)
}

// AllocationOptions tunes one allocation call.
type AllocationOptions struct {
	// CollectionPointWarehouseID restricts allocation to a single
	// click-and-collect warehouse.
	CollectionPointWarehouseID *uint64

	// CheckReservations subtracts active checkout reservations from the
	// available quantity.
	CheckReservations bool

	// ExcludedCheckoutLineIDs are the checkout lines being converted right
	// now; their own reservations must not block the conversion.
	ExcludedCheckoutLineIDs []uint64
}

// DecreaseStockOptions tunes one DecreaseStock call.
type DecreaseStockOptions struct {
	UpdateStocks bool

	// AllowStockToBeExceeded lets quantity go negative instead of raising.
	AllowStockToBeExceeded bool
}

type Service interface {
	AllocateStocks(ctx context.Context, lines []*models.OrderLineInfo, channel *models.Channel, countryCode string, opts AllocationOptions) error
	AllocatePreorders(ctx context.Context, lines []*models.OrderLineInfo, channel *models.Channel, opts AllocationOptions) error
	DeallocateStock(ctx context.Context, lines []*models.OrderLineInfo) error

	IncreaseStock(ctx context.Context, line *models.OrderLineInfo, warehouseID uint64, quantity int, allocate bool) error
	DecreaseStock(ctx context.Context, lines []*models.OrderLineInfo, opts DecreaseStockOptions) error
	IncreaseAllocations(ctx context.Context, lines []*models.OrderLineInfo, channel *models.Channel, countryCode string, opts AllocationOptions) error

	DeactivatePreorderForVariant(ctx context.Context, variant *models.ProductVariant) error
}

type service struct {
	stock       stock.Repository
	allocation  allocation.Repository
	reservation reservation.Repository
	preorder    preorder.Repository
	channel     channel.Repository
	warehouse   warehouse.Repository

	transactionManager TransactionRunner
	notifier           StockNotifier
	logger             *zap.Logger
}

func NewService(
	stock stock.Repository,
	allocation allocation.Repository,
	reservation reservation.Repository,
	preorder preorder.Repository,
	channel channel.Repository,
	warehouse warehouse.Repository,
	tm TransactionRunner,
	notifier StockNotifier,
	logger *zap.Logger,
) Service {
	return &service{
		stock:              stock,
		allocation:         allocation,
		reservation:        reservation,
		preorder:           preorder,
		channel:            channel,
		warehouse:          warehouse,
		transactionManager: tm,
		notifier:           notifier,
		logger:             logger,
	}
}

// isPreorderActive reports whether the variant is still sold as preorder.
func isPreorderActive(v *models.ProductVariant, now time.Time) bool {
	return v.IsPreorder && (v.PreorderEndDate == nil || v.PreorderEndDate.After(now))
}

// trackedLines keeps lines whose variant tracks inventory and is not in
// active preorder; only those take part in regular stock allocation.
func trackedLines(lines []*models.OrderLineInfo, now time.Time) []*models.OrderLineInfo {
	eligible := make([]*models.OrderLineInfo, 0, len(lines))
	for _, info := range lines {
		if info.Variant == nil || !info.Variant.TrackInventory {
			continue
		}
		if isPreorderActive(info.Variant, now) {
			continue
		}
		eligible = append(eligible, info)
	}
	return eligible
}

func orderLineIDs(lines []*models.OrderLineInfo) []uint64 {
	ids := make([]uint64, 0, len(lines))
	for _, info := range lines {
		ids = append(ids, info.Line.ID)
	}
	return ids
}

func uniqueVariantIDs(lines []*models.OrderLineInfo) []uint64 {
	seen := make(map[uint64]struct{}, len(lines))
	ids := make([]uint64, 0, len(lines))
	for _, info := range lines {
		if _, ok := seen[info.Line.VariantID]; ok {
			continue
		}
		seen[info.Line.VariantID] = struct{}{}
		ids = append(ids, info.Line.VariantID)
	}
	return ids
}

func stockIDs(stocks []*models.Stock) []uint64 {
	ids := make([]uint64, 0, len(stocks))
	for _, st := range stocks {
		ids = append(ids, st.ID)
	}
	return ids
}

func stocksByID(stocks []*models.Stock) map[uint64]*models.Stock {
	byID := make(map[uint64]*models.Stock, len(stocks))
	for _, st := range stocks {
		byID[st.ID] = st
	}
	return byID
}
