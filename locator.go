package inventory

import (
	"math"
	"sort"

	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
)

// sortStocksForChannel ranks candidate stocks by the channel's allocation
// strategy. A collection-point warehouse always sorts first, regardless of
// strategy. The sort is stable, so stocks with equal rank keep the order
// they were locked in (ascending row id).
func sortStocksForChannel(
	stocks []*models.Stock,
	strategy enum.AllocationStrategy,
	allocated map[uint64]int,
	warehouseOrder map[uint64]int,
	collectionPointID *uint64,
) []*models.Stock {
	ranked := make([]*models.Stock, len(stocks))
	copy(ranked, stocks)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]

		if collectionPointID != nil {
			aCollect := a.WarehouseID == *collectionPointID
			bCollect := b.WarehouseID == *collectionPointID
			if aCollect != bCollect {
				return aCollect
			}
		}

		switch strategy {
		case enum.AllocationStrategyPrioritizeSortingOrder:
			return warehousePosition(warehouseOrder, a.WarehouseID) < warehousePosition(warehouseOrder, b.WarehouseID)
		default:
			return freeQuantity(a, allocated) > freeQuantity(b, allocated)
		}
	})

	return ranked
}

// groupStocksByVariant splits a ranked stock list into per-variant rankings,
// preserving order.
func groupStocksByVariant(stocks []*models.Stock) map[uint64][]*models.Stock {
	byVariant := make(map[uint64][]*models.Stock)
	for _, st := range stocks {
		byVariant[st.VariantID] = append(byVariant[st.VariantID], st)
	}
	return byVariant
}

func freeQuantity(st *models.Stock, allocated map[uint64]int) int {
	return st.Quantity - allocated[st.ID]
}

// warehousePosition returns the warehouse's position in the channel order;
// warehouses absent from the order sort last.
func warehousePosition(order map[uint64]int, warehouseID uint64) int {
	if pos, ok := order[warehouseID]; ok {
		return pos
	}
	return math.MaxInt
}
