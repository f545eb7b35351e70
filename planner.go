package inventory

import (
	"math"

	"gofalre.io/inventory/models"
)

// plannedAllocation is one pending commitment produced by the planner.
type plannedAllocation struct {
	Line     *models.OrderLine
	StockID  uint64
	Quantity int
}

// plannedPreorder is the preorder analogue of plannedAllocation.
type plannedPreorder struct {
	Line      *models.OrderLine
	ListingID uint64
	Quantity  int
}

// planAllocations walks each line's ranked stocks and greedily consumes the
// available quantity (quantity minus allocated minus reserved) until demand
// is exhausted. Lines that cannot be fully satisfied are collected, never
// raised early, so the caller sees the complete set of failures.
func planAllocations(
	lines []*models.OrderLineInfo,
	stocksByVariant map[uint64][]*models.Stock,
	allocated map[uint64]int,
	reserved map[uint64]int,
) ([]plannedAllocation, []InsufficientStockLine) {
	// Earlier lines consume availability seen by later lines of the same
	// variant; track consumption locally without mutating the caller's map.
	consumed := make(map[uint64]int)

	var planned []plannedAllocation
	var insufficient []InsufficientStockLine

	for _, info := range lines {
		remaining := info.Quantity

		for _, st := range stocksByVariant[info.Line.VariantID] {
			if remaining == 0 {
				break
			}
			available := st.Quantity - allocated[st.ID] - reserved[st.ID] - consumed[st.ID]
			if available <= 0 {
				continue
			}
			take := remaining
			if available < take {
				take = available
			}
			planned = append(planned, plannedAllocation{
				Line:     info.Line,
				StockID:  st.ID,
				Quantity: take,
			})
			consumed[st.ID] += take
			remaining -= take
		}

		if remaining > 0 {
			lineID := info.Line.ID
			insufficient = append(insufficient, InsufficientStockLine{
				VariantID:         info.Line.VariantID,
				OrderLineID:       &lineID,
				WarehouseID:       info.WarehouseID,
				AvailableQuantity: info.Quantity - remaining,
			})
		}
	}

	return planned, insufficient
}

// planPreorderAllocations draws each line against two independent budgets:
// the channel listing threshold and the variant's global threshold. A nil
// threshold means unlimited. A line fails when it would exceed either budget;
// like the stock planner, failures are accumulated, not raised early.
func planPreorderAllocations(
	lines []*models.OrderLineInfo,
	channelID uint64,
	listings []*models.VariantChannelListing,
	allocated map[uint64]int,
	reserved map[uint64]int,
) ([]plannedPreorder, []InsufficientStockLine) {
	listingForChannel := make(map[uint64]*models.VariantChannelListing)
	listingsByVariant := make(map[uint64][]*models.VariantChannelListing)
	for _, listing := range listings {
		listingsByVariant[listing.VariantID] = append(listingsByVariant[listing.VariantID], listing)
		if listing.ChannelID == channelID {
			listingForChannel[listing.VariantID] = listing
		}
	}

	consumed := make(map[uint64]int)

	var planned []plannedPreorder
	var insufficient []InsufficientStockLine

	for _, info := range lines {
		variantID := info.Line.VariantID

		listing := listingForChannel[variantID]
		if listing == nil {
			lineID := info.Line.ID
			insufficient = append(insufficient, InsufficientStockLine{
				VariantID:   variantID,
				OrderLineID: &lineID,
			})
			continue
		}

		budget := math.MaxInt
		if listing.PreorderQuantityThreshold != nil {
			budget = *listing.PreorderQuantityThreshold - allocated[listing.ID] - reserved[listing.ID] - consumed[listing.ID]
		}

		if info.Variant != nil && info.Variant.PreorderGlobalThreshold != nil {
			global := *info.Variant.PreorderGlobalThreshold
			for _, l := range listingsByVariant[variantID] {
				global -= allocated[l.ID] + reserved[l.ID] + consumed[l.ID]
			}
			if global < budget {
				budget = global
			}
		}

		if info.Quantity > budget {
			if budget < 0 {
				budget = 0
			}
			lineID := info.Line.ID
			insufficient = append(insufficient, InsufficientStockLine{
				VariantID:         variantID,
				OrderLineID:       &lineID,
				AvailableQuantity: budget,
			})
			continue
		}

		planned = append(planned, plannedPreorder{
			Line:      info.Line,
			ListingID: listing.ID,
			Quantity:  info.Quantity,
		})
		consumed[listing.ID] += info.Quantity
	}

	return planned, insufficient
}
