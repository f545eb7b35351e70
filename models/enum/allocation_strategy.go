package enum

// AllocationStrategy is the channel policy used to rank candidate warehouses.
type AllocationStrategy string

const (
	// AllocationStrategyPrioritizeHighStock ranks stocks by descending free
	// quantity so a single warehouse satisfies a line whenever possible.
	AllocationStrategyPrioritizeHighStock AllocationStrategy = "prioritize_high_stock"

	// AllocationStrategyPrioritizeSortingOrder ranks stocks by the channel's
	// configured warehouse order, ignoring free quantity.
	AllocationStrategyPrioritizeSortingOrder AllocationStrategy = "prioritize_sorting_order"
)
