package inventory

import (
	"fmt"
	"sort"
	"strings"
)

// InsufficientStockLine describes one demand line that could not be satisfied.
type InsufficientStockLine struct {
	VariantID         uint64
	OrderLineID       *uint64
	WarehouseID       *uint64
	AvailableQuantity int
}

// InsufficientStockError aborts an allocation. It always carries every
// unsatisfiable line of the call, never just the first one found.
type InsufficientStockError struct {
	Lines []InsufficientStockLine
}

func (e *InsufficientStockError) Error() string {
	seen := make(map[uint64]struct{}, len(e.Lines))
	variants := make([]uint64, 0, len(e.Lines))
	for _, line := range e.Lines {
		if _, ok := seen[line.VariantID]; ok {
			continue
		}
		seen[line.VariantID] = struct{}{}
		variants = append(variants, line.VariantID)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })

	parts := make([]string, 0, len(variants))
	for _, id := range variants {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return fmt.Sprintf("insufficient stock for variants [%s]", strings.Join(parts, ", "))
}

// AllocationError reports order lines whose allocations could not be fully
// unwound. Work done for the other lines of the same call stays persisted.
type AllocationError struct {
	OrderLineIDs []uint64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("could not deallocate %d order line(s)", len(e.OrderLineIDs))
}

// PreorderAllocationError reports a preorder allocation for which no
// warehouse could be resolved during finalization.
type PreorderAllocationError struct {
	OrderLineID uint64
}

func (e *PreorderAllocationError) Error() string {
	return fmt.Sprintf("no warehouse to fulfill preorder for order line %d", e.OrderLineID)
}
