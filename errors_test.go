package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{Lines: []InsufficientStockLine{
		{VariantID: 30},
		{VariantID: 10},
		{VariantID: 30},
		{VariantID: 20},
	}}

	// variants deduplicated and sorted for a stable message
	assert.Equal(t, "insufficient stock for variants [10, 20, 30]", err.Error())
}

func TestAllocationErrorMessage(t *testing.T) {
	err := &AllocationError{OrderLineIDs: []uint64{1, 2}}
	assert.Equal(t, "could not deallocate 2 order line(s)", err.Error())
}

func TestPreorderAllocationErrorMessage(t *testing.T) {
	err := &PreorderAllocationError{OrderLineID: 7}
	assert.Equal(t, "no warehouse to fulfill preorder for order line 7", err.Error())
}
