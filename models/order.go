package models

// OrderLine is one demand line of an order.
type OrderLine struct {
	ID        uint64 `json:"id"`
	OrderID   uint64 `json:"order_id"`
	VariantID uint64 `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// OrderLineInfo is the demand input handed to the allocation service by the
// checkout and fulfillment layers. Quantity is the amount to allocate,
// deallocate or decrease for the line; WarehouseID is set by fulfillment
// paths that already resolved a warehouse.
type OrderLineInfo struct {
	Line        *OrderLine      `json:"line"`
	Variant     *ProductVariant `json:"variant"`
	Quantity    int             `json:"quantity"`
	WarehouseID *uint64         `json:"warehouse_id"`
}
