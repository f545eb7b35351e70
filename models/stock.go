package models

import "time"

// Stock tracks the physical and committed quantity of one variant in one warehouse.
type Stock struct {
	ID                uint64    `json:"id"`
	VariantID         uint64    `json:"variant_id"`
	WarehouseID       uint64    `json:"warehouse_id"`
	Quantity          int       `json:"quantity"`
	QuantityAllocated int       `json:"quantity_allocated"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Allocation commits part of a Stock's quantity to one order line.
type Allocation struct {
	ID                uint64 `json:"id"`
	OrderLineID       uint64 `json:"order_line_id"`
	StockID           uint64 `json:"stock_id"`
	QuantityAllocated int    `json:"quantity_allocated"`
}
