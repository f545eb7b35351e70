package models

import "gofalre.io/inventory/models/enum"

// Channel is a sales context with its own allocation strategy and warehouse
// priority list.
type Channel struct {
	ID                 uint64                  `json:"id"`
	Slug               string                  `json:"slug"`
	AllocationStrategy enum.AllocationStrategy `json:"allocation_strategy"`
}

// ChannelWarehouse orders the warehouses of a channel; SortOrder drives the
// prioritize-sorting-order allocation strategy.
type ChannelWarehouse struct {
	ID          uint64 `json:"id"`
	ChannelID   uint64 `json:"channel_id"`
	WarehouseID uint64 `json:"warehouse_id"`
	SortOrder   int    `json:"sort_order"`
}
