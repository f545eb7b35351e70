package models

import "time"

// ProductVariant carries the inventory-relevant flags of a sellable variant.
// A nil PreorderGlobalThreshold means the preorder budget is unlimited.
type ProductVariant struct {
	ID                      uint64     `json:"id"`
	SKU                     string     `json:"sku"`
	TrackInventory          bool       `json:"track_inventory"`
	IsPreorder              bool       `json:"is_preorder"`
	PreorderGlobalThreshold *int       `json:"preorder_global_threshold"`
	PreorderEndDate         *time.Time `json:"preorder_end_date"`
}
