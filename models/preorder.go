package models

// PreorderAllocation commits virtual preorder quantity of one order line
// against a variant channel listing. It exists only while the variant is in
// preorder state.
type PreorderAllocation struct {
	ID               uint64 `json:"id"`
	OrderLineID      uint64 `json:"order_line_id"`
	ChannelListingID uint64 `json:"channel_listing_id"`
	Quantity         int    `json:"quantity"`
}

// VariantChannelListing makes a variant sellable on a channel and carries the
// per-channel preorder threshold. A nil threshold means unlimited.
type VariantChannelListing struct {
	ID                        uint64 `json:"id"`
	VariantID                 uint64 `json:"variant_id"`
	ChannelID                 uint64 `json:"channel_id"`
	PreorderQuantityThreshold *int   `json:"preorder_quantity_threshold"`
}
