package models

import "time"

// Reservation is a short-lived hold of Stock quantity for a checkout line.
// It expires at ReservedUntil and is consulted, never owned, by the
// allocation service.
type Reservation struct {
	ID             uint64    `json:"id"`
	CheckoutLineID uint64    `json:"checkout_line_id"`
	StockID        uint64    `json:"stock_id"`
	Quantity       int       `json:"quantity"`
	ReservedUntil  time.Time `json:"reserved_until"`
}

// PreorderReservation is the preorder analogue of Reservation, scoped to a
// variant channel listing instead of a Stock.
type PreorderReservation struct {
	ID               uint64    `json:"id"`
	CheckoutLineID   uint64    `json:"checkout_line_id"`
	ChannelListingID uint64    `json:"channel_listing_id"`
	Quantity         int       `json:"quantity"`
	ReservedUntil    time.Time `json:"reserved_until"`
}
