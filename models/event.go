package models

import (
	"time"

	"gofalre.io/inventory/models/enum"
)

// StockEvent is the audit record of one emitted stock notification.
type StockEvent struct {
	ID          string              `json:"id"`
	StockID     uint64              `json:"stock_id"`
	VariantID   uint64              `json:"variant_id"`
	WarehouseID uint64              `json:"warehouse_id"`
	Type        enum.StockEventType `json:"type"`
	Published   bool                `json:"published"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
