package enum

// StockEventType identifies an availability transition notification.
type StockEventType string

const (
	StockEventTypeOutOfStock  StockEventType = "out_of_stock"
	StockEventTypeBackInStock StockEventType = "back_in_stock"
)
