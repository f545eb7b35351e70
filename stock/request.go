package stock

// QuantityAdjustment is a database-side increment of one stock column.
// Delta may be negative.
type QuantityAdjustment struct {
	StockID uint64
	Delta   int
}
