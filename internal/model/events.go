package model

// CartOp names a local cart transition.
type CartOp string

const (
	CartAdd    CartOp = "add"
	CartUpdate CartOp = "update"
	CartRemove CartOp = "remove"
	CartClear  CartOp = "clear"
)

// CartChange describes one applied cart transition. Quantity is the line
// quantity after the transition (0 for remove and clear).
type CartChange struct {
	Seq       uint64 `json:"seq"`
	Op        CartOp `json:"op"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}
