package domain

// Coupon holds the discount terms the cart service evaluates lazily at
// read time. MinAmount is the cart total a cart must exceed before the
// discount applies.
type Coupon struct {
	ID             int64
	Code           string
	DiscountAmount float64
	MinAmount      float64
}
