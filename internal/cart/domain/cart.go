package domain

// CartHeader is one user's cart record. There is at most one header per
// user; lookups go through the user id. Discount and total are derived
// on every read and never persisted.
type CartHeader struct {
	ID         int64
	UserID     string
	CouponCode string
}

// CartDetail is one product line under a header. Quantity is always >= 1;
// a detail whose quantity would drop to zero is removed instead.
type CartDetail struct {
	ID           int64
	CartHeaderID int64
	ProductID    int64
	Quantity     int
}

// ProductSnapshot is transient product data fetched from the catalog at
// read time. It is never stored, so price changes show up immediately.
type ProductSnapshot struct {
	ID          int64
	Name        string
	Description string
	Price       float64
	ImageURL    string
}

// CouponTerms is the discount contract fetched from the coupon service.
type CouponTerms struct {
	Code           string
	MinAmount      float64
	DiscountAmount float64
}

// CartLine pairs a persisted detail with its live product snapshot.
type CartLine struct {
	Detail  CartDetail
	Product ProductSnapshot
}

// CartView is the fully composed read model: header, lines with live
// product data, and the derived total/discount.
type CartView struct {
	Header   CartHeader
	Items    []CartLine
	Total    float64
	Discount float64
}
