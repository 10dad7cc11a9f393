package promo

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// maxAmount bounds stored money values.
	maxAmount = decimal.New(1, 10)
)

// Result is the outcome of applying a promo code to an order total.
type Result struct {
	// Code is the applied code text, or "" when nothing applied.
	Code string
	// Percentage is the applied discount percentage, 0 when nothing applied.
	Percentage int
	// Amount is the monetary discount, rounded to cents.
	Amount decimal.Decimal
	// Total is the discounted total, rounded to cents.
	Total decimal.Decimal
}

// Apply computes total × (1 − discount/100) for c. A nil code leaves the
// total unchanged. MaxDiscount is storefront display data and does not
// limit the amount taken off here.
func Apply(c *Code, total decimal.Decimal) Result {
	if c == nil {
		return Result{Amount: decimal.Zero, Total: total.Round(2)}
	}

	amount := total.Mul(decimal.NewFromInt(int64(c.Discount))).Div(hundred)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	discounted := total.Sub(amount)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	return Result{
		Code:       c.Code,
		Percentage: c.Discount,
		Amount:     amount.Round(2),
		Total:      discounted.Round(2),
	}
}
