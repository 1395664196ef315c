package signal

import "github.com/shopspring/decimal"

// FeeModel estimates the per-trade fee in cents for a fill at the given
// price. Edge thresholds are computed net of this estimate.
type FeeModel interface {
	FeeCents(priceCents decimal.Decimal, contracts int64) decimal.Decimal
}

// FlatFeeModel charges a fixed per-contract fee.
type FlatFeeModel struct {
	PerContractCents decimal.Decimal
}

func (f FlatFeeModel) FeeCents(_ decimal.Decimal, contracts int64) decimal.Decimal {
	return f.PerContractCents.Mul(decimal.NewFromInt(contracts))
}

// KalshiFeeModel implements the exchange's trading fee schedule:
// ceil(0.07 * contracts * price * (1 - price)) with price in dollars,
// result in cents.
type KalshiFeeModel struct{}

var (
	feeRate = decimal.NewFromFloat(0.07)
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

func (KalshiFeeModel) FeeCents(priceCents decimal.Decimal, contracts int64) decimal.Decimal {
	p := priceCents.Div(hundred)
	raw := feeRate.Mul(decimal.NewFromInt(contracts)).Mul(p).Mul(one.Sub(p)).Mul(hundred)
	return raw.Ceil()
}
