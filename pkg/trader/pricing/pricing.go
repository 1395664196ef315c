// Package pricing converts model probabilities into contract prices on the
// 1..99 cent grid used by binary prediction markets.
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Contracts settle at 0 or 100 cents; quotable prices live strictly inside.
const (
	MinCents = 1
	MaxCents = 99
)

// Probabilities are clamped into [pFloor, pCeil] before rounding so a
// near-certain model output still maps onto the quotable grid.
const (
	pFloor = 0.005
	pCeil  = 0.995
)

// ErrInvalidProbability is returned for probabilities that are not finite
// numbers in [0,1].
var ErrInvalidProbability = fmt.Errorf("pricing: probability outside [0,1]")

// ToCents maps a win probability to a fair contract price in integer cents.
// Rounding is half-down, so a pair of complementary probabilities never sums
// above 100 cents and the rounding never manufactures edge.
func ToCents(p float64) (int64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	if p < pFloor {
		p = pFloor
	} else if p > pCeil {
		p = pCeil
	}
	c := int64(math.Ceil(p*100 - 0.5))
	if c < MinCents {
		c = MinCents
	} else if c > MaxCents {
		c = MaxCents
	}
	return c, nil
}

// FromCents converts an integer cent price back to a probability.
func FromCents(c int64) float64 {
	return float64(c) / 100
}

// Mid returns the midpoint of a bid/ask pair in cents as a decimal, keeping
// the half cent exact.
func Mid(bid, ask decimal.Decimal) decimal.Decimal {
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}

// Cents builds a decimal cent price from an integer.
func Cents(c int64) decimal.Decimal {
	return decimal.NewFromInt(c)
}

// EdgeCents returns fair minus market in cents: positive means the market is
// cheap relative to the model.
func EdgeCents(fairCents int64, market decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(fairCents).Sub(market)
}
