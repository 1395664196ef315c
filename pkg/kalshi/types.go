package kalshi

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Environment selects the exchange endpoint.
type Environment string

const (
	EnvDemo Environment = "demo"
	EnvProd Environment = "prod"
)

// BaseURL returns the REST base for the environment.
func (e Environment) BaseURL() string {
	if e == EnvProd {
		return "https://api.elections.kalshi.com/trade-api/v2"
	}
	return "https://demo-api.kalshi.co/trade-api/v2"
}

// Quotable limit prices in cents.
const (
	MinPriceCents = 1
	MaxPriceCents = 99
)

// ErrQuoteUnavailable is returned when a market has no usable two-sided
// quote: missing book, crossed or empty side, or a quote past its staleness
// bound.
var ErrQuoteUnavailable = errors.New("kalshi: quote unavailable")

// Market is the metadata the daemon needs to sanity-check its wiring.
type Market struct {
	Ticker string
	Title  string
	Status string
}

// Quote is a two-sided market snapshot in cents.
type Quote struct {
	Ticker string
	YesBid decimal.Decimal
	YesAsk decimal.Decimal
	At     time.Time
}

// Mid returns the quote midpoint in cents.
func (q Quote) Mid() decimal.Decimal {
	return q.YesBid.Add(q.YesAsk).Div(decimal.NewFromInt(2))
}

// SpreadCents returns ask minus bid.
func (q Quote) SpreadCents() decimal.Decimal {
	return q.YesAsk.Sub(q.YesBid)
}

// Valid reports whether the quote is usable: both sides present, uncrossed,
// inside the 1..99 grid.
func (q Quote) Valid() bool {
	one := decimal.NewFromInt(1)
	ninetyNine := decimal.NewFromInt(99)
	if q.YesBid.LessThan(one) || q.YesAsk.GreaterThan(ninetyNine) {
		return false
	}
	return q.YesBid.LessThanOrEqual(q.YesAsk)
}

// Side of an order.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// OrderAction distinguishes opening buys from closing sells.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// OrderStatus as reported by the exchange.
type OrderStatus string

const (
	StatusResting  OrderStatus = "resting"
	StatusExecuted OrderStatus = "executed"
	StatusCanceled OrderStatus = "canceled"
	StatusRejected OrderStatus = "rejected"
)

// OrderRequest is a limit order in cents.
type OrderRequest struct {
	Ticker     string
	Side       Side
	Action     OrderAction
	Contracts  int64
	PriceCents int64
	ClientID   string
}

// OrderResult is the exchange's acknowledgement.
type OrderResult struct {
	OrderID   string
	Status    OrderStatus
	FilledQty int64
	AvgPrice  decimal.Decimal
	PlacedAt  time.Time
}

// Balance is the account's available cash in cents.
type Balance struct {
	AvailableCents int64
}
