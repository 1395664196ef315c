// Package paper simulates order execution so strategies can run unchanged
// against live scores and quotes without risking funds. Orders fill
// immediately and fully at their limit price.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courtline/tennis-edge/pkg/kalshi"
	"github.com/courtline/tennis-edge/pkg/trader/signal"
)

// Venue is a drop-in stand-in for the exchange client's order surface.
type Venue struct {
	mu       sync.Mutex
	fees     signal.FeeModel
	cash     decimal.Decimal
	books    map[string]*signal.Inventory
	fills    int64
	rejected int64
	now      func() time.Time
}

// NewVenue starts a paper account with the given cash balance in cents.
func NewVenue(cashCents int64, fees signal.FeeModel) *Venue {
	if fees == nil {
		fees = signal.KalshiFeeModel{}
	}
	return &Venue{
		fees:  fees,
		cash:  decimal.NewFromInt(cashCents),
		books: make(map[string]*signal.Inventory),
		now:   time.Now,
	}
}

// SubmitOrder fills the order at its limit price if cash allows.
func (v *Venue) SubmitOrder(_ context.Context, req kalshi.OrderRequest) (kalshi.OrderResult, error) {
	if req.Contracts <= 0 {
		return kalshi.OrderResult{}, fmt.Errorf("paper: order for %d contracts", req.Contracts)
	}
	if req.PriceCents < kalshi.MinPriceCents || req.PriceCents > kalshi.MaxPriceCents {
		return kalshi.OrderResult{}, fmt.Errorf("paper: price %d off the grid", req.PriceCents)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	price := decimal.NewFromInt(req.PriceCents)
	fee := v.fees.FeeCents(price, req.Contracts)
	qty := req.Contracts
	if req.Action == kalshi.ActionSell {
		qty = -qty
	}

	if qty > 0 {
		cost := price.Mul(decimal.NewFromInt(qty)).Add(fee)
		if cost.GreaterThan(v.cash) {
			v.rejected++
			return kalshi.OrderResult{
				Status: kalshi.StatusRejected,
			}, fmt.Errorf("paper: cost %s exceeds cash %s", cost, v.cash)
		}
		v.cash = v.cash.Sub(cost)
	} else {
		proceeds := price.Mul(decimal.NewFromInt(-qty)).Sub(fee)
		v.cash = v.cash.Add(proceeds)
	}

	book, ok := v.books[req.Ticker]
	if !ok {
		book = signal.NewInventory()
		v.books[req.Ticker] = book
	}
	book.Apply(qty, price, fee)
	v.fills++

	return kalshi.OrderResult{
		OrderID:   uuid.NewString(),
		Status:    kalshi.StatusExecuted,
		FilledQty: req.Contracts,
		AvgPrice:  price,
		PlacedAt:  v.now(),
	}, nil
}

// Settle resolves a market at 0 or 100 cents and folds the payout into cash.
func (v *Venue) Settle(ticker string, yesWon bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	book, ok := v.books[ticker]
	if !ok {
		return
	}
	held := book.Contracts()
	if held == 0 {
		return
	}
	settle := decimal.Zero
	if yesWon {
		settle = decimal.NewFromInt(100)
	}
	book.Apply(-held, settle, decimal.Zero)
	if held > 0 && yesWon {
		v.cash = v.cash.Add(decimal.NewFromInt(100 * held))
	} else if held < 0 && !yesWon {
		v.cash = v.cash.Add(decimal.NewFromInt(-100 * held))
	}
}

// Stats summarizes the paper session.
type Stats struct {
	CashCents     decimal.Decimal
	RealizedCents decimal.Decimal
	Fills         int64
	Rejected      int64
	OpenMarkets   int
}

// Stats reports the account state.
func (v *Venue) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	realized := decimal.Zero
	open := 0
	for _, book := range v.books {
		realized = realized.Add(book.RealizedCents())
		if book.Contracts() != 0 {
			open++
		}
	}
	return Stats{
		CashCents:     v.cash,
		RealizedCents: realized,
		Fills:         v.fills,
		Rejected:      v.rejected,
		OpenMarkets:   open,
	}
}

// Position returns the signed contract count for a market.
func (v *Venue) Position(ticker string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if book, ok := v.books[ticker]; ok {
		return book.Contracts()
	}
	return 0
}
