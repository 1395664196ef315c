package signal

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Inventory tracks one market's position and running PnL in cents.
// Positive contracts means long YES.
type Inventory struct {
	mu        sync.Mutex
	contracts int64
	avgEntry  decimal.Decimal // cents per contract, meaningful when contracts != 0
	realized  decimal.Decimal
	fees      decimal.Decimal
}

// NewInventory starts flat.
func NewInventory() *Inventory {
	return &Inventory{}
}

// Contracts returns the signed position.
func (inv *Inventory) Contracts() int64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.contracts
}

// Apply records a fill: positive qty buys YES, negative sells. Selling more
// than held flips the position; realized PnL accrues on the closed portion.
func (inv *Inventory) Apply(qty int64, priceCents, feeCents decimal.Decimal) {
	if qty == 0 {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.fees = inv.fees.Add(feeCents)

	sameSide := inv.contracts == 0 || (inv.contracts > 0) == (qty > 0)
	if sameSide {
		// Extending: blend the average entry.
		total := inv.contracts + qty
		old := inv.avgEntry.Mul(decimal.NewFromInt(abs(inv.contracts)))
		add := priceCents.Mul(decimal.NewFromInt(abs(qty)))
		inv.avgEntry = old.Add(add).Div(decimal.NewFromInt(abs(total)))
		inv.contracts = total
		return
	}

	closed := min64(abs(qty), abs(inv.contracts))
	perContract := priceCents.Sub(inv.avgEntry)
	if inv.contracts < 0 {
		perContract = perContract.Neg()
	}
	inv.realized = inv.realized.Add(perContract.Mul(decimal.NewFromInt(closed)))

	inv.contracts += qty
	if inv.contracts == 0 {
		inv.avgEntry = decimal.Zero
	} else if abs(qty) > closed {
		// Flipped through flat: remainder opens at the fill price.
		inv.avgEntry = priceCents
	}
}

// RealizedCents returns realized PnL net of fees.
func (inv *Inventory) RealizedCents() decimal.Decimal {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.realized.Sub(inv.fees)
}

// UnrealizedCents marks the open position to the given price.
func (inv *Inventory) UnrealizedCents(markCents decimal.Decimal) decimal.Decimal {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.contracts == 0 {
		return decimal.Zero
	}
	per := markCents.Sub(inv.avgEntry)
	if inv.contracts < 0 {
		per = per.Neg()
	}
	return per.Mul(decimal.NewFromInt(abs(inv.contracts)))
}

// AvgEntryCents returns the average entry price of the open position.
func (inv *Inventory) AvgEntryCents() decimal.Decimal {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.avgEntry
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
