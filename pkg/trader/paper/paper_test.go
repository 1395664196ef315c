package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/courtline/tennis-edge/pkg/kalshi"
	"github.com/courtline/tennis-edge/pkg/trader/signal"
)

func flatFee(n int64) signal.FeeModel {
	return signal.FlatFeeModel{PerContractCents: decimal.NewFromInt(n)}
}

func TestPaperBuyThenSell(t *testing.T) {
	v := NewVenue(10_000, flatFee(1))
	ctx := context.Background()

	buy, err := v.SubmitOrder(ctx, kalshi.OrderRequest{
		Ticker: "T", Side: kalshi.SideYes, Action: kalshi.ActionBuy,
		Contracts: 5, PriceCents: 40,
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.Status != kalshi.StatusExecuted || buy.FilledQty != 5 {
		t.Fatalf("buy result = %+v", buy)
	}
	if got := v.Position("T"); got != 5 {
		t.Fatalf("position = %d, want 5", got)
	}

	if _, err := v.SubmitOrder(ctx, kalshi.OrderRequest{
		Ticker: "T", Side: kalshi.SideYes, Action: kalshi.ActionSell,
		Contracts: 5, PriceCents: 55,
	}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	stats := v.Stats()
	// 5*(55-40) = 75 gross, 10 cents of fees across both orders.
	if !stats.RealizedCents.Equal(decimal.NewFromInt(65)) {
		t.Errorf("realized = %s, want 65", stats.RealizedCents)
	}
	// 10000 - (200+5) + (275-5) = 10065.
	if !stats.CashCents.Equal(decimal.NewFromInt(10_065)) {
		t.Errorf("cash = %s, want 10065", stats.CashCents)
	}
	if stats.OpenMarkets != 0 {
		t.Errorf("open markets = %d, want 0", stats.OpenMarkets)
	}
}

func TestPaperRejectsUnaffordable(t *testing.T) {
	v := NewVenue(100, flatFee(0))
	_, err := v.SubmitOrder(context.Background(), kalshi.OrderRequest{
		Ticker: "T", Side: kalshi.SideYes, Action: kalshi.ActionBuy,
		Contracts: 5, PriceCents: 50,
	})
	if err == nil {
		t.Fatal("order beyond cash filled")
	}
	if got := v.Stats().Rejected; got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}
	if got := v.Position("T"); got != 0 {
		t.Errorf("position = %d, want 0", got)
	}
}

func TestPaperRejectsBadOrders(t *testing.T) {
	v := NewVenue(10_000, flatFee(0))
	ctx := context.Background()
	if _, err := v.SubmitOrder(ctx, kalshi.OrderRequest{Ticker: "T", Contracts: 0, PriceCents: 50}); err == nil {
		t.Error("accepted zero contracts")
	}
	if _, err := v.SubmitOrder(ctx, kalshi.OrderRequest{Ticker: "T", Contracts: 1, PriceCents: 0}); err == nil {
		t.Error("accepted price 0")
	}
}

func TestPaperSettlement(t *testing.T) {
	v := NewVenue(10_000, flatFee(0))
	ctx := context.Background()

	v.SubmitOrder(ctx, kalshi.OrderRequest{
		Ticker: "T", Side: kalshi.SideYes, Action: kalshi.ActionBuy,
		Contracts: 4, PriceCents: 40,
	})
	v.Settle("T", true)

	stats := v.Stats()
	// Bought 4 at 40, settled at 100: +240 realized.
	if !stats.RealizedCents.Equal(decimal.NewFromInt(240)) {
		t.Errorf("realized = %s, want 240", stats.RealizedCents)
	}
	// 10000 - 160 + 400 = 10240.
	if !stats.CashCents.Equal(decimal.NewFromInt(10_240)) {
		t.Errorf("cash = %s, want 10240", stats.CashCents)
	}

	losing := NewVenue(10_000, flatFee(0))
	losing.SubmitOrder(ctx, kalshi.OrderRequest{
		Ticker: "T", Side: kalshi.SideYes, Action: kalshi.ActionBuy,
		Contracts: 4, PriceCents: 40,
	})
	losing.Settle("T", false)
	if got := losing.Stats().RealizedCents; !got.Equal(decimal.NewFromInt(-160)) {
		t.Errorf("losing realized = %s, want -160", got)
	}
}
