// Package signal turns fair prices and market quotes into trade signals.
// The engine is deliberately conservative: it trades only when the edge
// clears fees plus a configured threshold, sizes with fractional Kelly, and
// emits at most one actionable signal per distinct score state.
package signal

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courtline/tennis-edge/pkg/kalshi"
)

// State of the engine's lifecycle.
type State string

const (
	StateWaiting State = "WAITING" // market not yet tradable
	StateActive  State = "ACTIVE"  // evaluating ticks
	StateHalted  State = "HALTED"  // guardrail tripped, holds only
	StateDone    State = "DONE"    // match decided, no further signals
)

// Action is the engine's verdict for one tick.
type Action string

const (
	ActionBuyYes  Action = "BUY_YES"
	ActionSellYes Action = "SELL_YES"
	ActionHold    Action = "HOLD"
)

// ErrHalted is returned by Resume when the engine was not halted.
var ErrHalted = errors.New("signal: engine not halted")

// Signal is one tick's decision with everything needed to audit it.
type Signal struct {
	ID         string
	Action     Action
	Contracts  int64
	LimitCents int64
	FairCents  int64
	MarketMid  decimal.Decimal
	EdgeCents  decimal.Decimal
	StateKey   string
	Reason     string
	At         time.Time
}

// Config tunes the engine.
type Config struct {
	Fees          FeeModel
	MinEdgeCents  decimal.Decimal // required edge beyond fees
	KellyFraction float64         // fraction of full Kelly, e.g. 0.25
	MaxContracts  int64           // hard per-signal cap
	BankrollCents int64
	MaxRisk       float64 // max share of bankroll at risk per signal
}

// DefaultConfig mirrors the production tuning: 2 cents of edge past fees,
// quarter Kelly, at most 10 contracts, 2% of bankroll per trade.
func DefaultConfig(bankrollCents int64) Config {
	return Config{
		Fees:          KalshiFeeModel{},
		MinEdgeCents:  decimal.NewFromInt(2),
		KellyFraction: 0.25,
		MaxContracts:  10,
		BankrollCents: bankrollCents,
		MaxRisk:       0.02,
	}
}

func (c Config) validate() error {
	if c.Fees == nil {
		return errors.New("signal: nil fee model")
	}
	if c.MinEdgeCents.IsNegative() {
		return errors.New("signal: negative edge threshold")
	}
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		return fmt.Errorf("signal: kelly fraction %v outside (0,1]", c.KellyFraction)
	}
	if c.MaxContracts <= 0 {
		return errors.New("signal: non-positive contract cap")
	}
	if c.BankrollCents <= 0 {
		return errors.New("signal: non-positive bankroll")
	}
	if c.MaxRisk <= 0 || c.MaxRisk > 1 {
		return fmt.Errorf("signal: max risk %v outside (0,1]", c.MaxRisk)
	}
	return nil
}

// Engine evaluates one market. Not shared across matches; each match gets
// its own engine.
type Engine struct {
	mu           sync.Mutex
	cfg          Config
	state        State
	inv          *Inventory
	lastTraded   string // state key of the last non-hold signal
	haltedReason string
	now          func() time.Time
}

// NewEngine validates the config and builds an engine in WAITING.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg,
		state: StateWaiting,
		inv:   NewInventory(),
		now:   time.Now,
	}, nil
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Inventory exposes the engine's position tracker.
func (e *Engine) Inventory() *Inventory { return e.inv }

// Activate moves WAITING -> ACTIVE. A done engine stays done.
func (e *Engine) Activate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateWaiting {
		e.state = StateActive
	}
}

// Halt stops trading until Resume. Holds only while halted.
func (e *Engine) Halt(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateActive || e.state == StateWaiting {
		e.state = StateHalted
		e.haltedReason = reason
	}
}

// Resume returns a halted engine to ACTIVE.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateHalted {
		return ErrHalted
	}
	e.state = StateActive
	e.haltedReason = ""
	return nil
}

// Finish marks the match decided. Terminal.
func (e *Engine) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateDone
}

// Tick evaluates one (fair price, quote, score state) triple. It always
// returns a Signal; anything that prevents trading yields a HOLD with the
// reason filled in.
func (e *Engine) Tick(fairCents int64, quote kalshi.Quote, stateKey string) Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	sig := Signal{
		ID:        uuid.NewString(),
		Action:    ActionHold,
		FairCents: fairCents,
		StateKey:  stateKey,
		At:        e.now(),
	}

	if e.state != StateActive {
		sig.Reason = fmt.Sprintf("engine %s", e.state)
		if e.state == StateHalted && e.haltedReason != "" {
			sig.Reason = "halted: " + e.haltedReason
		}
		return sig
	}
	if !quote.Valid() {
		sig.Reason = "quote unusable"
		return sig
	}

	mid := quote.Mid()
	sig.MarketMid = mid
	edge := decimal.NewFromInt(fairCents).Sub(mid)
	sig.EdgeCents = edge

	if stateKey != "" && stateKey == e.lastTraded {
		sig.Reason = "already traded this score state"
		return sig
	}

	perContractFeeAsk := e.cfg.Fees.FeeCents(quote.YesAsk, 1)
	perContractFeeBid := e.cfg.Fees.FeeCents(quote.YesBid, 1)

	switch {
	case edge.GreaterThan(e.cfg.MinEdgeCents.Add(perContractFeeAsk)):
		qty := e.sizeBuy(fairCents, quote.YesAsk)
		if qty <= 0 {
			sig.Reason = "edge present but size rounds to zero"
			return sig
		}
		sig.Action = ActionBuyYes
		sig.Contracts = qty
		sig.LimitCents = quote.YesAsk.IntPart()
		sig.Reason = fmt.Sprintf("fair %d above ask %s by more than fees+threshold", fairCents, quote.YesAsk)

	case edge.Neg().GreaterThan(e.cfg.MinEdgeCents.Add(perContractFeeBid)):
		held := e.inv.Contracts()
		if held <= 0 {
			sig.Reason = "market rich but no long position to reduce"
			return sig
		}
		qty := min64(held, e.cfg.MaxContracts)
		sig.Action = ActionSellYes
		sig.Contracts = qty
		sig.LimitCents = quote.YesBid.IntPart()
		sig.Reason = fmt.Sprintf("fair %d below bid %s by more than fees+threshold", fairCents, quote.YesBid)

	default:
		sig.Reason = "edge below threshold"
		return sig
	}

	e.lastTraded = stateKey
	return sig
}

// RecordFill updates inventory after a confirmed execution.
func (e *Engine) RecordFill(action Action, qty int64, priceCents decimal.Decimal) {
	fee := e.cfg.Fees.FeeCents(priceCents, qty)
	if action == ActionSellYes {
		qty = -qty
	}
	e.inv.Apply(qty, priceCents, fee)
}

// ClearIdempotency forgets the last-traded score state, letting the next
// tick at the same score trade again. Used when a submitted order fails.
func (e *Engine) ClearIdempotency() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTraded = ""
}

// sizeBuy returns fractional-Kelly contracts for a buy at ask, capped by the
// hard contract limit and the bankroll risk limit.
func (e *Engine) sizeBuy(fairCents int64, ask decimal.Decimal) int64 {
	price, _ := ask.Float64()
	if price <= 0 || price >= 100 {
		return 0
	}
	p := float64(fairCents) / 100
	q := 1 - p
	b := (100 - price) / price // net odds per cent staked
	f := (b*p - q) / b
	if f <= 0 {
		return 0
	}
	f *= e.cfg.KellyFraction

	stake := f * float64(e.cfg.BankrollCents)
	maxStake := e.cfg.MaxRisk * float64(e.cfg.BankrollCents)
	if stake > maxStake {
		stake = maxStake
	}
	qty := int64(math.Floor(stake / price))
	if qty > e.cfg.MaxContracts {
		qty = e.cfg.MaxContracts
	}
	return qty
}
