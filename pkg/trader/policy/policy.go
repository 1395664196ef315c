// Package policy enforces account-level risk limits over the signals the
// engines emit. The signal engine decides whether an edge exists; policy
// decides whether the account is allowed to act on it.
package policy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrGuardrailTripped wraps every policy rejection so callers can treat the
// whole family uniformly.
var ErrGuardrailTripped = errors.New("policy: guardrail tripped")

// Limits configures the guardrails. Zero values disable the corresponding
// check except MaxContractsPerOrder, which must be positive.
type Limits struct {
	MaxContractsPerOrder int64
	MaxPositionContracts int64           // absolute cap across fills in one market
	MaxDailyLossCents    decimal.Decimal // stop trading for the day past this loss
	MaxLossStreak        int             // consecutive losing trades before cooldown
	Cooldown             time.Duration   // how long a loss streak pauses trading
}

// DefaultLimits mirror the production account settings.
func DefaultLimits() Limits {
	return Limits{
		MaxContractsPerOrder: 10,
		MaxPositionContracts: 50,
		MaxDailyLossCents:    decimal.NewFromInt(5_000),
		MaxLossStreak:        3,
		Cooldown:             15 * time.Minute,
	}
}

func (l Limits) validate() error {
	if l.MaxContractsPerOrder <= 0 {
		return errors.New("policy: per-order contract cap must be positive")
	}
	if l.MaxDailyLossCents.IsNegative() {
		return errors.New("policy: negative daily loss limit")
	}
	if l.MaxLossStreak < 0 || l.Cooldown < 0 {
		return errors.New("policy: negative streak or cooldown")
	}
	return nil
}

// Guard applies Limits statefully across a trading day.
type Guard struct {
	mu            sync.Mutex
	limits        Limits
	dayLoss       decimal.Decimal
	day           time.Time
	lossStreak    int
	cooldownUntil time.Time
	now           func() time.Time
}

// NewGuard validates the limits and builds a guard.
func NewGuard(limits Limits) (*Guard, error) {
	if err := limits.validate(); err != nil {
		return nil, err
	}
	return &Guard{limits: limits, now: time.Now}, nil
}

// Allow checks a prospective order of qty contracts against the limits,
// given the current absolute position in that market. A nil error means the
// order may go out.
func (g *Guard) Allow(qty, positionAbs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()

	if qty <= 0 {
		return fmt.Errorf("%w: order for %d contracts", ErrGuardrailTripped, qty)
	}
	if qty > g.limits.MaxContractsPerOrder {
		return fmt.Errorf("%w: %d contracts exceeds per-order cap %d",
			ErrGuardrailTripped, qty, g.limits.MaxContractsPerOrder)
	}
	if g.limits.MaxPositionContracts > 0 && positionAbs+qty > g.limits.MaxPositionContracts {
		return fmt.Errorf("%w: position %d+%d exceeds cap %d",
			ErrGuardrailTripped, positionAbs, qty, g.limits.MaxPositionContracts)
	}
	if !g.limits.MaxDailyLossCents.IsZero() && g.dayLoss.GreaterThanOrEqual(g.limits.MaxDailyLossCents) {
		return fmt.Errorf("%w: daily loss %s cents at limit %s",
			ErrGuardrailTripped, g.dayLoss, g.limits.MaxDailyLossCents)
	}
	if until := g.cooldownUntil; g.now().Before(until) {
		return fmt.Errorf("%w: cooling down until %s after %d straight losses",
			ErrGuardrailTripped, until.Format(time.TimeOnly), g.lossStreak)
	}
	return nil
}

// RecordOutcome feeds a closed trade's PnL back into the guard. Losses
// accumulate toward the daily stop and the loss streak; any win resets the
// streak.
func (g *Guard) RecordOutcome(pnlCents decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()

	if pnlCents.IsNegative() {
		g.dayLoss = g.dayLoss.Sub(pnlCents)
		g.lossStreak++
		if g.limits.MaxLossStreak > 0 && g.lossStreak >= g.limits.MaxLossStreak {
			g.cooldownUntil = g.now().Add(g.limits.Cooldown)
		}
		return
	}
	g.lossStreak = 0
}

// DayLossCents returns today's accumulated loss.
func (g *Guard) DayLossCents() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()
	return g.dayLoss
}

func (g *Guard) rollDayLocked() {
	today := g.now().Truncate(24 * time.Hour)
	if !today.Equal(g.day) {
		g.day = today
		g.dayLoss = decimal.Zero
		g.lossStreak = 0
		g.cooldownUntil = time.Time{}
	}
}
