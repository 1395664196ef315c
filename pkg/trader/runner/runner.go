// Package runner drives the live loop for one match: score updates in,
// probabilities and fair prices computed, quotes fetched, signals evaluated,
// orders placed. Each match runs in isolation; nothing here is shared across
// sessions except the exchange client and the metrics registry.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courtline/tennis-edge/pkg/feed"
	"github.com/courtline/tennis-edge/pkg/kalshi"
	"github.com/courtline/tennis-edge/pkg/tennis/prob"
	"github.com/courtline/tennis-edge/pkg/tennis/score"
	"github.com/courtline/tennis-edge/pkg/tennis/serve"
	"github.com/courtline/tennis-edge/pkg/trader/metrics"
	"github.com/courtline/tennis-edge/pkg/trader/policy"
	"github.com/courtline/tennis-edge/pkg/trader/pricing"
	"github.com/courtline/tennis-edge/pkg/trader/signal"
)

// Quoter fetches market quotes.
type Quoter interface {
	GetQuote(ctx context.Context, ticker string) (kalshi.Quote, error)
}

// Executor places orders. The exchange client and the paper venue both
// satisfy it.
type Executor interface {
	SubmitOrder(ctx context.Context, req kalshi.OrderRequest) (kalshi.OrderResult, error)
}

// SessionConfig wires one match to one market.
type SessionConfig struct {
	MatchID string
	Ticker  string

	Feed     feed.Feed
	Quoter   Quoter
	Executor Executor // nil means signal-only, no orders go out

	Model  *serve.Model
	Engine *signal.Engine
	Guard  *policy.Guard

	// QuoteMaxAge bounds quote staleness; older quotes hold the tick.
	QuoteMaxAge time.Duration
	// MaxSpreadCents holds the tick when the book is wider than this.
	MaxSpreadCents float64
	// TickTimeout bounds the quote fetch per tick.
	TickTimeout time.Duration

	Metrics *metrics.TradingMetrics

	// OnSignal is called for every evaluated tick, holds included.
	OnSignal func(signal.Signal)
	// OnError is called for recoverable per-tick failures.
	OnError func(error)
}

func (c SessionConfig) validate() error {
	if c.MatchID == "" || c.Ticker == "" {
		return errors.New("runner: match id and ticker required")
	}
	if c.Feed == nil {
		return errors.New("runner: nil feed")
	}
	if c.Quoter == nil {
		return errors.New("runner: nil quoter")
	}
	if c.Model == nil || c.Engine == nil || c.Guard == nil {
		return errors.New("runner: model, engine and guard required")
	}
	if c.QuoteMaxAge <= 0 || c.TickTimeout <= 0 {
		return errors.New("runner: quote max age and tick timeout required")
	}
	return nil
}

// Session is the live loop for one match.
type Session struct {
	cfg SessionConfig

	prev     score.State
	havePrev bool

	// Service-game tally for the serve model.
	gamePts int
	gameWon int

	now func() time.Time
}

// NewSession validates the wiring and builds a session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	return &Session{cfg: cfg, now: time.Now}, nil
}

// MatchID identifies the session's match.
func (s *Session) MatchID() string { return s.cfg.MatchID }

// Halt latches the engine into HALTED until Resume. Operator flags such as a
// medical timeout or a rain delay come through here; the session keeps
// consuming score updates but every tick holds.
func (s *Session) Halt(reason string) {
	s.cfg.Engine.Halt(reason)
	s.cfg.Metrics.RecordGuardrailHalt(reason)
}

// Resume returns a halted session to active trading.
func (s *Session) Resume() error {
	return s.cfg.Engine.Resume()
}

// Run processes score updates until the feed ends, the match is decided, or
// the context is canceled. The engine is activated on the first valid state.
func (s *Session) Run(ctx context.Context) error {
	defer s.cfg.Feed.Close()

	for {
		st, err := s.cfg.Feed.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.cfg.Engine.Finish()
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("runner: %s: feed: %w", s.cfg.MatchID, err)
		}

		if err := s.accept(st); err != nil {
			s.cfg.Metrics.RecordInvalidScore(s.cfg.MatchID)
			s.reportError(err)
			continue
		}

		if st.Terminal() {
			s.cfg.Engine.Finish()
			s.cfg.Metrics.RecordMatchCompleted()
			return nil
		}
		s.cfg.Engine.Activate()

		s.tick(ctx, st)
	}
}

// accept validates the transition against the previous state and feeds
// completed service games to the serve model.
func (s *Session) accept(st score.State) error {
	if !s.havePrev {
		s.prev = st
		s.havePrev = true
		return nil
	}
	if err := score.ValidateTransition(s.prev, st); err != nil {
		return fmt.Errorf("runner: %s: %w", s.cfg.MatchID, err)
	}

	s.tally(s.prev, st)
	s.prev = st
	return nil
}

// tally tracks point outcomes within the current service game and records
// the game on the server's model once it completes. Tiebreak points are not
// tallied.
func (s *Session) tally(prev, next score.State) {
	if prev.Fingerprint() == next.Fingerprint() {
		return // refresh, no point scored
	}
	if prev.InTiebreak {
		s.gamePts, s.gameWon = 0, 0
		return
	}

	winner, ok := pointWinner(prev, next)
	if !ok {
		return
	}
	s.gamePts++
	if winner == prev.Server {
		s.gameWon++
	}

	gameEnded := next.InTiebreak ||
		next.Games != prev.Games || next.Sets != prev.Sets
	if gameEnded {
		s.cfg.Model.RecordServiceGame(prev.Server, s.gameWon, s.gamePts)
		s.gamePts, s.gameWon = 0, 0
	}
}

// pointWinner recovers which player won the point between two states.
func pointWinner(prev, next score.State) (score.Player, bool) {
	for _, p := range []score.Player{score.PlayerA, score.PlayerB} {
		cand, err := prev.ApplyPoint(p)
		if err == nil && cand.Fingerprint() == next.Fingerprint() {
			return p, true
		}
	}
	return score.PlayerA, false
}

// tick prices the state, fetches a quote, and evaluates the signal. Every
// failure path degrades to a hold.
func (s *Session) tick(ctx context.Context, st score.State) {
	started := s.now()

	pA := s.cfg.Model.PointWinProb(score.PlayerA)
	pB := s.cfg.Model.PointWinProb(score.PlayerB)
	s.cfg.Metrics.RecordServeProbs(s.cfg.MatchID, pA, pB)

	winProb, err := prob.Match(pA, pB, st)
	if err != nil {
		s.reportError(fmt.Errorf("runner: %s: price state %s: %w", s.cfg.MatchID, st.Fingerprint(), err))
		return
	}
	fair, err := pricing.ToCents(winProb)
	if err != nil {
		s.reportError(fmt.Errorf("runner: %s: %w", s.cfg.MatchID, err))
		return
	}
	s.cfg.Metrics.RecordTick(s.cfg.MatchID, winProb, fair, s.now().Sub(started).Seconds())

	quote, err := s.fetchQuote(ctx)
	if err != nil {
		s.cfg.Metrics.RecordStaleQuote(s.cfg.Ticker)
		s.reportError(err)
		quote = kalshi.Quote{} // the engine holds on an unusable quote
	}

	sig := s.cfg.Engine.Tick(fair, quote, st.Fingerprint())
	s.cfg.Metrics.RecordSignal(string(sig.Action), metrics.DecimalToFloat64(sig.EdgeCents), sig.Contracts)
	if s.cfg.OnSignal != nil {
		s.cfg.OnSignal(sig)
	}

	if sig.Action == signal.ActionHold {
		return
	}
	s.execute(ctx, sig)
}

func (s *Session) fetchQuote(ctx context.Context) (kalshi.Quote, error) {
	qctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	quote, err := s.cfg.Quoter.GetQuote(qctx, s.cfg.Ticker)
	if err != nil {
		return kalshi.Quote{}, fmt.Errorf("runner: %s: %w", s.cfg.Ticker, err)
	}
	if age := s.now().Sub(quote.At); age > s.cfg.QuoteMaxAge {
		return kalshi.Quote{}, fmt.Errorf("runner: %s: %w: quote is %s old", s.cfg.Ticker, kalshi.ErrQuoteUnavailable, age)
	}
	if s.cfg.MaxSpreadCents > 0 {
		spread, _ := quote.SpreadCents().Float64()
		if spread > s.cfg.MaxSpreadCents {
			s.cfg.Metrics.RecordGuardrailHalt("spread")
			return kalshi.Quote{}, fmt.Errorf("runner: %s: %w: spread %.0f cents", s.cfg.Ticker, kalshi.ErrQuoteUnavailable, spread)
		}
	}
	return quote, nil
}

// execute runs the guardrails and submits the order. A failed submission
// clears the idempotency key so the next tick at the same score may retry if
// the edge is still there.
func (s *Session) execute(ctx context.Context, sig signal.Signal) {
	position := s.cfg.Engine.Inventory().Contracts()
	if position < 0 {
		position = -position
	}
	if err := s.cfg.Guard.Allow(sig.Contracts, position); err != nil {
		s.cfg.Metrics.RecordGuardrailHalt(guardReason(err))
		s.cfg.Engine.ClearIdempotency()
		s.reportError(err)
		return
	}

	if s.cfg.Executor == nil {
		return
	}

	action := kalshi.ActionBuy
	if sig.Action == signal.ActionSellYes {
		action = kalshi.ActionSell
	}
	res, err := s.cfg.Executor.SubmitOrder(ctx, kalshi.OrderRequest{
		Ticker:     s.cfg.Ticker,
		Side:       kalshi.SideYes,
		Action:     action,
		Contracts:  sig.Contracts,
		PriceCents: sig.LimitCents,
		ClientID:   sig.ID,
	})
	if err != nil {
		s.cfg.Metrics.RecordOrder("failed")
		s.cfg.Metrics.RecordOrderRetry()
		s.cfg.Engine.ClearIdempotency()
		s.reportError(fmt.Errorf("runner: %s: submit: %w", s.cfg.Ticker, err))
		return
	}

	s.cfg.Metrics.RecordOrder(string(res.Status))
	if res.FilledQty > 0 {
		s.cfg.Engine.RecordFill(sig.Action, res.FilledQty, res.AvgPrice)
		inv := s.cfg.Engine.Inventory()
		s.cfg.Metrics.UpdatePosition(
			s.cfg.Ticker,
			inv.Contracts(),
			metrics.DecimalToFloat64(inv.UnrealizedCents(sig.MarketMid)),
			metrics.DecimalToFloat64(inv.RealizedCents()),
		)
	}
}

func (s *Session) reportError(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

func guardReason(err error) string {
	switch {
	case errors.Is(err, policy.ErrGuardrailTripped):
		return "policy"
	default:
		return "unknown"
	}
}

// MultiRunner runs several sessions concurrently and stops them all when one
// fails or the context ends.
type MultiRunner struct {
	sessions []*Session
	metrics  *metrics.TradingMetrics
}

// NewMultiRunner groups sessions.
func NewMultiRunner(sessions []*Session, m *metrics.TradingMetrics) *MultiRunner {
	if m == nil {
		m = metrics.Default()
	}
	return &MultiRunner{sessions: sessions, metrics: m}
}

// Sessions returns every session in the group.
func (r *MultiRunner) Sessions() []*Session {
	return r.sessions
}

// Session returns the session for a match id, or nil.
func (r *MultiRunner) Session(matchID string) *Session {
	for _, s := range r.sessions {
		if s.cfg.MatchID == matchID {
			return s
		}
	}
	return nil
}

// Run blocks until every session finishes or one errors.
func (r *MultiRunner) Run(ctx context.Context) error {
	r.metrics.UpdateActiveMatches(len(r.sessions))
	defer r.metrics.UpdateActiveMatches(0)

	g, ctx := errgroup.WithContext(ctx)
	for _, sess := range r.sessions {
		sess := sess
		g.Go(func() error {
			return sess.Run(ctx)
		})
	}
	return g.Wait()
}
