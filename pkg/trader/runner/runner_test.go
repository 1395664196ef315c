package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/courtline/tennis-edge/pkg/kalshi"
	"github.com/courtline/tennis-edge/pkg/tennis/score"
	"github.com/courtline/tennis-edge/pkg/tennis/serve"
	"github.com/courtline/tennis-edge/pkg/trader/metrics"
	"github.com/courtline/tennis-edge/pkg/trader/policy"
	"github.com/courtline/tennis-edge/pkg/trader/signal"
)

// stateFeed replays a fixed list of states.
type stateFeed struct {
	mu     sync.Mutex
	states []score.State
	idx    int
}

func (f *stateFeed) Next(ctx context.Context) (score.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.states) {
		return score.State{}, io.EOF
	}
	st := f.states[f.idx]
	f.idx++
	return st, nil
}

func (f *stateFeed) Close() error { return nil }

// fixedQuoter returns the same quote, freshly timestamped.
type fixedQuoter struct {
	bid, ask int64
	err      error
}

func (q *fixedQuoter) GetQuote(ctx context.Context, ticker string) (kalshi.Quote, error) {
	if q.err != nil {
		return kalshi.Quote{}, q.err
	}
	return kalshi.Quote{
		Ticker: ticker,
		YesBid: decimal.NewFromInt(q.bid),
		YesAsk: decimal.NewFromInt(q.ask),
		At:     time.Now(),
	}, nil
}

// recordingExecutor captures orders, optionally failing the first N.
type recordingExecutor struct {
	mu       sync.Mutex
	orders   []kalshi.OrderRequest
	failNext int
}

func (e *recordingExecutor) SubmitOrder(ctx context.Context, req kalshi.OrderRequest) (kalshi.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext > 0 {
		e.failNext--
		return kalshi.OrderResult{}, errors.New("exchange unavailable")
	}
	e.orders = append(e.orders, req)
	return kalshi.OrderResult{
		OrderID:   fmt.Sprintf("ord-%d", len(e.orders)),
		Status:    kalshi.StatusExecuted,
		FilledQty: req.Contracts,
		AvgPrice:  decimal.NewFromInt(req.PriceCents),
		PlacedAt:  time.Now(),
	}, nil
}

func statesFrom(t *testing.T, initial score.State, winners ...score.Player) []score.State {
	t.Helper()
	states := []score.State{initial}
	cur := initial
	for _, w := range winners {
		next, err := cur.ApplyPoint(w)
		if err != nil {
			t.Fatalf("ApplyPoint: %v", err)
		}
		states = append(states, next)
		cur = next
	}
	return states
}

func testSession(t *testing.T, cfg SessionConfig) *Session {
	t.Helper()
	if cfg.MatchID == "" {
		cfg.MatchID = "m1"
	}
	if cfg.Ticker == "" {
		cfg.Ticker = "TENNIS-M1"
	}
	if cfg.Model == nil {
		m, err := serve.New(serve.DefaultPriors(), serve.DefaultConfig())
		if err != nil {
			t.Fatalf("serve.New: %v", err)
		}
		cfg.Model = m
	}
	if cfg.Engine == nil {
		e, err := signal.NewEngine(signal.Config{
			Fees:          signal.FlatFeeModel{PerContractCents: decimal.NewFromInt(1)},
			MinEdgeCents:  decimal.NewFromInt(1),
			KellyFraction: 0.25,
			MaxContracts:  10,
			BankrollCents: 100_000,
			MaxRisk:       0.02,
		})
		if err != nil {
			t.Fatalf("signal.NewEngine: %v", err)
		}
		cfg.Engine = e
	}
	if cfg.Guard == nil {
		g, err := policy.NewGuard(policy.Limits{MaxContractsPerOrder: 10})
		if err != nil {
			t.Fatalf("policy.NewGuard: %v", err)
		}
		cfg.Guard = g
	}
	if cfg.QuoteMaxAge == 0 {
		cfg.QuoteMaxAge = 5 * time.Second
	}
	if cfg.TickTimeout == 0 {
		cfg.TickTimeout = time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewTradingMetrics()
	}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestSessionBuysOnCheapMarket(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	exec := &recordingExecutor{}

	s := testSession(t, SessionConfig{
		Feed:     &stateFeed{states: statesFrom(t, initial, score.PlayerA)},
		Quoter:   &fixedQuoter{bid: 5, ask: 7}, // far below any sane fair price
		Executor: exec,
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(exec.orders) == 0 {
		t.Fatal("no orders placed against an obviously cheap market")
	}
	first := exec.orders[0]
	if first.Action != kalshi.ActionBuy || first.Side != kalshi.SideYes {
		t.Errorf("order = %+v, want a YES buy", first)
	}
	if first.PriceCents != 7 {
		t.Errorf("limit = %d, want ask 7", first.PriceCents)
	}
	if first.Contracts <= 0 || first.Contracts > 10 {
		t.Errorf("contracts = %d", first.Contracts)
	}
	if first.ClientID == "" {
		t.Error("order has no client id")
	}
}

func TestSessionHoldsOnFairMarket(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	exec := &recordingExecutor{}

	var signals []signal.Signal
	s := testSession(t, SessionConfig{
		Feed:     &stateFeed{states: statesFrom(t, initial, score.PlayerA)},
		Quoter:   &fixedQuoter{bid: 49, ask: 51}, // roughly fair for even players
		Executor: exec,
		OnSignal: func(sig signal.Signal) { signals = append(signals, sig) },
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(exec.orders) != 0 {
		t.Errorf("orders placed with no edge: %d", len(exec.orders))
	}
	if len(signals) == 0 {
		t.Fatal("no signals observed")
	}
	for _, sig := range signals {
		if sig.Action != signal.ActionHold {
			t.Errorf("signal %s at edge %s, want HOLD", sig.Action, sig.EdgeCents)
		}
	}
}

func TestSessionHoldsOnQuoteFailure(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	exec := &recordingExecutor{}

	var errs []error
	var signals []signal.Signal
	s := testSession(t, SessionConfig{
		Feed:     &stateFeed{states: statesFrom(t, initial, score.PlayerA)},
		Quoter:   &fixedQuoter{err: kalshi.ErrQuoteUnavailable},
		Executor: exec,
		OnError:  func(err error) { errs = append(errs, err) },
		OnSignal: func(sig signal.Signal) { signals = append(signals, sig) },
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(exec.orders) != 0 {
		t.Errorf("orders placed without a quote: %d", len(exec.orders))
	}
	if len(errs) == 0 {
		t.Fatal("quote failures not reported")
	}
	if !errors.Is(errs[0], kalshi.ErrQuoteUnavailable) {
		t.Errorf("err = %v, want ErrQuoteUnavailable", errs[0])
	}
	// The failed quote still produces an auditable HOLD tick.
	if len(signals) == 0 {
		t.Fatal("no hold signal emitted for the failed quote")
	}
	for _, sig := range signals {
		if sig.Action != signal.ActionHold {
			t.Errorf("signal %s without a quote, want HOLD", sig.Action)
		}
	}
}

func TestSessionHoldsOnWideSpread(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	exec := &recordingExecutor{}
	m := metrics.NewTradingMetrics()

	var signals []signal.Signal
	s := testSession(t, SessionConfig{
		Feed:           &stateFeed{states: statesFrom(t, initial, score.PlayerA)},
		Quoter:         &fixedQuoter{bid: 10, ask: 40},
		Executor:       exec,
		MaxSpreadCents: 10,
		Metrics:        m,
		OnSignal:       func(sig signal.Signal) { signals = append(signals, sig) },
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(exec.orders) != 0 {
		t.Errorf("orders placed into a collapsed book: %d", len(exec.orders))
	}
	for _, sig := range signals {
		if sig.Action != signal.ActionHold {
			t.Errorf("signal %s on a 30 cent spread, want HOLD", sig.Action)
		}
	}
	if got := testutil.ToFloat64(m.GuardrailHalts.WithLabelValues("spread")); got == 0 {
		t.Error("spread trip not recorded on the guardrail counter")
	}
}

func TestSessionHaltBlocksTradingUntilResume(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	exec := &recordingExecutor{}

	var s *Session
	var halts int
	s = testSession(t, SessionConfig{
		Feed:     &stateFeed{states: statesFrom(t, initial, score.PlayerA, score.PlayerA)},
		Quoter:   &fixedQuoter{bid: 5, ask: 7}, // plenty of edge if trading were allowed
		Executor: exec,
		OnSignal: func(sig signal.Signal) {
			if sig.Action == signal.ActionHold && strings.HasPrefix(sig.Reason, "halted") {
				halts++
				if err := s.Resume(); err != nil {
					t.Errorf("Resume: %v", err)
				}
			}
		},
	})
	s.Halt("rain delay")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if halts == 0 {
		t.Fatal("halted session never reported a halted hold")
	}
	if len(exec.orders) == 0 {
		t.Fatal("resumed session never traded")
	}
}

func TestSessionSkipsImpossibleTransition(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	jump := initial
	jump.Games = [2]int{3, 0} // not reachable in one point

	var errs []error
	s := testSession(t, SessionConfig{
		Feed:    &stateFeed{states: []score.State{initial, jump}},
		Quoter:  &fixedQuoter{bid: 49, ask: 51},
		OnError: func(err error) { errs = append(errs, err) },
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(errs) == 0 {
		t.Fatal("impossible transition not reported")
	}
	if !errors.Is(errs[0], score.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", errs[0])
	}
}

func TestSessionRetriesAfterFailedOrder(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	exec := &recordingExecutor{failNext: 1}

	// The same score state is delivered twice; the failed first submission
	// must not consume the idempotency key.
	first := statesFrom(t, initial, score.PlayerA)
	states := append(first, first[len(first)-1])

	s := testSession(t, SessionConfig{
		Feed:     &stateFeed{states: states},
		Quoter:   &fixedQuoter{bid: 5, ask: 7},
		Executor: exec,
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(exec.orders) == 0 {
		t.Fatal("order never retried after a failed submission")
	}
}

func TestSessionFeedsServeModel(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	model, err := serve.New(serve.DefaultPriors(), serve.DefaultConfig())
	if err != nil {
		t.Fatalf("serve.New: %v", err)
	}

	// A holds to love: one complete service game.
	s := testSession(t, SessionConfig{
		Feed:   &stateFeed{states: statesFrom(t, initial, score.PlayerA, score.PlayerA, score.PlayerA, score.PlayerA)},
		Quoter: &fixedQuoter{bid: 49, ask: 51},
		Model:  model,
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := model.GamesObserved(score.PlayerA); got != 1 {
		t.Errorf("games observed for A = %d, want 1", got)
	}
	if got := model.GamesObserved(score.PlayerB); got != 0 {
		t.Errorf("games observed for B = %d, want 0", got)
	}
}

func TestSessionStopsWhenMatchDecided(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	initial.Sets = [2]int{1, 0}
	initial.Games = [2]int{5, 0}
	initial.Points = [2]int{3, 0}

	engineCfg := signal.Config{
		Fees:          signal.FlatFeeModel{PerContractCents: decimal.NewFromInt(1)},
		MinEdgeCents:  decimal.NewFromInt(1),
		KellyFraction: 0.25,
		MaxContracts:  10,
		BankrollCents: 100_000,
		MaxRisk:       0.02,
	}
	engine, err := signal.NewEngine(engineCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	// Extra trailing states would be EOF'd by the replay; here the terminal
	// state itself must end the session.
	s := testSession(t, SessionConfig{
		Feed:   &stateFeed{states: statesFrom(t, initial, score.PlayerA)},
		Quoter: &fixedQuoter{bid: 5, ask: 7},
		Engine: engine,
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := engine.State(); got != signal.StateDone {
		t.Errorf("engine state = %s, want DONE", got)
	}
}

func TestSessionGuardBlocksOrder(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	guard, err := policy.NewGuard(policy.Limits{MaxContractsPerOrder: 1, MaxPositionContracts: 1})
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	exec := &recordingExecutor{}

	var errs []error
	s := testSession(t, SessionConfig{
		Feed:     &stateFeed{states: statesFrom(t, initial, score.PlayerA)},
		Quoter:   &fixedQuoter{bid: 5, ask: 7},
		Executor: exec,
		Guard:    guard,
		OnError:  func(err error) { errs = append(errs, err) },
	})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(exec.orders) != 0 {
		t.Errorf("guard did not block the order: %d orders", len(exec.orders))
	}
	found := false
	for _, err := range errs {
		if errors.Is(err, policy.ErrGuardrailTripped) {
			found = true
		}
	}
	if !found {
		t.Error("guardrail trip not reported")
	}
}

func TestNewSessionValidates(t *testing.T) {
	if _, err := NewSession(SessionConfig{}); err == nil {
		t.Error("NewSession accepted an empty config")
	}
}

func TestMultiRunnerRunsAllSessions(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)

	var mu sync.Mutex
	seen := map[string]bool{}
	sessions := make([]*Session, 0, 2)
	for _, id := range []string{"m1", "m2"} {
		id := id
		sessions = append(sessions, testSession(t, SessionConfig{
			MatchID: id,
			Ticker:  "TENNIS-" + id,
			Feed:    &stateFeed{states: statesFrom(t, initial, score.PlayerA)},
			Quoter:  &fixedQuoter{bid: 49, ask: 51},
			OnSignal: func(sig signal.Signal) {
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			},
		}))
	}

	r := NewMultiRunner(sessions, metrics.NewTradingMetrics())
	if got := r.Session("m2"); got == nil || got.MatchID() != "m2" {
		t.Errorf("Session(m2) = %v", got)
	}
	if got := r.Session("nope"); got != nil {
		t.Errorf("Session(nope) = %v, want nil", got)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !seen["m1"] || !seen["m2"] {
		t.Errorf("sessions did not all tick: %v", seen)
	}
}
