// tennisd prices live tennis matches and trades the corresponding
// match-winner markets. It runs one session per configured match.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/courtline/tennis-edge/pkg/config"
	"github.com/courtline/tennis-edge/pkg/feed"
	"github.com/courtline/tennis-edge/pkg/kalshi"
	"github.com/courtline/tennis-edge/pkg/tennis/players"
	"github.com/courtline/tennis-edge/pkg/tennis/score"
	"github.com/courtline/tennis-edge/pkg/tennis/serve"
	"github.com/courtline/tennis-edge/pkg/trader/metrics"
	"github.com/courtline/tennis-edge/pkg/trader/paper"
	"github.com/courtline/tennis-edge/pkg/trader/policy"
	"github.com/courtline/tennis-edge/pkg/trader/runner"
	"github.com/courtline/tennis-edge/pkg/trader/signal"
)

var (
	// Flags
	configPath = flag.String("config", "tennis.toml", "Path to the TOML config file")
	paperFlag  = flag.Bool("paper", true, "Simulate fills instead of sending orders")
	verbose    = flag.Bool("verbose", false, "Log every hold, not just trades")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting tennis pricing daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !*paperFlag {
		cfg.Exchange.Paper = false
	}
	if len(cfg.Matches) == 0 {
		log.Fatal("No matches configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d, err := newDaemon(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize daemon: %v", err)
	}

	if cfg.Metrics.Addr != "" {
		go d.startHTTP(cfg.Metrics.Addr)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- d.multi.Run(ctx)
	}()
	log.Printf("Daemon running (paper=%v, matches=%d)", cfg.Exchange.Paper, len(cfg.Matches))

	select {
	case <-sigCh:
		log.Println("Shutting down...")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Fatalf("Runner failed: %v", err)
		}
	}

	if d.paperVenue != nil {
		stats := d.paperVenue.Stats()
		log.Printf("Final stats: cash=%s¢ realized=%s¢ fills=%d rejected=%d",
			stats.CashCents, stats.RealizedCents, stats.Fills, stats.Rejected)
	}
	log.Println("Goodbye!")
}

type daemon struct {
	client     *kalshi.Client
	paperVenue *paper.Venue
	multi      *runner.MultiRunner
	metrics    *metrics.TradingMetrics
}

func newDaemon(ctx context.Context, cfg config.Config) (*daemon, error) {
	d := &daemon{metrics: metrics.NewTradingMetrics()}

	env := kalshi.Environment(cfg.Exchange.Environment)
	var signer *kalshi.Signer
	if cfg.Exchange.KeyID != "" && cfg.Exchange.PrivateKeyPath != "" {
		var err error
		signer, err = kalshi.LoadSigner(cfg.Exchange.KeyID, cfg.Exchange.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load exchange credentials: %w", err)
		}
		log.Printf("Exchange client authenticated (env: %s)", env)
	} else {
		log.Println("No exchange credentials - quotes only")
	}
	d.client = kalshi.NewClient(env, signer)

	var exec runner.Executor
	if cfg.Exchange.Paper {
		d.paperVenue = paper.NewVenue(cfg.Trading.BankrollCents, signal.KalshiFeeModel{})
		exec = d.paperVenue
	} else {
		if signer == nil {
			return nil, fmt.Errorf("live trading requires exchange credentials")
		}
		exec = d.client
	}

	guard, err := policy.NewGuard(policy.Limits{
		MaxContractsPerOrder: cfg.Trading.MaxContracts,
		MaxPositionContracts: cfg.Trading.MaxContracts * 5,
		MaxDailyLossCents:    decimal.NewFromInt(cfg.Trading.MaxDailyLossCents),
		MaxLossStreak:        cfg.Trading.MaxLossStreak,
		Cooldown:             cfg.Trading.Cooldown(),
	})
	if err != nil {
		return nil, err
	}

	sessions := make([]*runner.Session, 0, len(cfg.Matches))
	for _, m := range cfg.Matches {
		if err := verifyMarket(ctx, d.client, m); err != nil {
			return nil, err
		}
		sess, err := newSession(ctx, cfg, m, d, exec, guard)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", m.ID, err)
		}
		sessions = append(sessions, sess)
	}
	d.multi = runner.NewMultiRunner(sessions, d.metrics)
	return d, nil
}

func newSession(ctx context.Context, cfg config.Config, m config.MatchConfig, d *daemon, exec runner.Executor, guard *policy.Guard) (*runner.Session, error) {
	format := score.Format{BestOf: m.BestOf, FinalSetTiebreak: true}
	if m.FinalSetTiebreak != nil {
		format.FinalSetTiebreak = *m.FinalSetTiebreak
	}
	rule := score.RuleAdvantage
	if m.NoAd {
		rule = score.RuleNoAd
	}

	model, err := serve.New(serve.DefaultPriors(), serve.Config{
		DiscountBase: cfg.Model.DiscountBase,
		Surface:      serve.Surface(cfg.Model.Surface),
	})
	if err != nil {
		return nil, err
	}

	engine, err := signal.NewEngine(signal.Config{
		Fees:          signal.KalshiFeeModel{},
		MinEdgeCents:  decimal.NewFromFloat(cfg.Trading.MinEdgeCents),
		KellyFraction: cfg.Trading.KellyFraction,
		MaxContracts:  cfg.Trading.MaxContracts,
		BankrollCents: cfg.Trading.BankrollCents,
		MaxRisk:       cfg.Trading.MaxBankrollRisk,
	})
	if err != nil {
		return nil, err
	}

	f, err := openFeed(ctx, cfg.Feed, m, format, rule, d.metrics)
	if err != nil {
		return nil, err
	}

	return runner.NewSession(runner.SessionConfig{
		MatchID:        m.ID,
		Ticker:         m.Ticker,
		Feed:           f,
		Quoter:         d.client,
		Executor:       exec,
		Model:          model,
		Engine:         engine,
		Guard:          guard,
		QuoteMaxAge:    cfg.Feed.QuoteMaxAge(),
		MaxSpreadCents: cfg.Feed.MaxSpreadCents,
		TickTimeout:    cfg.Feed.TickTimeout(),
		Metrics:        d.metrics,
		OnSignal: func(sig signal.Signal) {
			if sig.Action == signal.ActionHold && !*verbose {
				return
			}
			log.Printf("[%s] %s fair=%d¢ mid=%s¢ edge=%s¢ qty=%d (%s)",
				m.ID, sig.Action, sig.FairCents, sig.MarketMid, sig.EdgeCents, sig.Contracts, sig.Reason)
		},
		OnError: func(err error) {
			log.Printf("[%s] ERROR %v", m.ID, err)
		},
	})
}

// verifyMarket cross-checks the configured player names against the market
// title before a session starts. An unreachable market is logged and skipped;
// a title naming neither player is a wiring mistake and aborts startup.
func verifyMarket(ctx context.Context, client *kalshi.Client, m config.MatchConfig) error {
	if m.PlayerA == "" && m.PlayerB == "" {
		return nil
	}
	mkt, err := client.GetMarket(ctx, m.Ticker)
	if err != nil {
		log.Printf("[%s] market title check skipped: %v", m.ID, err)
		return nil
	}
	for _, p := range []string{m.PlayerA, m.PlayerB} {
		if p != "" && !players.InTitle(p, mkt.Title) {
			return fmt.Errorf("market %s title %q does not mention player %q", m.Ticker, mkt.Title, p)
		}
	}
	log.Printf("[%s] market %s verified: %q", m.ID, m.Ticker, mkt.Title)
	return nil
}

// openFeed picks replay or websocket depending on config.
func openFeed(ctx context.Context, fc config.FeedConfig, m config.MatchConfig, format score.Format, rule score.Rule, tm *metrics.TradingMetrics) (feed.Feed, error) {
	if fc.ReplayFile != "" {
		return openReplay(fc, format, rule)
	}
	if fc.URL == "" {
		return nil, fmt.Errorf("feed: neither url nor replay_file configured")
	}
	wcfg := feed.DefaultWSConfig(fc.URL, m.ID, format, rule)
	wcfg.OnReconnect = func(attempt int) {
		log.Printf("[%s] feed reconnected after %d attempts", m.ID, attempt)
		tm.RecordFeedReconnect(m.ID)
	}
	return feed.DialWS(ctx, wcfg)
}

// replayScript is the on-disk replay format: the first server and the point
// winners in order.
type replayScript struct {
	FirstServer string   `json:"first_server"`
	Points      []string `json:"points"`
}

func openReplay(fc config.FeedConfig, format score.Format, rule score.Rule) (feed.Feed, error) {
	raw, err := os.ReadFile(fc.ReplayFile)
	if err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	var script replayScript
	if err := json.Unmarshal(raw, &script); err != nil {
		return nil, fmt.Errorf("parse replay: %w", err)
	}

	first := score.PlayerA
	if script.FirstServer == "b" || script.FirstServer == "B" {
		first = score.PlayerB
	}
	initial, err := score.NewMatch(format, rule, first)
	if err != nil {
		return nil, err
	}
	winners := make([]score.Player, 0, len(script.Points))
	for i, p := range script.Points {
		switch p {
		case "a", "A":
			winners = append(winners, score.PlayerA)
		case "b", "B":
			winners = append(winners, score.PlayerB)
		default:
			return nil, fmt.Errorf("replay point %d: unknown player %q", i, p)
		}
	}
	return feed.NewReplay(initial, winners, time.Duration(fc.ReplayDelayMS)*time.Millisecond)
}

func (d *daemon) startHTTP(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if d.paperVenue != nil {
			json.NewEncoder(w).Encode(d.paperVenue.Stats())
		} else {
			json.NewEncoder(w).Encode(map[string]string{"error": "not in paper mode"})
		}
	})

	mux.HandleFunc("/halt", d.handleHalt)
	mux.HandleFunc("/resume", d.handleResume)

	mux.Handle("/metrics", promhttp.HandlerFor(d.metrics.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("HTTP server listening on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

// handleHalt latches one session (?match=ID) or all of them into HALTED.
// POST /halt?match=wimbledon-final&reason=rain
func (d *daemon) handleHalt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "operator"
	}
	sessions, err := d.selectSessions(r.URL.Query().Get("match"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	for _, s := range sessions {
		s.Halt(reason)
		log.Printf("[%s] trading halted: %s", s.MatchID(), reason)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "halted", "reason": reason, "matches": len(sessions)})
}

// handleResume returns halted sessions to active trading.
func (d *daemon) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := d.selectSessions(r.URL.Query().Get("match"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	resumed := 0
	for _, s := range sessions {
		if err := s.Resume(); err != nil {
			continue // not halted
		}
		resumed++
		log.Printf("[%s] trading resumed", s.MatchID())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "resumed", "matches": resumed})
}

func (d *daemon) selectSessions(matchID string) ([]*runner.Session, error) {
	if matchID == "" {
		return d.multi.Sessions(), nil
	}
	s := d.multi.Session(matchID)
	if s == nil {
		return nil, fmt.Errorf("unknown match %q", matchID)
	}
	return []*runner.Session{s}, nil
}
