// Package serve maintains each player's serve-point win probability, the two
// scalar inputs the probability engine consumes.
//
// The model is a pair of Beta-style pseudo-count priors updated from observed
// service games with an adaptive discount, so early updates are conservative
// and the model grows more responsive as evidence accumulates. Updates happen
// only at service-game boundaries, never mid-point; the model does not chase
// single-point noise.
package serve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

// ErrInvalidPriors is returned when priors produce a probability outside
// (0,1) or non-positive pseudo-counts.
var ErrInvalidPriors = errors.New("serve: invalid priors")

// Probabilities are kept strictly inside (0,1); the probability engine
// rejects the endpoints.
const (
	probFloor = 0.01
	probCeil  = 0.99
)

// Surface identifies the court surface, used for a multiplicative adjustment
// on the serve-point probability.
type Surface string

const (
	SurfaceHard   Surface = "hard"
	SurfaceClay   Surface = "clay"
	SurfaceGrass  Surface = "grass"
	SurfaceIndoor Surface = "indoor"
)

// surfaceAdjust scales the serve-point probability per surface. Values carry
// over from the historical calibration: clay blunts serves slightly, grass
// and indoor courts reward them.
var surfaceAdjust = map[Surface]float64{
	SurfaceHard:   1.0,
	SurfaceClay:   0.95,
	SurfaceGrass:  1.05,
	SurfaceIndoor: 1.02,
}

// Priors hold initial pseudo-counts per player: alpha counts serve points
// won, beta counts serve points lost.
type Priors struct {
	AlphaA, BetaA float64
	AlphaB, BetaB float64
}

// DefaultPriors reflect typical tour-level serve dominance.
func DefaultPriors() Priors {
	return Priors{AlphaA: 30, BetaA: 20, AlphaB: 30, BetaB: 20}
}

// PlayerStats summarizes historical serve/return splits for one player,
// used to warm the priors from match statistics.
type PlayerStats struct {
	FirstServePct    float64 // share of first serves in
	FirstServeWinPct float64 // points won when the first serve lands
	SecondServeWin   float64 // points won on second serve
	OpponentReturn   float64 // opponent's return-point win rate
}

// PriorsFromStats derives one player's pseudo-counts from serve statistics,
// weighted as the given number of observed points.
func PriorsFromStats(s PlayerStats, weight float64) (alpha, beta float64) {
	p := s.FirstServePct*s.FirstServeWinPct + (1-s.FirstServePct)*s.SecondServeWin
	p *= 1 - s.OpponentReturn/2
	p = clamp(p)
	return p * weight, (1 - p) * weight
}

// Config tunes the model.
type Config struct {
	// DiscountBase is the C in the adaptive discount 1/(N+C): larger means
	// the model trusts its priors longer.
	DiscountBase float64

	// Surface applies the per-surface adjustment; empty means no adjustment.
	Surface Surface
}

// DefaultConfig mirrors the historical tuning.
func DefaultConfig() Config {
	return Config{DiscountBase: 2.0, Surface: SurfaceHard}
}

// Model tracks both players' serve-point probabilities for one match.
// Safe for use from the match's single tick goroutine plus concurrent
// readers (metrics, status endpoints).
type Model struct {
	mu          sync.RWMutex
	alpha, beta [2]float64
	games       [2]int
	cfg         Config
	adjust      float64
}

// New validates priors and builds a model. Misconfiguration is rejected here,
// before any tick is processed.
func New(priors Priors, cfg Config) (*Model, error) {
	if cfg.DiscountBase <= 0 {
		return nil, fmt.Errorf("serve: discount base %v must be positive", cfg.DiscountBase)
	}
	adjust := 1.0
	if cfg.Surface != "" {
		a, ok := surfaceAdjust[cfg.Surface]
		if !ok {
			return nil, fmt.Errorf("serve: unknown surface %q", cfg.Surface)
		}
		adjust = a
	}

	m := &Model{
		alpha:  [2]float64{priors.AlphaA, priors.AlphaB},
		beta:   [2]float64{priors.BetaA, priors.BetaB},
		cfg:    cfg,
		adjust: adjust,
	}
	for _, p := range []score.Player{score.PlayerA, score.PlayerB} {
		if m.alpha[p] <= 0 || m.beta[p] <= 0 {
			return nil, fmt.Errorf("%w: non-positive pseudo-counts for %s", ErrInvalidPriors, p)
		}
		pw := m.pointWinLocked(p)
		if pw <= 0 || pw >= 1 {
			return nil, fmt.Errorf("%w: point-win prob %v for %s", ErrInvalidPriors, pw, p)
		}
	}
	return m, nil
}

// PointWinProb returns the player's current serve-point win probability,
// surface-adjusted and clamped strictly inside (0,1).
func (m *Model) PointWinProb(p score.Player) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointWinLocked(p)
}

func (m *Model) pointWinLocked(p score.Player) float64 {
	raw := m.alpha[p] / (m.alpha[p] + m.beta[p])
	return clamp(raw * m.adjust)
}

// RecordServiceGame folds a completed service game into the server's
// pseudo-counts. The update is discounted by 1/(N+C) where N is the number of
// service games already observed for that player. Tiebreaks are not recorded:
// their points are split across both serves.
func (m *Model) RecordServiceGame(server score.Player, pointsWon, totalPoints int) {
	if totalPoints <= 0 || pointsWon < 0 || pointsWon > totalPoints {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := 1.0 / (float64(m.games[server]) + m.cfg.DiscountBase)
	cur := m.alpha[server] / (m.alpha[server] + m.beta[server])
	lost := totalPoints - pointsWon

	m.alpha[server] += d * (float64(pointsWon) - cur*float64(totalPoints))
	m.beta[server] += d * (float64(lost) - (1-cur)*float64(totalPoints))
	m.games[server]++

	// Pseudo-counts must stay positive for the ratio to stay in (0,1).
	if m.alpha[server] < 1 {
		m.alpha[server] = 1
	}
	if m.beta[server] < 1 {
		m.beta[server] = 1
	}
}

// GamesObserved returns how many service games have been folded in for the
// player.
func (m *Model) GamesObserved(p score.Player) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.games[p]
}

func clamp(p float64) float64 {
	switch {
	case p < probFloor:
		return probFloor
	case p > probCeil:
		return probCeil
	}
	return p
}
