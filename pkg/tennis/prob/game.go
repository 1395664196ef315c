// Package prob computes exact win probabilities for the nested scoring
// structure of tennis: point -> game -> tiebreak -> set -> match.
//
// Every result is a deterministic closed-form/recursive computation; there is
// no sampling anywhere. Infinite win-by-two races (deuce, a tied tiebreak, a
// tied advantage set) are resolved with two-state Markov absorption formulas
// rather than truncated recursion, so no truncation error enters the
// set/match layers.
package prob

import (
	"errors"
	"fmt"
	"math"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

// ErrInvalidProbability is returned for serve-point probabilities outside the
// open interval (0,1). The deuce closed form degenerates at 0 and 1.
var ErrInvalidProbability = errors.New("prob: probability outside (0,1)")

func checkProb(p float64) error {
	if math.IsNaN(p) || p <= 0 || p >= 1 {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	return nil
}

type gameKey struct {
	q    int32
	s, r int8
	rule score.Rule
}

// Game returns the probability that the server wins the current game from the
// given point tally (server's points first). The serve-point probability p
// must be strictly inside (0,1).
func Game(p float64, serverPts, returnerPts int, rule score.Rule) (float64, error) {
	if err := checkProb(p); err != nil {
		return 0, err
	}
	if serverPts < 0 || returnerPts < 0 {
		return 0, fmt.Errorf("prob: negative point count %d-%d", serverPts, returnerPts)
	}
	return gameFrom(p, serverPts, returnerPts, rule), nil
}

// deuceWin is the probability the server wins from deuce under advantage
// scoring: absorption of the win-by-two chain, p^2 / (p^2 + q^2).
func deuceWin(p float64) float64 {
	q := 1 - p
	return p * p / (p*p + q*q)
}

func gameFrom(p float64, s, r int, rule score.Rule) float64 {
	if rule == score.RuleNoAd {
		// First to four; the point at 3-3 is sudden death.
		switch {
		case s >= 4:
			return 1
		case r >= 4:
			return 0
		case s == 3 && r == 3:
			return p
		}
	} else {
		switch {
		case s >= 4 && s-r >= 2:
			return 1
		case r >= 4 && r-s >= 2:
			return 0
		case s >= 3 && r >= 3:
			// All tied states at 40-40 or beyond are probabilistically
			// deuce; one-point leads are one step from it.
			pd := deuceWin(p)
			switch {
			case s == r:
				return pd
			case s == r+1:
				return p + (1-p)*pd
			default: // r == s+1
				return p * pd
			}
		}
	}

	key := gameKey{quantize(p), int8(s), int8(r), rule}
	if v, ok := gameCache.Load(key); ok {
		return v.(float64)
	}
	v := p*gameFrom(p, s+1, r, rule) + (1-p)*gameFrom(p, s, r+1, rule)
	actual, _ := gameCache.LoadOrStore(key, v)
	return actual.(float64)
}
