package prob

import (
	"fmt"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

// Match returns the probability that player A wins the match from st.
//
// The set in progress is priced from its live game/point position; every
// future set uses the steady-state set probability, so in-progress noise
// never leaks into far-future projections. A deciding set without a tiebreak
// gets its own steady-state figure.
func Match(pA, pB float64, st score.State) (float64, error) {
	if w, done := st.Winner(); done {
		if w == score.PlayerA {
			return 1, nil
		}
		return 0, nil
	}

	live, err := Set(pA, pB, st)
	if err != nil {
		return 0, err
	}

	steady, err := SteadyStateSet(pA, pB, true, st.Rule)
	if err != nil {
		return 0, err
	}
	steadyFinal := steady
	if !st.Format.FinalSetTiebreak {
		steadyFinal, err = SteadyStateSet(pA, pB, false, st.Rule)
		if err != nil {
			return 0, err
		}
	}

	a, b := st.Sets[score.PlayerA], st.Sets[score.PlayerB]
	win := winFromSets(a+1, b, st.Format, steady, steadyFinal)
	lose := winFromSets(a, b+1, st.Format, steady, steadyFinal)
	return live*win + (1-live)*lose, nil
}

// MatchFrom is the raw set-score recursion: probability of winning the match
// given the live set's win probability and a single steady-state probability
// for all future sets.
func MatchFrom(liveSet, steadySet float64, setsA, setsB int, format score.Format) (float64, error) {
	if err := format.Validate(); err != nil {
		return 0, err
	}
	if setsA < 0 || setsB < 0 || setsA+setsB >= format.BestOf {
		return 0, fmt.Errorf("prob: set score %d-%d out of range for best of %d", setsA, setsB, format.BestOf)
	}
	win := winFromSets(setsA+1, setsB, format, steadySet, steadySet)
	lose := winFromSets(setsA, setsB+1, format, steadySet, steadySet)
	return liveSet*win + (1-liveSet)*lose, nil
}

// winFromSets walks the remaining hypothetical sets. The state space is tiny
// (at most 3x3), so no memoization is needed.
func winFromSets(a, b int, format score.Format, steady, steadyFinal float64) float64 {
	need := format.SetsToWin()
	switch {
	case a >= need:
		return 1
	case b >= need:
		return 0
	}
	p := steady
	if a+b == format.BestOf-1 {
		p = steadyFinal
	}
	return p*winFromSets(a+1, b, format, steady, steadyFinal) +
		(1-p)*winFromSets(a, b+1, format, steady, steadyFinal)
}
