package prob

import (
	"fmt"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

type tbKey struct {
	qA, qB int32
	a, b   int8
	first  score.Player
}

// Tiebreak returns the probability that player A wins a tiebreak (first to 7,
// win by two) from the given point score. pA and pB are each player's
// serve-point win probabilities; firstServer is the player who served (or
// will serve) the first point of the tiebreak, which fixes the serve rotation
// for every subsequent point.
func Tiebreak(pA, pB float64, ptsA, ptsB int, firstServer score.Player) (float64, error) {
	if err := checkProb(pA); err != nil {
		return 0, err
	}
	if err := checkProb(pB); err != nil {
		return 0, err
	}
	if ptsA < 0 || ptsB < 0 {
		return 0, fmt.Errorf("prob: negative tiebreak score %d-%d", ptsA, ptsB)
	}
	return tiebreakFrom(pA, pB, ptsA, ptsB, firstServer), nil
}

// tiedPairWin resolves the win-by-two race once the tiebreak is level at six
// or beyond. From any tied state the next two points are served one by each
// player (in either order, which does not matter): A takes both with
// probability w, drops both with probability l, and a split returns to the
// tied state. Absorption gives w / (w + l). This is deliberately not the
// single-server deuce formula: the serve alternates inside the pair.
func tiedPairWin(pA, pB float64) float64 {
	w := pA * (1 - pB)
	l := (1 - pA) * pB
	return w / (w + l)
}

func tiebreakFrom(pA, pB float64, a, b int, first score.Player) float64 {
	switch {
	case a >= 7 && a-b >= 2:
		return 1
	case b >= 7 && b-a >= 2:
		return 0
	case a >= 6 && a == b:
		return tiedPairWin(pA, pB)
	}

	key := tbKey{quantize(pA), quantize(pB), int8(a), int8(b), first}
	if v, ok := tbCache.Load(key); ok {
		return v.(float64)
	}

	// Probability A wins the next point, on whoever's serve it falls.
	var pPoint float64
	if score.TiebreakServerAt(first, a+b) == score.PlayerA {
		pPoint = pA
	} else {
		pPoint = 1 - pB
	}

	v := pPoint*tiebreakFrom(pA, pB, a+1, b, first) + (1-pPoint)*tiebreakFrom(pA, pB, a, b+1, first)
	actual, _ := tbCache.LoadOrStore(key, v)
	return actual.(float64)
}
