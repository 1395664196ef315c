package prob

import (
	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

type setKey struct {
	qA, qB   int32
	gA, gB   int16
	server   score.Player
	tiebreak bool // set decided by tiebreak at 6-6
	rule     score.Rule
}

// Set returns the probability that player A wins the set in progress in st.
// pA and pB are serve-point win probabilities. The in-progress game (or
// tiebreak) is priced from its live point tally; later games start fresh with
// the serve alternating.
func Set(pA, pB float64, st score.State) (float64, error) {
	if err := checkProb(pA); err != nil {
		return 0, err
	}
	if err := checkProb(pB); err != nil {
		return 0, err
	}

	if st.InTiebreak {
		return Tiebreak(pA, pB, st.Points[score.PlayerA], st.Points[score.PlayerB], st.TiebreakFirstServer)
	}

	tiebreakSet := !st.FinalSet() || st.Format.FinalSetTiebreak
	gA, gB := st.Games[score.PlayerA], st.Games[score.PlayerB]

	if st.Points == [2]int{} {
		return setFrom(pA, pB, gA, gB, st.Server, tiebreakSet, st.Rule), nil
	}

	// Mid-game: price the live game from its point tally, then recurse on
	// the two possible game outcomes.
	var sPts, rPts int
	if st.Server == score.PlayerA {
		sPts, rPts = st.Points[score.PlayerA], st.Points[score.PlayerB]
	} else {
		sPts, rPts = st.Points[score.PlayerB], st.Points[score.PlayerA]
	}
	hold := gameFrom(serveProb(pA, pB, st.Server), sPts, rPts, st.Rule)

	pWinGameA := hold
	if st.Server == score.PlayerB {
		pWinGameA = 1 - hold
	}
	next := st.Server.Other()
	return pWinGameA*setFrom(pA, pB, gA+1, gB, next, tiebreakSet, st.Rule) +
		(1-pWinGameA)*setFrom(pA, pB, gA, gB+1, next, tiebreakSet, st.Rule), nil
}

// FreshSet returns the probability that player A wins a set that has not
// started, given who serves its first game. tiebreakSet selects a tiebreak at
// 6-6; otherwise the set runs until a two-game lead.
func FreshSet(pA, pB float64, firstServer score.Player, tiebreakSet bool, rule score.Rule) (float64, error) {
	if err := checkProb(pA); err != nil {
		return 0, err
	}
	if err := checkProb(pB); err != nil {
		return 0, err
	}
	return setFrom(pA, pB, 0, 0, firstServer, tiebreakSet, rule), nil
}

// SteadyStateSet is the long-run set-win probability for player A, used for
// sets not yet in progress. The opening server of a future set depends on the
// parity of games in sets still unplayed, so the two possibilities are
// averaged.
func SteadyStateSet(pA, pB float64, tiebreakSet bool, rule score.Rule) (float64, error) {
	a, err := FreshSet(pA, pB, score.PlayerA, tiebreakSet, rule)
	if err != nil {
		return 0, err
	}
	b, err := FreshSet(pA, pB, score.PlayerB, tiebreakSet, rule)
	if err != nil {
		return 0, err
	}
	return (a + b) / 2, nil
}

func serveProb(pA, pB float64, server score.Player) float64 {
	if server == score.PlayerA {
		return pA
	}
	return pB
}

// tiedGamesWin resolves an advantage set level at 6-6 or beyond. Each further
// pair of games is one on each player's serve: A takes the set on a
// hold+break pair, loses it on the mirror image, and a split of the pair
// returns to a tied score. Same absorption shape as the deuce and tiebreak
// closed forms, one level up.
func tiedGamesWin(pA, pB float64, rule score.Rule) float64 {
	hA := gameFrom(pA, 0, 0, rule)
	hB := gameFrom(pB, 0, 0, rule)
	w := hA * (1 - hB)
	l := (1 - hA) * hB
	return w / (w + l)
}

func setFrom(pA, pB float64, gA, gB int, server score.Player, tiebreakSet bool, rule score.Rule) float64 {
	switch {
	case gA >= 6 && gA-gB >= 2:
		return 1
	case gB >= 6 && gB-gA >= 2:
		return 0
	case gA >= 6 && gA == gB:
		if tiebreakSet {
			// Only 6-6 is reachable here; the tiebreak's first point
			// belongs to whoever would have served the next game.
			return tiebreakFrom(pA, pB, 0, 0, server)
		}
		return tiedGamesWin(pA, pB, rule)
	}

	key := setKey{quantize(pA), quantize(pB), int16(gA), int16(gB), server, tiebreakSet, rule}
	if v, ok := setCache.Load(key); ok {
		return v.(float64)
	}

	hold := gameFrom(serveProb(pA, pB, server), 0, 0, rule)
	pWinGameA := hold
	if server == score.PlayerB {
		pWinGameA = 1 - hold
	}
	next := server.Other()
	v := pWinGameA*setFrom(pA, pB, gA+1, gB, next, tiebreakSet, rule) +
		(1-pWinGameA)*setFrom(pA, pB, gA, gB+1, next, tiebreakSet, rule)
	actual, _ := setCache.LoadOrStore(key, v)
	return actual.(float64)
}
