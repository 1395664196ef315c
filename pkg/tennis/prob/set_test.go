package prob

import (
	"math"
	"testing"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

func stateAt(games [2]int, server score.Player) score.State {
	st, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, server)
	st.Games = games
	return st
}

func TestSetMonotonicInServerPointProb(t *testing.T) {
	st := stateAt([2]int{3, 2}, score.PlayerA)
	prev := 0.0
	for pA := 0.3; pA < 0.95; pA += 0.05 {
		got, err := Set(pA, 0.6, st)
		if err != nil {
			t.Fatalf("Set(%v): %v", pA, err)
		}
		if got <= prev {
			t.Errorf("set prob not increasing at pA=%v: %v <= %v", pA, got, prev)
		}
		prev = got
	}
}

func TestSetSymmetricPlayers(t *testing.T) {
	st := stateAt([2]int{0, 0}, score.PlayerA)
	got, err := Set(0.5, 0.5, st)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got != 0.5 {
		t.Errorf("symmetric fresh set = %v, want 0.5", got)
	}
}

func TestSetNearlyDecided(t *testing.T) {
	// 5-0, A about to serve: a strong favorite but not certain.
	st := stateAt([2]int{5, 0}, score.PlayerA)
	got, err := Set(0.65, 0.6, st)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got < 0.95 || got >= 1 {
		t.Errorf("set prob at 5-0 = %v, want in [0.95,1)", got)
	}
}

func TestSetMidGameConsistency(t *testing.T) {
	// Pricing mid-game must equal the weighted average over the two game
	// outcomes priced fresh.
	pA, pB := 0.66, 0.58
	st := stateAt([2]int{4, 3}, score.PlayerA)
	st.Points = [2]int{2, 1} // 30-15, A serving

	mid, err := Set(pA, pB, st)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	hold, err := Game(pA, 2, 1, score.RuleAdvantage)
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	won := stateAt([2]int{5, 3}, score.PlayerB)
	lost := stateAt([2]int{4, 4}, score.PlayerB)
	pWon, _ := Set(pA, pB, won)
	pLost, _ := Set(pA, pB, lost)

	want := hold*pWon + (1-hold)*pLost
	if math.Abs(mid-want) > 1e-12 {
		t.Errorf("mid-game set prob = %v, want %v", mid, want)
	}
}

func TestSetDelegatesToTiebreakAtSixAll(t *testing.T) {
	pA, pB := 0.7, 0.55
	st := stateAt([2]int{6, 6}, score.PlayerB)
	st.InTiebreak = true
	st.TiebreakFirstServer = score.PlayerB
	st.Points = [2]int{3, 2}

	got, err := Set(pA, pB, st)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	want, err := Tiebreak(pA, pB, 3, 2, score.PlayerB)
	if err != nil {
		t.Fatalf("Tiebreak: %v", err)
	}
	if got != want {
		t.Errorf("set prob in tiebreak = %v, want tiebreak value %v", got, want)
	}
}

func TestAdvantageDecidingSetTiedClosedForm(t *testing.T) {
	// An advantage deciding set level at 6-6 resolves by pair absorption
	// over hold probabilities; verify against a bounded expansion.
	pA, pB := 0.67, 0.63
	rule := score.RuleAdvantage
	hA, _ := Game(pA, 0, 0, rule)
	hB, _ := Game(pB, 0, 0, rule)
	w := hA * (1 - hB)
	l := (1 - hA) * hB
	split := 1 - w - l

	expanded := 0.0
	weight := 1.0
	for i := 0; i < 400; i++ {
		expanded += weight * w
		weight *= split
	}

	got := tiedGamesWin(pA, pB, rule)
	if math.Abs(got-expanded) > 1e-9 {
		t.Errorf("tiedGamesWin = %.12f, expansion gives %.12f", got, expanded)
	}

	// And the set recursion must reach that value from 6-6 with no cap.
	fromState := setFrom(pA, pB, 6, 6, score.PlayerA, false, rule)
	if fromState != got {
		t.Errorf("setFrom(6,6) = %v, want closed form %v", fromState, got)
	}
}

func TestFreshSetServerEdgeSmall(t *testing.T) {
	// Serving first in a set is worth little; the average of both starts
	// should sit between them.
	pA, pB := 0.68, 0.6
	aFirst, _ := FreshSet(pA, pB, score.PlayerA, true, score.RuleAdvantage)
	bFirst, _ := FreshSet(pA, pB, score.PlayerB, true, score.RuleAdvantage)
	steady, _ := SteadyStateSet(pA, pB, true, score.RuleAdvantage)

	lo, hi := math.Min(aFirst, bFirst), math.Max(aFirst, bFirst)
	if steady < lo || steady > hi {
		t.Errorf("steady %v outside [%v,%v]", steady, lo, hi)
	}
	if hi-lo > 0.05 {
		t.Errorf("first-server effect %v implausibly large", hi-lo)
	}
}
