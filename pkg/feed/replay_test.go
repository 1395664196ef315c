package feed

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

func TestReplayWalksPoints(t *testing.T) {
	initial, err := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	f, err := NewReplay(initial, []score.Player{score.PlayerA, score.PlayerA, score.PlayerB}, 0)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	ctx := context.Background()

	first, err := f.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Points != initial.Points || first.Games != initial.Games {
		t.Errorf("first state = %s, want the initial state", first)
	}

	second, err := f.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Points != [2]int{1, 0} {
		t.Errorf("after one point: %v", second.Points)
	}

	f.Next(ctx)
	last, err := f.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if last.Points != [2]int{2, 1} {
		t.Errorf("after three points: %v", last.Points)
	}

	if _, err := f.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("exhausted replay: err = %v, want io.EOF", err)
	}
}

func TestReplayStopsAtMatchEnd(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	initial.Sets = [2]int{1, 0}
	initial.Games = [2]int{5, 0}
	initial.Points = [2]int{3, 0}

	// One point ends the match; the extra winners must not be applied.
	winners := []score.Player{score.PlayerA, score.PlayerA, score.PlayerA}
	f, err := NewReplay(initial, winners, 0)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	ctx := context.Background()

	f.Next(ctx)
	final, err := f.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !final.Terminal() {
		t.Fatalf("state not terminal: %s", final)
	}
	if _, err := f.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("after match end: err = %v, want io.EOF", err)
	}
}

func TestReplayClose(t *testing.T) {
	initial, _ := score.NewMatch(score.BestOfThree, score.RuleAdvantage, score.PlayerA)
	f, _ := NewReplay(initial, nil, 0)
	f.Close()
	if _, err := f.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("closed feed: err = %v, want ErrClosed", err)
	}
}

func TestParseUpdate(t *testing.T) {
	raw := []byte(`{"match_id":"m1","server":"b","points_a":2,"points_b":3,"games_a":4,"games_b":5,"sets_a":1,"sets_b":0,"ts":1720000000000}`)
	st, err := ParseUpdate(raw, score.BestOfThree, score.RuleAdvantage)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if st.Server != score.PlayerB || st.Points != [2]int{2, 3} || st.Games != [2]int{4, 5} || st.Sets != [2]int{1, 0} {
		t.Errorf("state = %s", st)
	}
}

func TestParseUpdateRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"server":"x"}`),
		[]byte(`{"server":"a","points_a":-1}`),
	}
	for _, raw := range cases {
		if _, err := ParseUpdate(raw, score.BestOfThree, score.RuleAdvantage); err == nil {
			t.Errorf("ParseUpdate(%s) accepted garbage", raw)
		}
	}
}

func TestParseUpdateTiebreakFirstServer(t *testing.T) {
	raw := []byte(`{"server":"a","games_a":6,"games_b":6,"in_tiebreak":true,"tiebreak_first_server":"b","points_a":1,"points_b":0}`)
	st, err := ParseUpdate(raw, score.BestOfThree, score.RuleAdvantage)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if !st.InTiebreak || st.TiebreakFirstServer != score.PlayerB {
		t.Errorf("tiebreak state = %+v", st)
	}
}
