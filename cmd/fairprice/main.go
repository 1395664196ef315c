// fairprice prices a single tennis score line offline: given both players'
// serve-point probabilities and the current score, it prints the match-win
// probability and the fair contract price.
//
// Example:
//
//	fairprice -pa 0.65 -pb 0.60 -sets 0-0 -games 5-5 -points 0-0 -server a
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/courtline/tennis-edge/pkg/tennis/prob"
	"github.com/courtline/tennis-edge/pkg/tennis/score"
	"github.com/courtline/tennis-edge/pkg/trader/pricing"
)

var (
	pa       = flag.Float64("pa", 0.62, "Player A serve-point win probability")
	pb       = flag.Float64("pb", 0.62, "Player B serve-point win probability")
	sets     = flag.String("sets", "0-0", "Sets score, A-B")
	games    = flag.String("games", "0-0", "Games score in the current set, A-B")
	points   = flag.String("points", "0-0", "Points in the current game (raw counts), A-B")
	server   = flag.String("server", "a", "Current server: a or b")
	bestOf   = flag.Int("best-of", 3, "Match format: 3 or 5")
	noAd     = flag.Bool("no-ad", false, "No-ad scoring")
	tiebreak = flag.Bool("tiebreak", false, "Current game is a tiebreak")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	st, err := buildState()
	if err != nil {
		log.Fatalf("fairprice: %v", err)
	}

	winProb, err := prob.Match(*pa, *pb, st)
	if err != nil {
		log.Fatalf("fairprice: %v", err)
	}
	fair, err := pricing.ToCents(winProb)
	if err != nil {
		log.Fatalf("fairprice: %v", err)
	}

	fmt.Printf("state:       %s\n", st)
	fmt.Printf("P(A wins):   %.4f\n", winProb)
	fmt.Printf("fair price:  %d¢ YES-A / %d¢ YES-B\n", fair, mustCents(1-winProb))
}

func buildState() (score.State, error) {
	format := score.Format{BestOf: *bestOf, FinalSetTiebreak: true}
	rule := score.RuleAdvantage
	if *noAd {
		rule = score.RuleNoAd
	}

	srv, err := parsePlayer(*server)
	if err != nil {
		return score.State{}, err
	}
	st, err := score.NewMatch(format, rule, srv)
	if err != nil {
		return score.State{}, err
	}
	if st.Sets, err = parsePair(*sets); err != nil {
		return score.State{}, fmt.Errorf("sets: %w", err)
	}
	if st.Games, err = parsePair(*games); err != nil {
		return score.State{}, fmt.Errorf("games: %w", err)
	}
	if st.Points, err = parsePair(*points); err != nil {
		return score.State{}, fmt.Errorf("points: %w", err)
	}
	if *tiebreak {
		st.InTiebreak = true
		st.TiebreakFirstServer = srv
	}
	return st, nil
}

func parsePair(s string) ([2]int, error) {
	var a, b int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d-%d", &a, &b); err != nil {
		return [2]int{}, fmt.Errorf("want N-M, got %q", s)
	}
	if a < 0 || b < 0 {
		return [2]int{}, fmt.Errorf("negative score %q", s)
	}
	return [2]int{a, b}, nil
}

func parsePlayer(s string) (score.Player, error) {
	switch strings.ToLower(s) {
	case "a":
		return score.PlayerA, nil
	case "b":
		return score.PlayerB, nil
	}
	return score.PlayerA, fmt.Errorf("unknown server %q", s)
}

func mustCents(p float64) int64 {
	c, err := pricing.ToCents(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fairprice: %v\n", err)
		os.Exit(1)
	}
	return c
}
