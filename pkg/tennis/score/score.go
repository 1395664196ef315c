// Package score models the position of a tennis match as an immutable value
// and provides the legal point-by-point transition engine over it.
package score

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a score state does not follow legally
// from its predecessor (out-of-order feed message, corrupt update, or a point
// applied to a finished match).
var ErrInvalidTransition = errors.New("score: invalid state transition")

// ErrInvalidFormat is returned when a match format fails validation.
var ErrInvalidFormat = errors.New("score: invalid match format")

// Player identifies one of the two players in a match.
type Player int

const (
	PlayerA Player = iota
	PlayerB
)

// Other returns the opponent.
func (p Player) Other() Player {
	if p == PlayerA {
		return PlayerB
	}
	return PlayerA
}

func (p Player) String() string {
	if p == PlayerA {
		return "A"
	}
	return "B"
}

// Rule selects how games are scored at deuce.
type Rule int

const (
	// RuleAdvantage is traditional scoring: from deuce a player must win two
	// consecutive points.
	RuleAdvantage Rule = iota

	// RuleNoAd plays a single sudden-death point at deuce.
	RuleNoAd
)

func (r Rule) String() string {
	if r == RuleNoAd {
		return "no-ad"
	}
	return "advantage"
}

// Format describes a match format. It is fixed for the whole match.
type Format struct {
	// BestOf is 3 or 5.
	BestOf int

	// FinalSetTiebreak selects a tiebreak at 6-6 in the deciding set. When
	// false, the deciding set continues until one player leads by two games.
	FinalSetTiebreak bool
}

// BestOfThree is the common tour format: best of 3, tiebreak in every set.
var BestOfThree = Format{BestOf: 3, FinalSetTiebreak: true}

// BestOfFive is the grand-slam format with a deciding-set tiebreak.
var BestOfFive = Format{BestOf: 5, FinalSetTiebreak: true}

// SetsToWin returns the number of sets needed to win the match.
func (f Format) SetsToWin() int { return f.BestOf/2 + 1 }

// Validate rejects formats other than best-of-3 and best-of-5.
func (f Format) Validate() error {
	if f.BestOf != 3 && f.BestOf != 5 {
		return fmt.Errorf("%w: best of %d", ErrInvalidFormat, f.BestOf)
	}
	return nil
}

// State is the full position of a match at a point boundary. It is a value
// type: ApplyPoint returns the successor and never mutates the receiver.
//
// Points holds current-game points, or tiebreak points when InTiebreak is
// set. Indexing is by Player (0 = A, 1 = B) throughout.
type State struct {
	Server Player
	Points [2]int
	Games  [2]int
	Sets   [2]int

	InTiebreak bool
	// TiebreakFirstServer is the player who served the first point of the
	// tiebreak. Only meaningful while InTiebreak is set; it determines the
	// serve rotation and who opens the following set.
	TiebreakFirstServer Player

	Format Format
	Rule   Rule
}

// NewMatch returns the starting state of a match.
func NewMatch(format Format, rule Rule, firstServer Player) (State, error) {
	if err := format.Validate(); err != nil {
		return State{}, err
	}
	return State{Server: firstServer, Format: format, Rule: rule}, nil
}

// Winner reports the match winner, if the match is over.
func (s State) Winner() (Player, bool) {
	need := s.Format.SetsToWin()
	switch {
	case s.Sets[PlayerA] >= need:
		return PlayerA, true
	case s.Sets[PlayerB] >= need:
		return PlayerB, true
	}
	return 0, false
}

// Terminal reports whether the match is over. Terminal states accept no
// further points.
func (s State) Terminal() bool {
	_, done := s.Winner()
	return done
}

// FinalSet reports whether the set in progress is the deciding set.
func (s State) FinalSet() bool {
	return s.Sets[PlayerA]+s.Sets[PlayerB] == s.Format.BestOf-1
}

// ApplyPoint returns the state after the given player wins the next point,
// rolling up game, tiebreak, set and match completions. Applying a point to a
// terminal state is an error.
func (s State) ApplyPoint(winner Player) (State, error) {
	if s.Terminal() {
		return State{}, fmt.Errorf("%w: match already decided", ErrInvalidTransition)
	}

	next := s
	next.Points[winner]++

	if s.InTiebreak {
		if tiebreakWon(next.Points[winner], next.Points[winner.Other()]) {
			next.Games[winner]++ // 7-6
			return next.finishSet(winner), nil
		}
		// Serve rotates after the first point and then every two points.
		next.Server = TiebreakServerAt(next.TiebreakFirstServer, next.Points[PlayerA]+next.Points[PlayerB])
		return next, nil
	}

	if !gameWon(next.Points[winner], next.Points[winner.Other()], s.Rule) {
		return next, nil
	}

	// Game complete.
	next.Points = [2]int{}
	next.Games[winner]++
	next.Server = s.Server.Other()

	ga, gb := next.Games[PlayerA], next.Games[PlayerB]
	switch {
	case (ga >= 6 && ga-gb >= 2) || (gb >= 6 && gb-ga >= 2):
		return next.finishSet(winner), nil
	case ga == 6 && gb == 6 && next.tiebreakSet():
		next.InTiebreak = true
		next.TiebreakFirstServer = next.Server
	}
	return next, nil
}

// finishSet rolls the set win into the match score and resets the set.
func (s State) finishSet(winner Player) State {
	next := s
	next.Sets[winner]++
	next.Games = [2]int{}
	next.Points = [2]int{}
	if s.InTiebreak {
		// The player who received first in the tiebreak serves first in the
		// next set.
		next.Server = s.TiebreakFirstServer.Other()
	}
	next.InTiebreak = false
	return next
}

// tiebreakSet reports whether the set in progress is played with a tiebreak
// at 6-6.
func (s State) tiebreakSet() bool {
	if s.FinalSet() {
		return s.Format.FinalSetTiebreak
	}
	return true
}

// gameWon reports whether a standard game is over from the winner's side.
func gameWon(pts, opp int, rule Rule) bool {
	if rule == RuleNoAd {
		return pts >= 4
	}
	return pts >= 4 && pts-opp >= 2
}

// tiebreakWon reports whether a tiebreak is over from the winner's side.
func tiebreakWon(pts, opp int) bool {
	return pts >= 7 && pts-opp >= 2
}

// TiebreakServerAt returns who serves the point after played points in a
// tiebreak: the first server takes point 1, then serve alternates every two
// points.
func TiebreakServerAt(first Player, played int) Player {
	if ((played+1)/2)%2 == 0 {
		return first
	}
	return first.Other()
}

// ValidateTransition checks that next follows legally from prev: it must be
// identical (a quote-refresh tick on an unchanged score) or the result of
// exactly one point won by either player.
func ValidateTransition(prev, next State) error {
	if prev == next {
		return nil
	}
	for _, w := range []Player{PlayerA, PlayerB} {
		if cand, err := prev.ApplyPoint(w); err == nil && cand == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
}

// Fingerprint returns a compact stable key for the state, used for signal
// idempotency and cache keys.
func (s State) Fingerprint() string {
	tb := 0
	if s.InTiebreak {
		tb = 1
	}
	return fmt.Sprintf("%d:%d-%d:%d-%d:%d-%d:%d%s:%d", s.Server,
		s.Sets[0], s.Sets[1], s.Games[0], s.Games[1], s.Points[0], s.Points[1],
		tb, s.TiebreakFirstServer, s.Rule)
}

func (s State) String() string {
	phase := "game"
	if s.InTiebreak {
		phase = "tb"
	}
	return fmt.Sprintf("sets %d-%d games %d-%d %s %d-%d srv %s",
		s.Sets[0], s.Sets[1], s.Games[0], s.Games[1], phase,
		s.Points[0], s.Points[1], s.Server)
}
