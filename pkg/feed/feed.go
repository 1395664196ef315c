// Package feed delivers live score updates to the trading loop. A Feed is a
// pull interface: the runner asks for the next state and blocks until one
// arrives, the context ends, or the feed is exhausted.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("feed: closed")

// Feed yields successive score states for one match. Next returns io.EOF
// when the source is exhausted.
type Feed interface {
	Next(ctx context.Context) (score.State, error)
	Close() error
}

// ScoreUpdate is the wire format score providers push.
type ScoreUpdate struct {
	MatchID    string `json:"match_id"`
	Server     string `json:"server"` // "a" or "b"
	PointsA    int    `json:"points_a"`
	PointsB    int    `json:"points_b"`
	GamesA     int    `json:"games_a"`
	GamesB     int    `json:"games_b"`
	SetsA      int    `json:"sets_a"`
	SetsB      int    `json:"sets_b"`
	InTiebreak bool   `json:"in_tiebreak"`
	TbFirst    string `json:"tiebreak_first_server,omitempty"`
	Timestamp  int64  `json:"ts"`
}

// ParseUpdate decodes a wire update into a score state using the match's
// format and rule.
func ParseUpdate(raw []byte, format score.Format, rule score.Rule) (score.State, error) {
	var u ScoreUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return score.State{}, fmt.Errorf("feed: decode update: %w", err)
	}
	return u.ToState(format, rule)
}

// ToState converts the wire update to a score state.
func (u ScoreUpdate) ToState(format score.Format, rule score.Rule) (score.State, error) {
	server, err := parsePlayer(u.Server)
	if err != nil {
		return score.State{}, err
	}
	st := score.State{
		Server:     server,
		Points:     [2]int{u.PointsA, u.PointsB},
		Games:      [2]int{u.GamesA, u.GamesB},
		Sets:       [2]int{u.SetsA, u.SetsB},
		InTiebreak: u.InTiebreak,
		Format:     format,
		Rule:       rule,
	}
	if u.InTiebreak {
		first := server
		if u.TbFirst != "" {
			if first, err = parsePlayer(u.TbFirst); err != nil {
				return score.State{}, err
			}
		}
		st.TiebreakFirstServer = first
	}
	if u.PointsA < 0 || u.PointsB < 0 || u.GamesA < 0 || u.GamesB < 0 || u.SetsA < 0 || u.SetsB < 0 {
		return score.State{}, fmt.Errorf("feed: negative score in update for %s", u.MatchID)
	}
	return st, nil
}

// At returns the update's timestamp.
func (u ScoreUpdate) At() time.Time {
	return time.UnixMilli(u.Timestamp)
}

func parsePlayer(s string) (score.Player, error) {
	switch s {
	case "a", "A":
		return score.PlayerA, nil
	case "b", "B":
		return score.PlayerB, nil
	}
	return score.PlayerA, fmt.Errorf("feed: unknown player %q", s)
}
