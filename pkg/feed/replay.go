package feed

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

// ReplayFeed walks a match point by point from an initial state and a list
// of point winners. Used for backtesting and for exercising the full loop
// without a live provider.
type ReplayFeed struct {
	mu      sync.Mutex
	state   score.State
	winners []score.Player
	idx     int
	delay   time.Duration
	started bool
	closed  bool
}

// NewReplay builds a replay over the given point sequence. A non-zero delay
// paces the replay in real time.
func NewReplay(initial score.State, winners []score.Player, delay time.Duration) (*ReplayFeed, error) {
	if err := initial.Format.Validate(); err != nil {
		return nil, err
	}
	return &ReplayFeed{state: initial, winners: winners, delay: delay}, nil
}

// Next returns the initial state first, then one state per point. io.EOF
// after the last point or once the match is decided.
func (f *ReplayFeed) Next(ctx context.Context) (score.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return score.State{}, ErrClosed
	}
	if !f.started {
		f.started = true
		return f.state, nil
	}
	if f.idx >= len(f.winners) || f.state.Terminal() {
		return score.State{}, io.EOF
	}

	if f.delay > 0 {
		t := time.NewTimer(f.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return score.State{}, ctx.Err()
		case <-t.C:
		}
	}

	next, err := f.state.ApplyPoint(f.winners[f.idx])
	if err != nil {
		return score.State{}, fmt.Errorf("feed: replay point %d: %w", f.idx, err)
	}
	f.idx++
	f.state = next
	return next, nil
}

// Close stops the replay.
func (f *ReplayFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
