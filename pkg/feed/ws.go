package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courtline/tennis-edge/pkg/tennis/score"
)

// WSConfig holds websocket feed configuration.
type WSConfig struct {
	// URL is the score provider's WebSocket endpoint.
	URL string

	// MatchID filters updates to one match.
	MatchID string

	// Format and Rule describe the match being followed.
	Format score.Format
	Rule   score.Rule

	// Reconnect settings
	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int // 0 = unlimited

	// Read timeout per message; also bounds dead-connection detection.
	ReadTimeout time.Duration

	// OnReconnect is called after every successful reconnection.
	OnReconnect func(attempt int)
}

// DefaultWSConfig returns a config with sensible defaults.
func DefaultWSConfig(url, matchID string, format score.Format, rule score.Rule) WSConfig {
	return WSConfig{
		URL:               url,
		MatchID:           matchID,
		Format:            format,
		Rule:              rule,
		ReconnectMinDelay: 1 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
	}
}

// WSFeed streams score states from a WebSocket provider with automatic
// reconnection and exponential backoff.
type WSFeed struct {
	cfg WSConfig

	states chan score.State
	errs   chan error

	closeCh   chan struct{}
	closeOnce sync.Once

	connMu sync.Mutex
	conn   *websocket.Conn
}

// DialWS connects to the provider and starts the read loop.
func DialWS(ctx context.Context, cfg WSConfig) (*WSFeed, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: empty websocket URL")
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	f := &WSFeed{
		cfg:     cfg,
		states:  make(chan score.State, 64),
		errs:    make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	if err := f.dial(ctx); err != nil {
		return nil, err
	}
	go f.run()
	return f, nil
}

// Next blocks until a state arrives, the context ends, or the feed dies.
func (f *WSFeed) Next(ctx context.Context) (score.State, error) {
	select {
	case st := <-f.states:
		return st, nil
	case err := <-f.errs:
		return score.State{}, err
	case <-f.closeCh:
		return score.State{}, ErrClosed
	case <-ctx.Done():
		return score.State{}, ctx.Err()
	}
}

// Close tears down the connection.
func (f *WSFeed) Close() error {
	f.closeOnce.Do(func() {
		close(f.closeCh)
		f.connMu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.connMu.Unlock()
	})
	return nil
}

func (f *WSFeed) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.cfg.URL, err)
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return nil
}

// run reads until the connection drops, then reconnects with backoff. It
// exits on Close or when reconnection gives up.
func (f *WSFeed) run() {
	attempts := 0
	for {
		err := f.readLoop()
		select {
		case <-f.closeCh:
			return
		default:
		}
		if errors.Is(err, io.EOF) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			f.fail(io.EOF)
			return
		}

		for {
			attempts++
			if f.cfg.ReconnectMaxAttempts > 0 && attempts > f.cfg.ReconnectMaxAttempts {
				f.fail(fmt.Errorf("feed: gave up after %d reconnect attempts: %w", attempts-1, err))
				return
			}
			delay := f.cfg.ReconnectMinDelay * time.Duration(1<<uint(attempts-1))
			if delay > f.cfg.ReconnectMaxDelay || delay <= 0 {
				delay = f.cfg.ReconnectMaxDelay
			}
			select {
			case <-f.closeCh:
				return
			case <-time.After(delay):
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			dialErr := f.dial(ctx)
			cancel()
			if dialErr == nil {
				if f.cfg.OnReconnect != nil {
					f.cfg.OnReconnect(attempts)
				}
				attempts = 0
				break
			}
			err = dialErr
		}
	}
}

func (f *WSFeed) readLoop() error {
	for {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			return errors.New("feed: no connection")
		}

		if f.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var u ScoreUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			// Malformed updates are skipped, not fatal.
			continue
		}
		if f.cfg.MatchID != "" && u.MatchID != "" && u.MatchID != f.cfg.MatchID {
			continue
		}
		st, err := u.ToState(f.cfg.Format, f.cfg.Rule)
		if err != nil {
			continue
		}

		select {
		case f.states <- st:
		case <-f.closeCh:
			return ErrClosed
		}
	}
}

func (f *WSFeed) fail(err error) {
	select {
	case f.errs <- err:
	default:
	}
}
