// Package relay pumps bytes between a browser WebSocket and a remote
// terminal. Binary frames carry raw terminal bytes in both directions;
// text frames carry JSON control messages (currently only resize).
package relay

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// maxInputMessage caps a single stdin frame. Larger frames are dropped.
const maxInputMessage = 64 * 1024

// maxResizeCols and maxResizeRows bound resize requests.
const (
	maxResizeCols uint16 = 500
	maxResizeRows uint16 = 500
)

// inputRateLimit and inputRateBurst shape the token bucket that throttles
// browser input. Bursts cover paste operations.
const (
	inputRateLimit = 200
	inputRateBurst = 200
)

// Terminal is the remote end of a relay: a live PTY stream that can be
// resized and torn down.
type Terminal interface {
	io.ReadWriteCloser
	Resize(cols, rows uint16) error
}

type resizeMsg struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// Relay couples one WebSocket to one Terminal. Either side failing tears
// down both; teardown is idempotent.
type Relay struct {
	sessionID string
	conn      *websocket.Conn
	term      Terminal

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func newRelay(ctx context.Context, sessionID string, conn *websocket.Conn, term Terminal) *Relay {
	relayCtx, cancel := context.WithCancel(ctx)
	return &Relay{
		sessionID: sessionID,
		conn:      conn,
		term:      term,
		ctx:       relayCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stop tears the relay down: both forwarding loops unblock and the
// terminal is closed. Safe to call more than once, and from any goroutine.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.term.Close()
		log.Printf("Relay stopped: session=%s", r.sessionID)
	})
}

// Done is closed once both forwarding loops have exited.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) run() {
	defer close(r.done)
	defer r.Stop()

	r.conn.SetReadLimit(1024 * 1024)

	// Terminal stdout -> browser.
	outDone := make(chan struct{})
	go func() {
		defer close(outDone)
		defer r.cancel()
		buf := make([]byte, 32*1024)
		for {
			n, err := r.term.Read(buf)
			if n > 0 {
				if werr := r.conn.Write(r.ctx, websocket.MessageBinary, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	limiter := newTokenBucket(inputRateBurst, inputRateLimit)

	// Browser -> terminal stdin, resize on text frames.
	func() {
		defer r.cancel()
		for {
			msgType, data, err := r.conn.Read(r.ctx)
			if err != nil {
				return
			}
			if !limiter.allow() {
				continue
			}

			if msgType == websocket.MessageBinary {
				if len(data) > maxInputMessage {
					log.Printf("Relay input frame too large: session=%s size=%d", r.sessionID, len(data))
					continue
				}
				if _, err := r.term.Write(data); err != nil {
					return
				}
				continue
			}

			var msg resizeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "resize" && msg.Cols > 0 && msg.Rows > 0 {
				cols, rows := msg.Cols, msg.Rows
				if cols > maxResizeCols {
					cols = maxResizeCols
				}
				if rows > maxResizeRows {
					rows = maxResizeRows
				}
				if err := r.term.Resize(cols, rows); err != nil {
					log.Printf("Relay resize failed: session=%s %v", r.sessionID, err)
				}
			}
		}
	}()

	// Unblock the pending term.Read before waiting for the output loop.
	r.Stop()
	<-outDone

	r.conn.Close(websocket.StatusNormalClosure, "")
}

// tokenBucket throttles browser input frames.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}
