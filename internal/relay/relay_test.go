package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// fakeTerm is an in-memory Terminal for relay tests.
type fakeTerm struct {
	out     chan []byte
	in      chan []byte
	resizes chan [2]uint16

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTerm() *fakeTerm {
	return &fakeTerm{
		out:     make(chan []byte, 100),
		in:      make(chan []byte, 100),
		resizes: make(chan [2]uint16, 10),
		closed:  make(chan struct{}),
	}
}

func (ft *fakeTerm) Read(p []byte) (int, error) {
	select {
	case b := <-ft.out:
		return copy(p, b), nil
	case <-ft.closed:
		return 0, io.EOF
	}
}

func (ft *fakeTerm) Write(p []byte) (int, error) {
	select {
	case <-ft.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	b := make([]byte, len(p))
	copy(b, p)
	ft.in <- b
	return len(p), nil
}

func (ft *fakeTerm) Resize(cols, rows uint16) error {
	ft.resizes <- [2]uint16{cols, rows}
	return nil
}

func (ft *fakeTerm) Close() error {
	ft.closeOnce.Do(func() { close(ft.closed) })
	return nil
}

func (ft *fakeTerm) isClosed() bool {
	select {
	case <-ft.closed:
		return true
	default:
		return false
	}
}

// setupRelayServer wires a Manager behind an httptest server. Each WebSocket
// accept attaches a fresh fakeTerm for the sessionId query parameter; created
// terminals are recorded in order.
func setupRelayServer(t *testing.T) (*httptest.Server, *Manager, func() []*fakeTerm) {
	t.Helper()

	mgr := NewManager()
	var mu sync.Mutex
	var terms []*fakeTerm

	mux := chi.NewRouter()
	mux.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		term := newFakeTerm()
		mu.Lock()
		terms = append(terms, term)
		mu.Unlock()

		mgr.Attach(r.Context(), r.URL.Query().Get("sessionId"), conn, term)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	snapshot := func() []*fakeTerm {
		mu.Lock()
		defer mu.Unlock()
		out := make([]*fakeTerm, len(terms))
		copy(out, terms)
		return out
	}
	return ts, mgr, snapshot
}

func dialRelay(t *testing.T, ctx context.Context, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := fmt.Sprintf("ws%s/ws?sessionId=%s", strings.TrimPrefix(ts.URL, "http"), sessionID)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	return conn
}

func waitForTerms(t *testing.T, snapshot func() []*fakeTerm, n int) []*fakeTerm {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if terms := snapshot(); len(terms) >= n {
			return terms
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d terminals", n)
	return nil
}

func TestRelayForwardsTerminalOutput(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	defer conn.CloseNow()

	term := waitForTerms(t, snapshot, 1)[0]
	term.out <- []byte("shell output\r\n")

	msgType, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if msgType != websocket.MessageBinary {
		t.Errorf("expected binary message, got %v", msgType)
	}
	if string(data) != "shell output\r\n" {
		t.Errorf("unexpected payload: %q", data)
	}
}

func TestRelayForwardsBrowserInput(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	defer conn.CloseNow()

	term := waitForTerms(t, snapshot, 1)[0]

	if err := conn.Write(ctx, websocket.MessageBinary, []byte("ls -la\n")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	select {
	case got := <-term.in:
		if string(got) != "ls -la\n" {
			t.Errorf("unexpected stdin bytes: %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for stdin bytes")
	}
}

func TestRelayResizeMessages(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	defer conn.CloseNow()

	term := waitForTerms(t, snapshot, 1)[0]

	cases := []struct {
		sendCols, sendRows uint16
		wantCols, wantRows uint16
	}{
		{120, 40, 120, 40},
		// Zero dimensions are ignored; oversized ones are clamped.
		{0, 40, 0, 0},
		{9999, 9999, maxResizeCols, maxResizeRows},
	}

	for _, tc := range cases {
		msg, _ := json.Marshal(resizeMsg{Type: "resize", Cols: tc.sendCols, Rows: tc.sendRows})
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			t.Fatalf("failed to write resize: %v", err)
		}
		if tc.wantCols == 0 {
			continue
		}
		select {
		case got := <-term.resizes:
			if got[0] != tc.wantCols || got[1] != tc.wantRows {
				t.Errorf("resize %dx%d: got %dx%d, want %dx%d",
					tc.sendCols, tc.sendRows, got[0], got[1], tc.wantCols, tc.wantRows)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for resize %dx%d", tc.sendCols, tc.sendRows)
		}
	}

	// The zero-sized request must not have produced an extra event.
	select {
	case got := <-term.resizes:
		t.Errorf("unexpected resize event: %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayIgnoresMalformedTextFrames(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	defer conn.CloseNow()

	term := waitForTerms(t, snapshot, 1)[0]

	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	// Relay must survive and keep forwarding.
	if err := conn.Write(ctx, websocket.MessageBinary, []byte("still alive")); err != nil {
		t.Fatalf("failed to write after bad frame: %v", err)
	}
	select {
	case got := <-term.in:
		if string(got) != "still alive" {
			t.Errorf("unexpected stdin bytes: %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for stdin bytes")
	}
}

func TestRelayDropsOversizedInput(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	defer conn.CloseNow()

	term := waitForTerms(t, snapshot, 1)[0]

	huge := bytes.Repeat([]byte("x"), maxInputMessage+1)
	if err := conn.Write(ctx, websocket.MessageBinary, huge); err != nil {
		t.Fatalf("failed to write oversized frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, []byte("small")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	select {
	case got := <-term.in:
		if string(got) != "small" {
			t.Errorf("oversized frame was forwarded (got %d bytes)", len(got))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for stdin bytes")
	}
}

func TestRelayClientDisconnectClosesTerminal(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	term := waitForTerms(t, snapshot, 1)[0]

	conn.CloseNow()

	deadline := time.Now().Add(3 * time.Second)
	for !term.isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("terminal not closed after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRelayTerminalEOFClosesWebSocket(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	defer conn.CloseNow()

	term := waitForTerms(t, snapshot, 1)[0]

	// Shell exits.
	term.Close()

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("expected websocket to close after terminal EOF")
	}
}

func TestRelaySecondAttachReplacesFirst(t *testing.T) {
	ts, _, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn1 := dialRelay(t, ctx, ts, "shared")
	defer conn1.CloseNow()
	term1 := waitForTerms(t, snapshot, 1)[0]

	conn2 := dialRelay(t, ctx, ts, "shared")
	defer conn2.CloseNow()
	terms := waitForTerms(t, snapshot, 2)
	term2 := terms[1]

	// First relay is torn down.
	deadline := time.Now().Add(3 * time.Second)
	for !term1.isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("first terminal not closed after replacement")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, _, err := conn1.Read(ctx); err == nil {
		t.Error("expected first websocket to be closed")
	}

	// Second relay works.
	term2.out <- []byte("second wins")
	_, data, err := conn2.Read(ctx)
	if err != nil {
		t.Fatalf("second relay read failed: %v", err)
	}
	if string(data) != "second wins" {
		t.Errorf("unexpected payload: %q", data)
	}
}

func TestManagerStop(t *testing.T) {
	ts, mgr, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "s1")
	defer conn.CloseNow()
	term := waitForTerms(t, snapshot, 1)[0]

	mgr.Stop("s1")

	if !term.isClosed() {
		t.Error("terminal not closed by Manager.Stop")
	}
	// Stopping an unknown session is a no-op.
	mgr.Stop("nope")
}

func TestManagerStopAll(t *testing.T) {
	ts, mgr, snapshot := setupRelayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn1 := dialRelay(t, ctx, ts, "a")
	defer conn1.CloseNow()
	conn2 := dialRelay(t, ctx, ts, "b")
	defer conn2.CloseNow()
	terms := waitForTerms(t, snapshot, 2)

	mgr.StopAll()

	for i, term := range terms {
		if !term.isClosed() {
			t.Errorf("terminal %d not closed by StopAll", i)
		}
	}
}

func TestRelayStopIsIdempotent(t *testing.T) {
	term := newFakeTerm()
	r := newRelay(context.Background(), "s1", nil, term)
	// run never started; done is closed manually for this unit check.
	close(r.done)

	r.Stop()
	r.Stop()
	if !term.isClosed() {
		t.Error("terminal not closed")
	}
}

func TestTokenBucketThrottles(t *testing.T) {
	tb := newTokenBucket(5, 1)
	allowed := 0
	for i := 0; i < 20; i++ {
		if tb.allow() {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("expected 5 allowed messages, got %d", allowed)
	}

	tb.lastRefill = time.Now().Add(-2 * time.Second)
	if !tb.allow() {
		t.Error("expected refilled token after elapsed time")
	}
}
