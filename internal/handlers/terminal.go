package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"planterm/internal/shell"
)

// Close codes sent to the browser when a terminal WebSocket cannot start.
const (
	closeSessionNotFound = 4404
	closeShellFailed     = 4500
)

// TerminalWS upgrades to a WebSocket, opens (or re-attaches) the remote
// tmux-backed shell for the session and relays bytes until either side
// closes. Attaching to a session that already has a relay force-closes the
// old one first.
func (h *Handlers) TerminalWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("Failed to accept terminal websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	sess, err := h.Registry.Get(sessionID)
	if err != nil {
		frame, _ := json.Marshal(map[string]interface{}{
			"success": false,
			"error":   "Session not found",
		})
		conn.Write(ctx, websocket.MessageText, frame)
		conn.Close(closeSessionNotFound, "Session not found")
		return
	}

	cols, rows := h.initialSize(sessionID, r)

	term, err := shell.StartMux(sess.Client, h.Mux, cols, rows)
	if err != nil {
		log.Printf("Shell start failed for session %s: %v", sessionID, err)
		conn.Close(closeShellFailed, "Failed to start shell")
		return
	}

	h.Relays.Attach(ctx, sessionID, conn, term)
}

// initialSize picks the terminal dimensions for a new relay: explicit query
// parameters win, then the size recorded by POST /api/shell, then defaults.
func (h *Handlers) initialSize(sessionID string, r *http.Request) (cols, rows uint16) {
	q := r.URL.Query()
	qc, _ := strconv.ParseUint(q.Get("cols"), 10, 16)
	qr, _ := strconv.ParseUint(q.Get("rows"), 10, 16)
	if qc > 0 && qr > 0 {
		return uint16(qc), uint16(qr)
	}
	if c, rw, ok := h.recordedSize(sessionID); ok {
		return c, rw
	}
	return shell.DefaultCols, shell.DefaultRows
}
