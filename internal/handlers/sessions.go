package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"planterm/internal/logging"
	"planterm/internal/sshconn"
)

type connectRequest struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	AuthMethod string `json:"authMethod"`
	Password   string `json:"password"`
	PrivateKey string `json:"privateKey"`
}

// Connect validates the supplied credentials, opens an authenticated SSH
// connection and registers it. Connection-level failures (bad credentials,
// unreachable host) are logical outcomes: they come back 200 with
// success:false so the client can show the reason.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cfg := sshconn.ConnConfig{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
	}
	if req.AuthMethod == "privateKey" {
		cfg.PrivateKey = []byte(req.PrivateKey)
	} else {
		cfg.Password = req.Password
	}

	id, err := h.Registry.Create(r.Context(), cfg)
	if err != nil {
		var verr *sshconn.ValidationError
		switch {
		case errors.As(err, &verr),
			errors.Is(err, sshconn.ErrAuthFailed),
			errors.Is(err, sshconn.ErrUnreachable),
			errors.Is(err, sshconn.ErrTimeout),
			errors.Is(err, sshconn.ErrProtocol):
			log.Printf("Connect to %s@%s:%d failed: %v",
				logging.Sanitize(req.Username), logging.Sanitize(req.Host), req.Port, err)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		default:
			log.Printf("Connect failed unexpectedly: %v", err)
			writeError(w, http.StatusInternalServerError, "Connection failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": id,
	})
}

type shellRequest struct {
	SessionID string `json:"sessionId"`
	Cols      uint16 `json:"cols"`
	Rows      uint16 `json:"rows"`
}

// Shell validates the session and records the client's terminal size; the
// shell itself is opened when the terminal WebSocket attaches.
func (h *Handlers) Shell(w http.ResponseWriter, r *http.Request) {
	var req shellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}
	if _, err := h.Registry.Get(req.SessionID); err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	if req.Cols > 0 && req.Rows > 0 {
		h.recordSize(req.SessionID, req.Cols, req.Rows)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type disconnectRequest struct {
	SessionID string `json:"sessionId"`
}

// Disconnect tears down the session's relay and closes its handle.
// Disconnecting an unknown session is a no-op.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	h.Relays.Stop(req.SessionID)
	h.Registry.Destroy(req.SessionID)
	h.Plans.Forget(req.SessionID)
	h.forgetSize(req.SessionID)

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Sessions lists live sessions. Credentials never appear in the output.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	type sessionSummary struct {
		ID        string `json:"id"`
		Host      string `json:"host"`
		Username  string `json:"username"`
		CreatedAt string `json:"createdAt"`
	}

	live := h.Registry.List()
	out := make([]sessionSummary, len(live))
	for i, s := range live {
		out[i] = sessionSummary{
			ID:        s.ID,
			Host:      s.Config.Host,
			Username:  s.Config.Username,
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": out,
	})
}

// Health is the liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
