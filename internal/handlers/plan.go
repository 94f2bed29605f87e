package handlers

import (
	"errors"
	"log"
	"net/http"

	"planterm/internal/plan"
	"planterm/internal/remotefs"
	"planterm/internal/session"
)

// planSession resolves the session for a plan request, answering 400/404
// itself when the id is missing or unknown.
func (h *Handlers) planSession(w http.ResponseWriter, sessionID string) (*session.Session, bool) {
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return nil, false
	}
	sess, err := h.Registry.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return sess, true
}

// writePlanError maps plan store failures to statuses: logic errors (unknown
// section, bad index) are 404, remote I/O failures are 500.
func writePlanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, plan.ErrSectionNotFound), errors.Is(err, plan.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("Plan operation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Plan operation failed")
	}
}

// GetPlan returns the parsed plan document for a session.
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.planSession(w, r.URL.Query().Get("sessionId"))
	if !ok {
		return
	}

	doc, err := h.Plans.Read(remotefs.New(sess.Client))
	if err != nil {
		writePlanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"sections": doc.Sections(),
		},
	})
}

type checkItemRequest struct {
	SessionID    string `json:"sessionId"`
	SectionTitle string `json:"sectionTitle"`
	ItemIndex    *int   `json:"itemIndex"`
	Checked      bool   `json:"checked"`
}

// CheckItem flips an item's checkbox.
func (h *Handlers) CheckItem(w http.ResponseWriter, r *http.Request) {
	var req checkItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SectionTitle == "" || req.ItemIndex == nil {
		writeError(w, http.StatusBadRequest, "sectionTitle and itemIndex required")
		return
	}
	sess, ok := h.planSession(w, req.SessionID)
	if !ok {
		return
	}

	fio := remotefs.New(sess.Client)
	if err := h.Plans.SetChecked(sess.ID, fio, req.SectionTitle, *req.ItemIndex, req.Checked); err != nil {
		writePlanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type addItemRequest struct {
	SessionID    string `json:"sessionId"`
	SectionTitle string `json:"sectionTitle"`
	ItemText     string `json:"itemText"`
}

// AddItem appends an unchecked item to a section.
func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SectionTitle == "" || req.ItemText == "" {
		writeError(w, http.StatusBadRequest, "sectionTitle and itemText required")
		return
	}
	sess, ok := h.planSession(w, req.SessionID)
	if !ok {
		return
	}

	fio := remotefs.New(sess.Client)
	if err := h.Plans.AddItem(sess.ID, fio, req.SectionTitle, req.ItemText); err != nil {
		writePlanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type deleteItemRequest struct {
	SessionID    string `json:"sessionId"`
	SectionTitle string `json:"sectionTitle"`
	ItemIndex    *int   `json:"itemIndex"`
}

// DeleteItem removes an item from a section.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	var req deleteItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SectionTitle == "" || req.ItemIndex == nil {
		writeError(w, http.StatusBadRequest, "sectionTitle and itemIndex required")
		return
	}
	sess, ok := h.planSession(w, req.SessionID)
	if !ok {
		return
	}

	fio := remotefs.New(sess.Client)
	if err := h.Plans.DeleteItem(sess.ID, fio, req.SectionTitle, *req.ItemIndex); err != nil {
		writePlanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
