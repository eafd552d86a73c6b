package api

import (
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cognosis/domain/core"
	"cognosis/domain/session"
	"cognosis/domain/target"
)

// sessionResponse wraps a party-scoped view of a session
type sessionResponse struct {
	Session session.Snapshot `json:"session"`
}

func sessionID(r *http.Request) core.SessionID {
	return core.SessionID(chi.URLParam(r, "id"))
}

// handleCreateEventWindow opens a single-party commit window. The nonce is
// returned exactly once; the server never stores it.
func (s *Server) handleCreateEventWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party      string `json:"party"`
		Prediction string `json:"prediction"`
		ValueRef   string `json:"value_ref"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	party := core.PartyID(req.Party)
	sess, nonce, err := s.experiments.CreateEventWindow(r.Context(), party, []byte(req.Prediction), req.ValueRef)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Session session.Snapshot `json:"session"`
		Nonce   string           `json:"nonce"`
	}{
		Session: sess.SnapshotFor(party),
		Nonce:   hex.EncodeToString(nonce),
	})
}

func (s *Server) handleRevealEventWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party      string `json:"party"`
		Prediction string `json:"prediction"`
		Nonce      string `json:"nonce"`
		ValueRef   string `json:"value_ref"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	nonce, err := hex.DecodeString(req.Nonce)
	if err != nil {
		writeError(w, core.NewValidationError("nonce", "must be hex encoded"))
		return
	}

	party := core.PartyID(req.Party)
	sess, err := s.experiments.RevealEventWindow(r.Context(), sessionID(r), party, []byte(req.Prediction), nonce, req.ValueRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(party)})
}

// handleScoreEventWindow settles a revealed session against the observed
// outcome. The prediction is the value opened at reveal; the request only
// carries the outcome.
func (s *Server) handleScoreEventWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party   string `json:"party"`
		Outcome string `json:"outcome"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.experiments.ScoreEventWindow(r.Context(), sessionID(r), req.Outcome)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(core.PartyID(req.Party))})
}

// handleCreateSession starts a telepathy session. Omitting delay_minutes
// selects the configured default delay.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Creator      string `json:"creator"`
		DelayMinutes *int   `json:"delay_minutes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	delay := -1
	if req.DelayMinutes != nil {
		if *req.DelayMinutes < 0 {
			writeError(w, core.NewValidationError("delay_minutes", "cannot be negative"))
			return
		}
		delay = *req.DelayMinutes
	}
	creator := core.PartyID(req.Creator)
	sess, err := s.experiments.CreateTelepathySession(r.Context(), creator, delay)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: sess.SnapshotFor(creator)})
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party string `json:"party"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	party := core.PartyID(req.Party)
	sess, err := s.experiments.JoinSession(r.Context(), sessionID(r), party)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(party)})
}

func (s *Server) handleLockTarget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party       string             `json:"party"`
		Constraints target.Constraints `json:"constraints"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	party := core.PartyID(req.Party)
	sess, err := s.experiments.LockTarget(r.Context(), sessionID(r), party, req.Constraints)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(party)})
}

func (s *Server) handleSubmitTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party string   `json:"party"`
		Tags  []string `json:"tags"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	party := core.PartyID(req.Party)
	sess, err := s.experiments.SubmitTags(r.Context(), sessionID(r), party, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(party)})
}

// handlePoll advances the delay gate. A premature poll is reported as a
// conflict and leaves the session untouched.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party string `json:"party"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.experiments.Poll(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(core.PartyID(req.Party))})
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party  string   `json:"party"`
		Tags   []string `json:"tags"`
		Choice int      `json:"choice"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	party := core.PartyID(req.Party)
	sess, err := s.experiments.SubmitResponse(r.Context(), sessionID(r), party, req.Tags, req.Choice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(party)})
}

func (s *Server) handleScoreSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party string `json:"party"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.experiments.ScoreSession(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(core.PartyID(req.Party))})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party string `json:"party"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	party := core.PartyID(req.Party)
	sess, err := s.experiments.Cancel(r.Context(), sessionID(r), party)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess.SnapshotFor(party)})
}

// handleGetSession returns the viewer-scoped snapshot. Unknown viewers get
// the public view.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	viewer := core.PartyID(r.URL.Query().Get("viewer"))
	snap, err := s.experiments.Snapshot(r.Context(), sessionID(r), viewer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: snap})
}

func (s *Server) handleSweepExpired(w http.ResponseWriter, r *http.Request) {
	swept, err := s.experiments.SweepExpired(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"swept": swept})
}
