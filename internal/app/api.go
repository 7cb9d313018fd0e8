package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sidelinehq/sideline/internal/session"
	"github.com/sidelinehq/sideline/internal/transport"
	"github.com/sidelinehq/sideline/pkg/types"
)

// rosterMemberJSON is the wire form of a roster member in the session API.
type rosterMemberJSON struct {
	PlayerID  string `json:"player_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Nickname  string `json:"nickname,omitempty"`
}

// startSessionRequest is the body of POST /api/session.
type startSessionRequest struct {
	GameID     string             `json:"game_id"`
	UploadedBy string             `json:"uploaded_by"`
	Roster     []rosterMemberJSON `json:"roster"`
}

// sessionResponse is the body of GET /api/session and the POST reply.
type sessionResponse struct {
	GameID     string             `json:"game_id"`
	UploadedBy string             `json:"uploaded_by"`
	StartedAt  time.Time          `json:"started_at"`
	Roster     []rosterMemberJSON `json:"roster"`
	Recordings int                `json:"recordings"`
}

// recordingJSON is one cache entry in GET /api/recordings.
type recordingJSON struct {
	LocalIndex   int                `json:"local_index"`
	KeyMomentID  string             `json:"key_moment_id"`
	TranscriptID string             `json:"transcript_id"`
	Text         string             `json:"text"`
	WindowStart  time.Time          `json:"window_start"`
	WindowEnd    time.Time          `json:"window_end"`
	FeedbackFor  []rosterMemberJSON `json:"feedback_for"`
}

// registerAPI adds the session-control routes the coach's app drives.
func (a *App) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session", a.handleStartSession)
	mux.HandleFunc("GET /api/session", a.handleGetSession)
	mux.HandleFunc("DELETE /api/session", a.handleEndSession)
	mux.HandleFunc("GET /api/recordings", a.handleListRecordings)
}

func (a *App) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.GameID == "" {
		httpError(w, http.StatusBadRequest, "game_id is required")
		return
	}

	roster := make([]types.RosterMember, len(req.Roster))
	for i, m := range req.Roster {
		if m.FirstName == "" && m.LastName == "" {
			httpError(w, http.StatusBadRequest, "roster member needs a first or last name")
			return
		}
		roster[i] = types.RosterMember{
			PlayerID:  m.PlayerID,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Nickname:  m.Nickname,
		}
	}

	sess, err := a.sessions.Start(req.GameID, req.UploadedBy, roster)
	if errors.Is(err, session.ErrSessionActive) {
		httpError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.metrics.ActiveSessions.Add(r.Context(), 1)
	slog.Info("game session started", "game_id", sess.GameID, "roster_size", len(roster))
	a.notifyDevice(r, "session_started", map[string]string{"game_id": sess.GameID})

	writeJSON(w, http.StatusCreated, a.sessionBody(sess))
}

func (a *App) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.sessions.Current()
	if !ok {
		httpError(w, http.StatusNotFound, "no active game session")
		return
	}
	writeJSON(w, http.StatusOK, a.sessionBody(sess))
}

func (a *App) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.sessions.Current()
	if !ok {
		httpError(w, http.StatusNotFound, session.ErrNoActiveSession.Error())
		return
	}
	gameID := sess.GameID

	if err := a.sessions.End(); err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}

	a.metrics.ActiveSessions.Add(r.Context(), -1)
	slog.Info("game session ended", "game_id", gameID)
	a.notifyDevice(r, "session_ended", map[string]string{"game_id": gameID})

	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.sessions.Current()
	if !ok {
		httpError(w, http.StatusNotFound, "no active game session")
		return
	}

	entries := sess.Cache().All()
	out := make([]recordingJSON, len(entries))
	for i, e := range entries {
		out[i] = recordingJSON{
			LocalIndex:   e.LocalIndex,
			KeyMomentID:  e.KeyMomentID,
			TranscriptID: e.TranscriptID,
			Text:         e.Text,
			WindowStart:  e.Window.Start,
			WindowEnd:    e.Window.End,
			FeedbackFor:  rosterJSON(e.FeedbackFor),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// notifyDevice tells the capture device about a session transition. The
// notification is best-effort; an unreachable device gets it from the spool
// later.
func (a *App) notifyDevice(r *http.Request, kind string, body map[string]string) {
	if a.link == nil {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	state, err := a.link.SendOrQueue(r.Context(), transport.Outbound{Kind: kind, Body: data})
	if err != nil {
		slog.Warn("device notification failed", "kind", kind, "err", err)
		return
	}
	slog.Debug("device notified", "kind", kind, "state", state)
}

func (a *App) sessionBody(sess *session.Session) sessionResponse {
	return sessionResponse{
		GameID:     sess.GameID,
		UploadedBy: sess.UploadedBy,
		StartedAt:  sess.StartedAt(),
		Roster:     rosterJSON(sess.Roster()),
		Recordings: sess.Cache().Len(),
	}
}

func rosterJSON(members []types.RosterMember) []rosterMemberJSON {
	out := make([]rosterMemberJSON, len(members))
	for i, m := range members {
		out[i] = rosterMemberJSON{
			PlayerID:  m.PlayerID,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Nickname:  m.Nickname,
		}
	}
	return out
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
