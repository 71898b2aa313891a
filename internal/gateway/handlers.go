package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rvald/ytmcompanion/internal/player"
	"github.com/rvald/ytmcompanion/internal/tokens"
)

// Pairing runs the code exchange.
type Pairing interface {
	RequestCode(ctx context.Context, appID string) (string, error)
	Confirm(ctx context.Context, appID, code string) (tokens.Token, error)
}

// StateReader is the authoritative player-state store.
type StateReader interface {
	Snapshot() player.State
}

// PlaylistQuerier asks the media surface for the library playlists.
type PlaylistQuerier interface {
	Playlists(ctx context.Context) ([]player.Playlist, error)
}

// CommandDispatcher validates and forwards remote-control commands.
type CommandDispatcher interface {
	Dispatch(command string, value any) error
}

// Subscriptions admits realtime subscribers.
type Subscriptions interface {
	Serve(w http.ResponseWriter, r *http.Request, appID string)
}

// AuthRequest is the body of both pairing routes.
type AuthRequest struct {
	AppID      string `json:"appId,omitempty"`
	AppName    string `json:"appName"`
	AppVersion string `json:"appVersion,omitempty"`
	Code       string `json:"code,omitempty"`
}

// app returns the identity the code is bound to.
func (a AuthRequest) app() string {
	if id := strings.TrimSpace(a.AppID); id != "" {
		return id
	}
	return strings.TrimSpace(a.AppName)
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Command string `json:"command"`
	Data    any    `json:"data,omitempty"`
}

type handlers struct {
	pairing   Pairing
	state     StateReader
	playlists PlaylistQuerier
	commands  CommandDispatcher
	realtime  Subscriptions
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return false
	}
	return true
}

// requestCode handles POST /auth/requestcode.
func (h *handlers) requestCode(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	code, err := h.pairing.RequestCode(r.Context(), req.app())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// request handles POST /auth/request. The request context is the client
// connection, so a client hanging up ends the confirmation wait.
func (h *handlers) request(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tok, err := h.pairing.Confirm(r.Context(), req.app(), req.Code)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok.Value})
}

// getState handles GET /state.
func (h *handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, player.Project(h.state.Snapshot()))
}

// getPlaylists handles GET /playlists.
func (h *handlers) getPlaylists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.playlists.Playlists(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// postCommand handles POST /command.
func (h *handlers) postCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.commands.Dispatch(req.Command, req.Data); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// realtimeWS handles GET /realtime after requireToken admitted it.
func (h *handlers) realtimeWS(w http.ResponseWriter, r *http.Request) {
	h.realtime.Serve(w, r, AppIDFromContext(r.Context()))
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
