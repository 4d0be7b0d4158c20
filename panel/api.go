package panel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hazyhaar/clippy/auth"
	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/prefs"
	"github.com/hazyhaar/clippy/shield"
)

// signedInOnly are the actions that read the clipboard or write the chat
// log. The popup's toggle works signed out; these do not.
var signedInOnly = map[bridge.Action]bool{
	bridge.ActionPasteFromClipboard: true,
	bridge.ActionElementSelected:    true,
}

// handleMessage is the UI's way into the bridge. The body is a wire
// message; the reply is the receiving surface's response.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	msg, err := bridge.Decode(data)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	if signedInOnly[msg.Action()] && !s.cfg.Gate.CheckToken(auth.TokenFromRequest(r)) {
		jsonErr(w, "not signed in", http.StatusUnauthorized)
		return
	}
	resp := s.cfg.Router.Request(r.Context(), msg, s.cfg.Timeout)
	if !resp.Success {
		shield.GetLogger(r.Context()).Warn("panel: bridge request failed", "action", msg.Action(), "error", resp.Error)
	}
	jsonOK(w, resp)
}

func (s *Server) loadPrefs(ctx context.Context) prefs.Prefs {
	if s.cfg.Prefs == nil {
		return prefs.Defaults()
	}
	p, err := s.cfg.Prefs.Load(ctx)
	if err != nil {
		s.log.Warn("panel: load prefs failed", "error", err)
		return prefs.Defaults()
	}
	return p
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, s.loadPrefs(r.Context()))
}

// handleSetPrefs applies the fields present in the body. A change to
// enabled is mirrored into the content script.
func (s *Server) handleSetPrefs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		jsonErr(w, "preferences unavailable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Enabled  *bool `json:"enabled"`
		DarkMode *bool `json:"darkMode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.Enabled != nil {
		if err := s.cfg.Prefs.SetEnabled(ctx, *req.Enabled); err != nil {
			shield.GetLogger(ctx).Error("panel: save prefs failed", "error", err)
			jsonErr(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.cfg.Router.Post(context.WithoutCancel(ctx), bridge.SetEnabled{Enabled: *req.Enabled})
	}
	if req.DarkMode != nil {
		if err := s.cfg.Prefs.SetDarkMode(ctx, *req.DarkMode); err != nil {
			shield.GetLogger(ctx).Error("panel: save prefs failed", "error", err)
			jsonErr(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
	jsonOK(w, s.loadPrefs(ctx))
}
