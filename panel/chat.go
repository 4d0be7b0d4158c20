package panel

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/hazyhaar/clippy/chat"
	"github.com/hazyhaar/clippy/shield"
)

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())

	text, err := readText(r)
	if err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := sess.Send(r.Context(), text)
	if errors.Is(err, chat.ErrEmptyMessage) {
		jsonErr(w, "text is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		shield.GetLogger(r.Context()).Error("panel: send failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, m)
}

// readText takes "text" from a JSON body or a form.
func readText(r *http.Request) (string, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.Text, nil
	}
	return r.FormValue("text"), nil
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if err := sess.Reset(r.Context()); err != nil {
		shield.GetLogger(r.Context()).Error("panel: reset failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.hub.broadcast(sess.User().ID, frame{Type: "reset"})
	jsonOK(w, map[string]bool{"reset": true})
}
