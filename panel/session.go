package panel

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/hazyhaar/clippy/auth"
	"github.com/hazyhaar/clippy/authgate"
	"github.com/hazyhaar/clippy/background"
	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/chat"
	"github.com/hazyhaar/clippy/kit"
	"github.com/hazyhaar/clippy/shield"
)

type sessionKey struct{}

func getSession(ctx context.Context) *chat.Session {
	s, _ := ctx.Value(sessionKey{}).(*chat.Session)
	return s
}

// requireSession admits requests carrying the live session token and puts
// a chat.Session for that user in the context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Gate.CheckToken(auth.TokenFromRequest(r)) {
			jsonErr(w, "not signed in", http.StatusUnauthorized)
			return
		}
		sess, err := background.CurrentSession(s.cfg.Gate, s.cfg.Store)
		if err != nil {
			jsonErr(w, "not signed in", http.StatusUnauthorized)
			return
		}
		ctx := kit.WithUserID(r.Context(), sess.User().ID)
		ctx = context.WithValue(ctx, sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireBearer admits requests whose Authorization header carries the
// live session token.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || !s.cfg.Gate.CheckToken(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="clippy"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireJSON refuses bodies that are not application/json. Browsers
// cannot send such a request cross-site without a preflight.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mt != "application/json" {
			jsonErr(w, "content type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	u, signedIn := s.cfg.Gate.Current()
	if signedIn && !s.cfg.Gate.CheckToken(auth.TokenFromRequest(r)) {
		auth.SetTokenCookie(w, u.Token, s.cfg.TokenTTL, s.cfg.SecureCookie)
	}
	p := s.loadPrefs(r.Context())
	data := pageData{
		SignedIn: signedIn,
		Email:    u.Email,
		DarkMode: p.DarkMode,
		Flash:    shield.GetFlash(r.Context()),
	}
	s.views.render(w, "index.html", data)
}

func (s *Server) handlePopup(w http.ResponseWriter, r *http.Request) {
	_, signedIn := s.cfg.Gate.Current()
	p := s.loadPrefs(r.Context())
	s.views.render(w, "popup.html", pageData{
		SignedIn: signedIn,
		Enabled:  p.Enabled,
		DarkMode: p.DarkMode,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	u, err := s.cfg.Gate.SignIn(r.Context(), email, password)
	if err != nil {
		shield.GetLogger(r.Context()).Warn("panel: login failed", "email", email, "error", err)
		shield.SetFlash(w, shield.FlashError, "Login failed: "+loginMessage(err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	auth.SetTokenCookie(w, u.Token, s.cfg.TokenTTL, s.cfg.SecureCookie)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func loginMessage(err error) string {
	if errors.Is(err, authgate.ErrInvalidCredentials) {
		return "invalid email or password"
	}
	return "sign-in is unavailable"
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Gate.CheckToken(auth.TokenFromRequest(r)) {
		if err := s.cfg.Gate.SignOut(r.Context()); err != nil {
			shield.GetLogger(r.Context()).Warn("panel: sign out failed", "error", err)
		}
	}
	auth.ClearTokenCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(bridge.Response{Success: false, Error: msg})
}
