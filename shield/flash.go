package shield

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

const (
	flashCookie = "flash"
	// flashTTL covers one redirect; a flash nobody reads expires quickly.
	flashTTL = 10
)

// FlashMessage is a one-time notice shown on the next page render.
type FlashMessage struct {
	Type    string // FlashSuccess or FlashError
	Message string
}

// GetFlash returns the notice Flash found on the request, or nil.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(FlashKey).(*FlashMessage)
	return v
}

// SetFlash leaves a notice for the page the response redirects to.
func SetFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + ":" + message),
		Path:     "/",
		MaxAge:   flashTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Flash consumes the notice cookie: it is expired on the response and its
// message handed to the handler through GetFlash.
func Flash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(flashCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
		msg := parseFlash(c.Value)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), FlashKey, msg)))
	})
}

// parseFlash splits "kind:message". Anything without a known kind is shown
// as an error.
func parseFlash(v string) *FlashMessage {
	raw, err := url.QueryUnescape(v)
	if err != nil {
		raw = v
	}
	kind, text, ok := strings.Cut(raw, ":")
	if ok && (kind == FlashSuccess || kind == FlashError) {
		return &FlashMessage{Type: kind, Message: text}
	}
	return &FlashMessage{Type: FlashError, Message: raw}
}
