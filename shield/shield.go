// Package shield holds the HTTP middleware in front of the clippy side
// panel: security headers, body limits, request tracing, flash messages and
// a login rate limiter.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.PanelStack() {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// FlashKey is the context key for flash messages.
	FlashKey contextKey = "shield_flash"
)

// PanelStack returns the middleware applied to every side panel route, in
// order: chi's GetHead, SecurityHeaders, MaxFormBody, TraceID, Flash.
// GetHead needs a chi routing context, so the stack belongs on a chi.Router.
func PanelStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.GetHead,
		SecurityHeaders(DefaultHeaders()),
		MaxFormBody(64 * 1024),
		TraceID,
		Flash,
	}
}
