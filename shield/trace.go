package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/clippy/idgen"
	"github.com/hazyhaar/clippy/kit"
)

// TraceID tags each request with an id, echoes it in X-Trace-ID and stores
// a request-scoped logger under LoggerKey. A caller-supplied X-Trace-ID is
// reused when it is a valid UUID.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, err := idgen.Parse(r.Header.Get("X-Trace-ID"))
		if err != nil {
			traceID = idgen.New()
		}

		ctx := kit.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger returns the request logger, or slog.Default() outside a request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
