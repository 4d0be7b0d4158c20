package kit

import "context"

type contextKey string

const (
	UserIDKey    contextKey = "kit_user_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp", "bridge"
	TraceIDKey   contextKey = "kit_trace_id"
	SurfaceKey   contextKey = "kit_surface"
)

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// WithSurface records which extension surface (content, background, panel)
// originated the call.
func WithSurface(ctx context.Context, s string) context.Context {
	return context.WithValue(ctx, SurfaceKey, s)
}
func GetSurface(ctx context.Context) string {
	v, _ := ctx.Value(SurfaceKey).(string)
	return v
}
