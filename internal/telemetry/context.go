package telemetry

import "context"

type (
	sessionIDKey struct{}
	turnIDKey    struct{}
)

// WithSessionID returns a child context that carries the session ID.
func WithSessionID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the session ID from ctx, if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionIDKey{})
}

// WithTurnID returns a child context that carries the turn ID. One turn is
// one prompt cycle: user message in, assistant reply out.
func WithTurnID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnIDFromContext returns the turn ID from ctx, if present.
// Returns "", false if the value is missing or not a non-empty string.
func TurnIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, turnIDKey{})
}

func stringValue(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
