// Package audit emits structured audit events for security-relevant
// actions: logins, authorization decisions and realm lifecycle changes.
// Events go to the process log stream tagged type=audit; shipping them to
// durable storage is the log pipeline's job.
package audit

import (
	"context"
	"strings"

	"realmgate.org/internal/obs"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context so audit
// events can be correlated with access logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes one audit event enriched with request context. Events
// with an empty name are dropped.
func LogEvent(ctx context.Context, event string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	ev := obs.Logger().Info().Str("type", "audit").Str("event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("audit event")
}
