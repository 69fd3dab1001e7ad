package logging

import "context"

type requestIDKey struct{}

// ContextWithRequestID stores id so that deeper layers can tag logs and errors.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
