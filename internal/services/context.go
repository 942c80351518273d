package services

import "context"

type contextKey string

const (
	faceIDKey       contextKey = "face_id"
	suggestionIDKey contextKey = "suggestion_id"
	operationKey    contextKey = "operation"
	requestIDKey    contextKey = "request_id"
)

// WithFaceID annotates context with the face instance identifier.
func WithFaceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, faceIDKey, id)
}

// FaceIDFromContext extracts the face instance identifier if present.
func FaceIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(faceIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSuggestionID annotates context with the suggestion identifier.
func WithSuggestionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, suggestionIDKey, id)
}

// SuggestionIDFromContext returns the suggestion identifier if present.
func SuggestionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(suggestionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithOperation annotates context with the engine operation name (accept, assign, ...).
func WithOperation(ctx context.Context, op string) context.Context {
	if op == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, op)
}

// OperationFromContext returns the operation name if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(operationKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
