package logging

import (
	"context"
	"log/slog"

	"facereview/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldFaceID is the standardized key for face instance identifiers.
	FieldFaceID = "face_id"
	// FieldSuggestionID is the standardized key for suggestion identifiers.
	FieldSuggestionID = "suggestion_id"
	// FieldPersonID is the standardized key for person identifiers.
	FieldPersonID = "person_id"
	// FieldProgressKey is the standardized key for job progress keys.
	FieldProgressKey = "progress_key"
	// FieldOperation is the standardized key for engine operation names.
	FieldOperation = "operation"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. "assign_rollback").
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.FaceIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFaceID, id))
	}
	if id, ok := services.SuggestionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSuggestionID, id))
	}
	if op, ok := services.OperationFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldOperation, op))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
