package logger

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const operationIDKey contextKey = "restorepoint.operation_id"

// operationIDAttr is the log attribute carrying the operation id.
const operationIDAttr = "op"

// WithOperationID returns a context carrying a new operation id. Loggers
// built by New add it to records logged with that context.
func WithOperationID(ctx context.Context) context.Context {
	return context.WithValue(ctx, operationIDKey, ulid.Make().String())
}

// OperationID returns the operation id of ctx, or "".
func OperationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(operationIDKey).(string)
	return id
}
