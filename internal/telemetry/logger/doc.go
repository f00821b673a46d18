// Package logger builds the process slog.Logger.
//
//   - logger.go: handler construction and the runtime-adjustable level
//   - redact.go: masking of secrets in log attributes
//   - context.go: operation ids carried through context.Context
//
// Components receive the resulting *slog.Logger by injection; nothing in
// the storage or service layers imports this package.
package logger
