// Package output renders restorepoint-cli results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned tables for terminals
//   - json.go, yaml.go: machine-readable output
//   - humanize.go: relative times and byte sizes
//   - spinner.go, progress.go: feedback for long operations
package output
