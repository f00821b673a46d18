// Package httpserver serves the restorepointd HTTP endpoints.
//
// The router mounts the restore point API from package handler behind a
// middleware chain (RequestID, Recover, RateLimit, Audit) and exposes
// Prometheus metrics on /metrics without rate limiting.
package httpserver
