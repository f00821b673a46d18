package httpserver

import (
	"log/slog"
	"net/http"
)

// RouterConfig configures the router.
type RouterConfig struct {
	// API serves everything except /metrics.
	API http.Handler

	// Metrics serves /metrics. Nil leaves the route unmounted.
	Metrics http.Handler

	Logger *slog.Logger

	// RateLimit is the per-IP request rate for the API. Zero disables it.
	RateLimit float64

	// Burst is the per-IP burst. Default: 1 when RateLimit is set.
	Burst int

	// TrustProxy rate limits by X-Forwarded-For / X-Real-IP instead of the
	// connection address. Only set it behind a proxy that overwrites them.
	TrustProxy bool

	// EnableAudit logs every API request.
	EnableAudit bool
}

// DefaultRouterConfig returns the default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RateLimit:   20,
		Burst:       40,
		EnableAudit: true,
	}
}

// NewRouter builds the top-level handler.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	middlewares := []Middleware{RequestID(), Recover(cfg.Logger)}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimit(cfg.RateLimit, max(cfg.Burst, 1), cfg.TrustProxy))
	}
	if cfg.EnableAudit {
		middlewares = append(middlewares, Audit(cfg.Logger))
	}

	mux := http.NewServeMux()
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, Recover(cfg.Logger)))
	}
	if cfg.API != nil {
		mux.Handle("/", Chain(cfg.API, middlewares...))
	}
	return mux
}
