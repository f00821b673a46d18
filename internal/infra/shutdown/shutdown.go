package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger
	signals []os.Signal

	mu    sync.Mutex
	hooks []hook

	once sync.Once
	done chan struct{}
}

// NewHandler creates a shutdown handler whose hooks share a deadline of
// timeout.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a hook. Hooks run in reverse order of registration.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Wait blocks until a termination signal arrives or ctx is done, then runs
// the hooks. Every hook runs even if an earlier one fails; the failures
// are joined.
func (h *Handler) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, h.signals...)
	<-sigCtx.Done()
	stop()

	h.logger.Info("shutting down", "timeout", h.timeout)
	return h.Shutdown()
}

// Shutdown runs the hooks once. Later calls return nil.
func (h *Handler) Shutdown() error {
	var err error
	h.once.Do(func() {
		defer close(h.done)

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]hook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if herr := hooks[i].fn(ctx); herr != nil {
				h.logger.Error("shutdown hook failed", "hook", hooks[i].name, "error", herr)
				errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, herr))
				continue
			}
			h.logger.Debug("shutdown hook done", "hook", hooks[i].name)
		}
		err = errors.Join(errs...)
	})
	return err
}

// Done returns a channel that is closed when the hooks have run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
