package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"
)

func newTestHandler() *Handler {
	return NewHandler(time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandler_ReverseOrder(t *testing.T) {
	h := newTestHandler()

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"first", "second", "third"} {
		h.OnShutdown(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	want := []string{"third", "second", "first"}
	if !slices.Equal(order, want) {
		t.Errorf("hook order = %v, want %v", order, want)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}
}

func TestHandler_HookError(t *testing.T) {
	h := newTestHandler()
	boom := errors.New("boom")
	ran := false

	h.OnShutdown("after", func(context.Context) error { ran = true; return nil })
	h.OnShutdown("failing", func(context.Context) error { return boom })

	err := h.Shutdown()
	if !errors.Is(err, boom) {
		t.Errorf("Shutdown() error = %v, want boom", err)
	}
	if !ran {
		t.Error("hook after a failing one did not run")
	}
}

func TestHandler_ShutdownOnce(t *testing.T) {
	h := newTestHandler()
	calls := 0
	h.OnShutdown("count", func(context.Context) error { calls++; return nil })

	h.Shutdown()
	h.Shutdown()
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := newTestHandler()
	h.OnShutdown("deadline", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})
	if err := h.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestHandler_Wait_Context(t *testing.T) {
	h := newTestHandler()
	ran := make(chan struct{})
	h.OnShutdown("hook", func(context.Context) error { close(ran); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after cancel")
	}
	select {
	case <-ran:
	default:
		t.Error("hook did not run")
	}
}

func TestHandler_Wait_Signal(t *testing.T) {
	h := newTestHandler()
	h.signals = []os.Signal{syscall.SIGUSR1}

	// Keep the default action from killing the test binary if the signal
	// lands before Wait subscribes.
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, syscall.SIGUSR1)
	defer signal.Stop(guard)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after signal")
	}
}
