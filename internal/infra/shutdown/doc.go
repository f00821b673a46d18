// Package shutdown runs cleanup hooks when the process is asked to stop.
//
// Usage:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("storage", handle.Close)
//	err := h.Wait(ctx) // returns after SIGINT, SIGTERM or ctx is done
package shutdown
