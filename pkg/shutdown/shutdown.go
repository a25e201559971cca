// Package shutdown cancels a CLI run on SIGINT or SIGTERM and closes the
// run's connections in reverse order of opening.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds Shutdown when New is given a non-positive timeout.
const DefaultTimeout = 10 * time.Second

// CleanupFunc releases one resource.
type CleanupFunc func(ctx context.Context) error

// Handler collects cleanups for a run.
type Handler struct {
	log     *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	stack []CleanupFunc

	once sync.Once
	err  error
}

func New(logger *slog.Logger, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{log: logger.With("component", "shutdown"), timeout: timeout}
}

// Register pushes fn; Shutdown pops in LIFO order.
func (h *Handler) Register(fn CleanupFunc) {
	h.mu.Lock()
	h.stack = append(h.stack, fn)
	h.mu.Unlock()
}

// RegisterNamed is Register with the resource name attached to log lines.
func (h *Handler) RegisterNamed(name string, fn CleanupFunc) {
	h.Register(func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			h.log.Error("close failed", "resource", name, "error", err)
		} else {
			h.log.Debug("closed", "resource", name)
		}
		return err
	})
}

// NotifyContext derives a context that is canceled by the first SIGINT or
// SIGTERM. Calling stop cancels it and releases the signal channel.
func (h *Handler) NotifyContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case sig := <-sigs:
			h.log.Warn("interrupted, finishing current batch", "signal", sig.String())
			cancel()
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// Shutdown runs the cleanups once and returns their joined errors. Later
// calls return the same result. Cleanups not started before the timeout are
// skipped.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		h.mu.Lock()
		stack := append([]CleanupFunc(nil), h.stack...)
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		var errs []error
		for i := len(stack) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				h.log.Warn("shutdown deadline reached", "skipped", i+1)
				errs = append(errs, err)
				break
			}
			errs = append(errs, stack[i](ctx))
		}
		h.err = errors.Join(errs...)
	})
	return h.err
}
