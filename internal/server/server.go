// package server exposes query resolution and cache maintenance over HTTP
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler groups endpoints that register together.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the "METHOD /path" patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Maintainer drains deferred writes across all requests.
type Maintainer interface {
	FlushAll(ctx context.Context) tasks.FlushResult
}

// Options configures [Run].
type Options struct {
	Addr          string
	FlushInterval time.Duration
	Logger        *log.Logger
}

// Run serves handler on opts.Addr until ctx is cancelled, flushing pending writes every
// FlushInterval and once more on shutdown.
func Run(ctx context.Context, handler http.Handler, maint Maintainer, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Minute
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.Addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	ticker := time.NewTicker(opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			flush(ctx, maint, logger)
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown failed", "err", err)
			}
			flush(shutdownCtx, maint, logger)
			return nil
		}
	}
}

func flush(ctx context.Context, maint Maintainer, logger *log.Logger) {
	if maint == nil {
		return
	}
	res := maint.FlushAll(ctx)
	if res.Executed > 0 {
		logger.Debug("maintenance flush", "executed", res.Executed, "failed", len(res.Errors))
	}
}
