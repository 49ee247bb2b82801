package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/audiocache/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until the process is interrupted, flushing deferred writes periodically.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	cfg := r.settings.Snapshot()
	addr := cmd.String("addr")
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	opts := server.APIOptions{
		Resolver: r.engine,
		Flusher:  r.batcher,
		Stats:    r.store,
		Gate:     r.gate,
		Logger:   r.logger,
	}
	if r.community != nil {
		opts.Community = r.community
		if err := r.community.Handshake(ctx); err != nil {
			r.logger.Warn("community cache unavailable at startup", "error", err)
		}
	}

	return server.Run(ctx, server.NewHandler(opts), r.batcher, server.Options{
		Addr:          addr,
		FlushInterval: cfg.Server.FlushInterval(),
		Logger:        r.logger,
	})
}
