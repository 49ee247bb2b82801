package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/audiocache/internal/formatter"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/desertthunder/audiocache/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Resolve resolves one query and prints or exports the result.
//
// Provider URIs are expanded track by track with progress logged as it happens.
// Deferred cache writes are flushed after the output is written.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.StringArg("query")
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	format := cmd.String("format")

	if err := r.open(); err != nil {
		return err
	}

	q := models.NormalizeQuery(raw)
	if !q.Valid() {
		return fmt.Errorf("%w: unsupported query %q", shared.ErrInvalidInput, raw)
	}

	level := r.engine.Level()
	if n := cmd.Int("level"); n >= 0 {
		level = models.CacheLevelFromInt(n)
	}

	req := tasks.NewRequest()
	defer r.flush(ctx, req)

	var result models.LoadResult
	if q.IsProviderURI() {
		res, err := r.resolveMetadata(ctx, req, q, level)
		if err != nil {
			return err
		}
		result = res.LoadResult()
		if res.Notice != "" && format == "text" {
			r.writePlain("%s\n", formatter.Styles().Warn(res.Notice))
		}
	} else {
		res, called, err := r.engine.Resolve(ctx, req, q, level, cmd.Bool("refresh"))
		if err != nil {
			return err
		}
		r.logger.Debug("resolved", "query", q.Canonical, "level", level, "api_called", called)
		result = res
	}

	if !cmd.Bool("no-policy") {
		var dropped int
		if result, dropped = r.gate.Filter(result); dropped > 0 {
			r.logger.Warn("tracks blocked by keyword policy", "count", dropped)
		}
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(result, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("%s\nResult written to %s\n", formatter.Styles().Summary(result), written)
	}
	return formatter.Render(r.output, format, result, q.Canonical)
}

func (r *Runner) resolveMetadata(ctx context.Context, req *tasks.Request, q models.Query, level models.CacheLevel) (*tasks.MetadataResult, error) {
	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.reportProgress(progress)
	}()

	res, err := r.engine.ResolveMetadata(ctx, req, q, level, tasks.ChannelNotifier(progress))
	close(progress)
	<-done
	if err != nil {
		return nil, err
	}

	r.logger.Info("resolved provider tracks",
		"query", q.Canonical,
		"resolved", len(res.Tracks),
		"failed", res.Failed,
		"aborted", res.Aborted,
		"api_called", res.APICalled,
	)
	return res, nil
}

func (r *Runner) reportProgress(updates <-chan tasks.ProgressUpdate) {
	for u := range updates {
		if u.Phase == tasks.Failure {
			r.logger.Warn(u.Message)
			continue
		}
		r.logger.Info(u.Message, "phase", u.Phase.String(), "step", u.Step, "total", u.Total)
	}
}

// flush runs the deferred writes for req even when ctx was cancelled.
func (r *Runner) flush(ctx context.Context, req *tasks.Request) {
	res := r.engine.Flush(context.WithoutCancel(ctx), req)
	for _, err := range res.Errors {
		r.logger.Warn("deferred cache write failed", "error", err)
	}
	if res.Executed > 0 {
		r.logger.Debug("flushed cache writes", "executed", res.Executed, "failed", len(res.Errors))
	}
}

// Random prints the tracks of one recently played cached result.
func (r *Runner) Random(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	tracks := r.engine.RandomTracks(ctx)
	if len(tracks) == 0 {
		return r.writePlain("%s\n", formatter.Styles().Warn("No recently played results in the cache."))
	}

	result := models.LoadResult{LoadType: models.PlaylistLoaded, Tracks: tracks}
	if len(tracks) == 1 {
		result.LoadType = models.TrackLoaded
	}
	return formatter.Render(r.output, cmd.String("format"), result, "")
}
