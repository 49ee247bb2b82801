package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/audiocache/internal/formatter"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/desertthunder/audiocache/internal/tasks"
	"github.com/urfave/cli/v3"
)

// CacheStats prints row counts per cache table.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	stats, err := r.store.Stats(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}
	_, err = r.output.Write(formatter.StatsToText(stats))
	return err
}

// CacheContribute submits every eligible cached load result to the community cache.
func (r *Runner) CacheContribute(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	if r.community == nil || !r.settings.CommunityEnabled() {
		return shared.NewUserError(shared.ErrMissingConfig,
			"The community cache is not configured.",
			"Set community.url and enable it with `audiocache config set community.enabled true`.")
	}
	if err := r.community.Handshake(ctx); err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.reportProgress(progress)
	}()

	res, err := tasks.ContributeAll(ctx, progress, r.store, r.community, tasks.ContributeOpts{
		ChunkSize:  cmd.Int("chunk-size"),
		Pause:      cmd.Duration("pause"),
		NumWorkers: cmd.Int("workers"),
	})
	close(progress)
	<-done

	if res != nil {
		for _, e := range res.Errors {
			r.logger.Debug("contribution failed", "error", e)
		}
		r.writePlainHeader("Community contribution")
		r.writePlain("Cached results: %d\n", res.Total)
		r.writePlain("Eligible:       %d\n", res.Eligible)
		r.writePlain("Submitted:      %d\n", res.Submitted)
		r.writePlain("Failed:         %d\n", res.Failed)
		r.writePlain("Chunks:         %d\n", res.Chunks)
	}
	return err
}

// migrationDB opens the database without applying migrations.
func (r *Runner) migrationDB() (*sql.DB, error) {
	if r.settings == nil {
		r.setConfig(shared.DefaultConfig())
	}
	cfg := r.settings.Snapshot().Database

	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	return db, nil
}

// CacheMigrations prints the state of every known migration.
func (r *Runner) CacheMigrations(ctx context.Context, cmd *cli.Command) error {
	db, err := r.migrationDB()
	if err != nil {
		return err
	}
	defer db.Close()

	states, err := shared.MigrationStatus(db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	_, err = r.output.Write(formatter.MigrationsToText(states))
	return err
}

// CacheRollback rolls back the most recent migration.
func (r *Runner) CacheRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.migrationDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	r.logger.Info("rolled back latest migration")
	return r.writePlain("%s Rolled back the latest migration\n", formatter.Styles().OK("✓"))
}
