package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/audiocache/internal/formatter"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes config.toml from the embedded template when it is missing, then
// initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		return fmt.Errorf("%w: --config", shared.ErrMissingArgument)
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}

		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		r.setConfig(config)
		r.writePlain("%s Config written to %s\n", formatter.Styles().OK("✓"), configPath)
	}

	cfg := r.settings.Snapshot()
	r.logger.Info("initializing database", "path", cfg.Database.Path)

	if err := r.open(); err != nil {
		return err
	}

	states, err := shared.MigrationStatus(r.db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", cfg.Database.Path)
	r.writePlain("%s Database ready at %s\n\n", formatter.Styles().OK("✓"), cfg.Database.Path)
	if _, err := r.output.Write(formatter.MigrationsToText(states)); err != nil {
		return err
	}

	r.writePlainln("Next steps:")
	r.writePlain("1. Set lavalink.address and provider credentials in %s\n", configPath)
	r.writePlain("2. Run 'audiocache resolve \"your song\"' to test resolution\n")
	return nil
}

const redacted = "********"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// ConfigShow prints the effective configuration as TOML with secrets masked.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	cfg := r.settings.Snapshot()
	redact(&cfg.Credentials.Spotify.ClientSecret)
	redact(&cfg.Credentials.YouTube.APIKey)
	redact(&cfg.Community.APIKey)
	redact(&cfg.Lavalink.Password)

	if err := toml.NewEncoder(r.output).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ConfigSet changes one runtime setting and saves it back to the config file.
func (r *Runner) ConfigSet(ctx context.Context, cmd *cli.Command) error {
	key, value := cmd.StringArg("key"), cmd.StringArg("value")
	if key == "" {
		return fmt.Errorf("%w: key", shared.ErrMissingArgument)
	}

	if err := r.settings.Set(key, value); err != nil {
		return err
	}
	if err := r.settings.Save(); err != nil {
		return err
	}

	r.logger.Info("setting updated", "key", key, "path", r.configPath)
	return r.writePlain("%s %s = %s\n", formatter.Styles().OK("✓"), key, value)
}
