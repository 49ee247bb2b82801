package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/policy"
	"github.com/desertthunder/audiocache/internal/repositories"
	"github.com/desertthunder/audiocache/internal/services"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/desertthunder/audiocache/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Service objects are built on first use by [Runner.open] so that commands like `config show`
// never touch the database.
type Runner struct {
	configPath string
	config     *shared.Config
	settings   *shared.Settings
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db        *sql.DB
	store     *repositories.CacheStore
	spotify   *services.SpotifyClient
	youtube   *services.YouTubeClient
	community *services.CommunityClient
	lavalink  *services.LavalinkNode
	batcher   *tasks.Batcher
	engine    *tasks.Engine
	gate      *policy.Gate
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner. A nil Config is loaded from the --config flag before any command runs.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	r := &Runner{
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
	if opts.Config != nil {
		r.setConfig(opts.Config)
	}
	return r
}

func (r *Runner) setConfig(cfg *shared.Config) {
	r.config = cfg
	r.settings = shared.NewSettings(cfg, r.configPath)
}

// loadConfig reads path, falling back to defaults plus environment overrides when the file does not exist.
func loadConfig(path string, logger *log.Logger) (*shared.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
		logger.Debug("config file not found, using defaults", "path", path)
		return shared.EnvConfig()
	}
	return shared.LoadConfig(path)
}

// Configure is the root Before hook: it loads configuration and applies the log level.
//
// Settings built here are kept across commands run by the same Runner.
func (r *Runner) Configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" && r.configPath == "" {
		r.configPath = path
		if r.config != nil {
			r.setConfig(r.config)
		}
	}

	if r.config == nil {
		cfg, err := loadConfig(r.configPath, r.logger)
		if err != nil {
			return ctx, err
		}
		r.setConfig(cfg)
	}

	level := cmd.String("log-level")
	if level == "" {
		level = r.config.Log.Level
	}
	if level != "" {
		shared.SetLogLevel(r.logger, shared.ParseLogLevel(level))
	}
	return ctx, nil
}

// open builds the database and every service object from the current settings. It is idempotent.
func (r *Runner) open() error {
	if r.engine != nil {
		return nil
	}
	if r.settings == nil {
		r.setConfig(shared.DefaultConfig())
	}
	cfg := r.settings.Snapshot()

	db, err := shared.OpenCacheDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	r.db = db
	r.store = repositories.NewCacheStore(db, r.settings, r.logger)

	// Interfaces stay untyped nil for disabled collaborators.
	var (
		community   tasks.Community
		contributor tasks.Contributor
		loader      tasks.Loader
		metadata    tasks.MetadataProvider
	)

	if cfg.Community.URL != "" {
		r.community = services.NewCommunityClient(services.CommunityOptions{
			BaseURL:    cfg.Community.URL,
			APIKey:     cfg.Community.APIKey,
			Timeout:    cfg.Community.Timeout(),
			Window:     cfg.Community.HandshakeWindow(),
			HTTPClient: r.httpClient,
			Logger:     r.logger,
		})
		community, contributor = r.community, r.community
	}

	if cfg.Lavalink.Address != "" {
		r.lavalink = services.NewLavalinkNode(services.LavalinkOptions{
			Address:    cfg.Lavalink.Address,
			Password:   cfg.Lavalink.Password,
			Timeout:    cfg.Lavalink.Timeout(),
			HTTPClient: r.httpClient,
			Logger:     r.logger,
		})
		loader = r.lavalink
	}

	spotify, err := services.NewSpotifyClient(services.SpotifyOptions{
		ClientID:     cfg.Credentials.Spotify.ClientID,
		ClientSecret: cfg.Credentials.Spotify.ClientSecret,
		HTTPClient:   r.httpClient,
		Logger:       r.logger,
	})
	if err != nil {
		r.logger.Debug("spotify metadata disabled", "reason", err)
	} else {
		r.spotify = spotify
		metadata = spotify
	}

	r.youtube = services.NewYouTubeClient(services.YouTubeOptions{
		APIKey:         cfg.Credentials.YouTube.APIKey,
		QuotaPerSecond: cfg.Credentials.YouTube.QuotaPerSecond,
		HTTPClient:     r.httpClient,
		Logger:         r.logger,
	})

	r.batcher = tasks.NewBatcher(r.store, contributor, r.logger)
	r.engine = tasks.NewEngine(tasks.EngineOpts{
		Store:     r.store,
		Batcher:   r.batcher,
		Config:    r.settings,
		Loader:    loader,
		Community: community,
		Metadata:  metadata,
		Search:    r.youtube,
		Logger:    r.logger,
	})
	r.gate = policy.NewGate(r.settings, r.logger)
	return nil
}

// Close releases the database handle, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		resolveCommand, randomCommand, spotifyCommand, cacheCommand, configCommand, setupCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
