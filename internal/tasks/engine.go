package tasks

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/repositories"
	"github.com/desertthunder/audiocache/internal/services"
	"github.com/desertthunder/audiocache/internal/shared"
)

// recentlyPlayed bounds the autoplay pool to records fetched in the last week.
const recentlyPlayed = 7 * 24 * time.Hour

// CacheStore is the read side of [repositories.CacheStore] used during resolution.
type CacheStore interface {
	FetchLoad(ctx context.Context, query string) (*models.LoadRecord, bool)
	FetchURL(ctx context.Context, trackInfo string) (*models.URLRecord, bool)
	FetchMetadata(ctx context.Context, uri string) (*models.MetadataRecord, bool)
	FetchRandom(ctx context.Context, table models.Table, filter repositories.RandomFilter) (models.Record, error)
}

// Community is the community cache tier.
type Community interface {
	LookupTrack(ctx context.Context, q models.Query) models.LoadResult
	LookupMetadata(ctx context.Context, title, author string) models.LoadResult
}

// Loader turns a normalized query into playable tracks.
type Loader interface {
	LoadTracks(ctx context.Context, identifier string) (models.LoadResult, error)
}

// MetadataProvider lists the tracks behind a provider URI.
type MetadataProvider interface {
	FetchTracks(ctx context.Context, kind, id string, onPage func(fetched int)) ([]services.SpotifyTrack, error)
}

// Searcher finds a playable URL for a textual descriptor. An empty URL means no match.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// ConfigStore exposes the settings read during resolution. [shared.Settings] implements it.
type ConfigStore interface {
	CacheLevel() int
	CacheAgeDays() int
	CommunityEnabled() bool
}

// EngineOpts wires the collaborators of an [Engine]. Community, Metadata and Search may be nil.
type EngineOpts struct {
	Store     CacheStore
	Batcher   *Batcher
	Config    ConfigStore
	Loader    Loader
	Community Community
	Metadata  MetadataProvider
	Search    Searcher
	Logger    *log.Logger
}

// Engine resolves queries through the local cache, the community cache and the providers in that order.
type Engine struct {
	store     CacheStore
	batcher   *Batcher
	config    ConfigStore
	loader    Loader
	community Community
	metadata  MetadataProvider
	search    Searcher
	logger    *log.Logger
	now       func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{
		store:     opts.Store,
		batcher:   opts.Batcher,
		config:    opts.Config,
		loader:    opts.Loader,
		community: opts.Community,
		metadata:  opts.Metadata,
		search:    opts.Search,
		logger:    shared.WithLogger(logger, "component", "engine"),
		now:       time.Now,
	}
}

// SetClock replaces the time source used to stamp new records.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Level returns the configured cache level.
func (e *Engine) Level() models.CacheLevel {
	if e.config == nil {
		return models.LevelNone
	}
	return models.CacheLevelFromInt(e.config.CacheLevel())
}

// Flush executes the writes deferred by req.
func (e *Engine) Flush(ctx context.Context, req *Request) FlushResult {
	if e.batcher == nil || req == nil {
		return FlushResult{}
	}
	return e.batcher.Flush(ctx, req.ID)
}

func (e *Engine) communityEnabled() bool {
	return e.community != nil && e.config != nil && e.config.CommunityEnabled()
}

func (e *Engine) enqueue(req *Request, t Task) {
	if e.batcher == nil || req == nil {
		return
	}
	e.batcher.Append(req.ID, t)
}

// Resolve returns the tracks for q and whether a provider was called to get them.
//
// Only configuration and quota errors are returned. Any other failure degrades to an
// empty or failed result. Provider URIs are expanded through [Engine.ResolveMetadata];
// a notice from that run, such as an aborted batch, is set as the result's exception.
func (e *Engine) Resolve(ctx context.Context, req *Request, q models.Query, level models.CacheLevel, forceRefresh bool) (models.LoadResult, bool, error) {
	if !q.Valid() {
		return models.Empty(), false, nil
	}

	if q.IsProviderURI() {
		res, err := e.ResolveMetadata(ctx, req, q, level, nil)
		called := res != nil && res.APICalled
		if err != nil {
			return models.Empty(), called, err
		}
		result := res.LoadResult()
		if res.Notice != "" {
			result.Exception = &models.LoadException{Message: res.Notice, Severity: "SUSPICIOUS"}
		}
		return result, called, nil
	}

	result, called, err := e.resolve(ctx, req, q, level, forceRefresh, true)
	if err != nil {
		if shared.IsUserFacing(err) {
			return result, called, err
		}
		e.logger.Warn("provider failed", "query", q.Canonical, "err", err)
	}
	return result, called, nil
}

// lookup is the outcome of consulting one tier.
type lookup int

const (
	miss lookup = iota
	hit
	// bypass skips the remaining cache tiers and goes to the provider.
	bypass
)

type tier struct {
	name    string
	enabled bool
	try     func(ctx context.Context, req *Request, q models.Query, level models.CacheLevel) (models.LoadResult, lookup)
}

// resolve runs the fallback chain. Errors from the provider are returned as-is alongside a
// failed result so batch callers can tell transient failures apart.
func (e *Engine) resolve(ctx context.Context, req *Request, q models.Query, level models.CacheLevel, forceRefresh, allowCommunity bool) (models.LoadResult, bool, error) {
	tiers := []tier{
		{
			name:    "local",
			enabled: !forceRefresh && level.Has(models.LevelLoad) && !q.IsLocal() && e.store != nil,
			try:     e.fromLocal,
		},
		{
			name:    "community",
			enabled: !forceRefresh && allowCommunity && level != models.LevelNone && e.communityEnabled() && !q.IsLocal() && !q.IsProviderURI(),
			try:     e.fromCommunity,
		},
	}

	for _, t := range tiers {
		if !t.enabled {
			continue
		}
		result, outcome := t.try(ctx, req, q, level)
		if outcome == hit {
			e.logger.Debug("resolved", "tier", t.name, "query", q.Canonical, "tracks", len(result.Tracks))
			return result, false, nil
		}
		if outcome == bypass {
			e.logger.Debug("bypassing cache tiers", "tier", t.name, "query", q.Canonical)
			break
		}
	}

	return e.fromProvider(ctx, req, q, level)
}

func (e *Engine) fromLocal(ctx context.Context, req *Request, q models.Query, _ models.CacheLevel) (models.LoadResult, lookup) {
	rec, needsRefresh := e.store.FetchLoad(ctx, q.CacheKey())
	if rec == nil || needsRefresh {
		return models.LoadResult{}, miss
	}
	if rec.Result.HasError() {
		return models.LoadResult{}, bypass
	}
	if !rec.Result.IsHit() {
		return models.LoadResult{}, miss
	}
	e.enqueue(req, UpdateTask{Table: models.TableLoad, Key: rec.Query})
	return rec.Result, hit
}

func (e *Engine) fromCommunity(ctx context.Context, req *Request, q models.Query, level models.CacheLevel) (models.LoadResult, lookup) {
	result := e.community.LookupTrack(ctx, q)
	if !result.IsHit() {
		return models.LoadResult{}, miss
	}
	e.persist(req, q, result, level)
	return result, hit
}

func (e *Engine) fromProvider(ctx context.Context, req *Request, q models.Query, level models.CacheLevel) (models.LoadResult, bool, error) {
	if e.loader == nil {
		return models.Empty(), false, shared.NewUserError(shared.ErrMissingConfig,
			"no load node configured", "set lavalink.address in the config file")
	}

	result, err := e.loader.LoadTracks(ctx, q.Canonical)
	if err != nil {
		return models.Failure(err.Error()), true, err
	}
	e.logger.Debug("resolved", "tier", "provider", "query", q.Canonical, "type", result.LoadType, "tracks", len(result.Tracks))

	if e.persist(req, q, result, level) && e.communityEnabled() {
		e.enqueue(req, ContributeTask{Result: result, Query: q})
	}
	return result, true, nil
}

// persist enqueues a load record for result and reports whether the result is worth keeping.
func (e *Engine) persist(req *Request, q models.Query, result models.LoadResult, level models.CacheLevel) bool {
	if q.IsLocal() || !result.Cacheable() {
		return false
	}
	if level.Has(models.LevelLoad) {
		rec := models.LoadRecord{Query: q.CacheKey(), Result: result, Timestamps: models.Stamp(e.now())}
		e.enqueue(req, InsertTask{Table: models.TableLoad, Records: []models.Record{rec}})
	}
	return true
}

// RandomTracks returns the tracks of one recently played cached query, or nil.
func (e *Engine) RandomTracks(ctx context.Context) []models.Track {
	if e.store == nil || !e.Level().Has(models.LevelLoad) {
		return nil
	}

	var maxAge time.Duration
	if e.config != nil {
		maxAge = time.Duration(e.config.CacheAgeDays()) * 24 * time.Hour
	}
	filter := repositories.RandomFilter{PlayedWithin: recentlyPlayed, MaxAge: maxAge}

	rec, err := e.store.FetchRandom(ctx, models.TableLoad, filter)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			e.logger.Warn("random track lookup failed", "err", err)
		}
		return nil
	}
	load, ok := rec.(models.LoadRecord)
	if !ok {
		return nil
	}
	return load.Result.Tracks
}
