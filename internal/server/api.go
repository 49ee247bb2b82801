package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/policy"
	"github.com/desertthunder/audiocache/internal/repositories"
	"github.com/desertthunder/audiocache/internal/services"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/desertthunder/audiocache/internal/tasks"
)

// Resolver is the subset of [tasks.Engine] served over HTTP.
type Resolver interface {
	Resolve(ctx context.Context, req *tasks.Request, q models.Query, level models.CacheLevel, forceRefresh bool) (models.LoadResult, bool, error)
	ResolveMetadata(ctx context.Context, req *tasks.Request, q models.Query, level models.CacheLevel, notifier tasks.ProgressNotifier) (*tasks.MetadataResult, error)
	RandomTracks(ctx context.Context) []models.Track
	Flush(ctx context.Context, req *tasks.Request) tasks.FlushResult
	Level() models.CacheLevel
}

// StatsSource reports per-table row counts.
type StatsSource interface {
	Stats(ctx context.Context) (repositories.Stats, error)
}

// AvailabilityReporter exposes the community handshake state.
type AvailabilityReporter interface {
	Availability() services.AvailabilityState
}

// APIOptions wires an [API]. Everything except Resolver may be nil.
type APIOptions struct {
	Resolver  Resolver
	Flusher   Maintainer
	Stats     StatsSource
	Community AvailabilityReporter
	Gate      *policy.Gate
	Logger    *log.Logger
}

// API serves resolution and maintenance endpoints.
type API struct {
	opts   APIOptions
	mux    *http.ServeMux
	logger *log.Logger
}

var apiRoutes = []string{
	"GET /v1/resolve",
	"GET /v1/random",
	"GET /v1/stats",
	"POST /v1/flush",
	"GET /healthz",
}

func NewAPI(opts APIOptions) *API {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	a := &API{opts: opts, mux: http.NewServeMux(), logger: shared.WithLogger(logger, "component", "api")}
	a.mux.HandleFunc("GET /v1/resolve", a.resolve)
	a.mux.HandleFunc("GET /v1/random", a.random)
	a.mux.HandleFunc("GET /v1/stats", a.stats)
	a.mux.HandleFunc("POST /v1/flush", a.flush)
	a.mux.HandleFunc("GET /healthz", a.health)
	return a
}

func (a *API) Routes() []string { return apiRoutes }

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// ResolveResponse is the body of GET /v1/resolve.
type ResolveResponse struct {
	Query     string            `json:"query"`
	Result    models.LoadResult `json:"result"`
	APICalled bool              `json:"apiCalled"`
	Blocked   int               `json:"blocked,omitempty"`
	Notice    string            `json:"notice,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, hint string) {
	writeJSON(w, status, errorResponse{Error: msg, Hint: hint})
}

// writeUserError maps configuration errors to 503 and quota errors to 429.
func writeUserError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	if errors.Is(err, shared.ErrQuotaExceeded) {
		status = http.StatusTooManyRequests
	}
	var ue *shared.UserError
	if errors.As(err, &ue) {
		writeError(w, status, ue.Message, ue.Hint)
		return
	}
	writeError(w, status, err.Error(), "")
}

const queryHint = "pass ?query= with search text, a supported URL or a spotify uri"

// resolve handles GET /v1/resolve?query=...&refresh=true&level=N.
func (a *API) resolve(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := models.NormalizeQuery(values.Get("query"))
	if !q.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported or empty query", queryHint)
		return
	}

	level := a.opts.Resolver.Level()
	if raw := values.Get("level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "level must be a non-negative integer", "")
			return
		}
		level = models.CacheLevelFromInt(n)
	}
	refresh, _ := strconv.ParseBool(values.Get("refresh"))

	ctx := r.Context()
	req := tasks.NewRequest()
	a.logger.Debug("resolving", "query", q.Canonical, "request_id", RequestIDFrom(ctx), "batch", req.ID)
	defer a.opts.Resolver.Flush(context.WithoutCancel(ctx), req)

	resp := ResolveResponse{Query: q.Canonical}
	if q.IsProviderURI() {
		res, err := a.opts.Resolver.ResolveMetadata(ctx, req, q, level, nil)
		if err != nil {
			a.fail(w, err)
			return
		}
		resp.Result, resp.APICalled, resp.Notice = res.LoadResult(), res.APICalled, res.Notice
	} else {
		result, called, err := a.opts.Resolver.Resolve(ctx, req, q, level, refresh)
		if err != nil {
			a.fail(w, err)
			return
		}
		resp.Result, resp.APICalled = result, called
	}

	if a.opts.Gate != nil {
		resp.Result, resp.Blocked = a.opts.Gate.Filter(resp.Result)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) fail(w http.ResponseWriter, err error) {
	if shared.IsUserFacing(err) {
		writeUserError(w, err)
		return
	}
	a.logger.Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, "resolution failed", "")
}

func (a *API) random(w http.ResponseWriter, r *http.Request) {
	tracks := a.opts.Resolver.RandomTracks(r.Context())
	if tracks == nil {
		tracks = []models.Track{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	if a.opts.Stats == nil {
		writeError(w, http.StatusNotImplemented, "stats unavailable", "")
		return
	}
	stats, err := a.opts.Stats.Stats(r.Context())
	if err != nil {
		a.logger.Warn("stats failed", "err", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// FlushResponse is the body of POST /v1/flush.
type FlushResponse struct {
	Executed int      `json:"executed"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

func (a *API) flush(w http.ResponseWriter, r *http.Request) {
	if a.opts.Flusher == nil {
		writeError(w, http.StatusNotImplemented, "flush unavailable", "")
		return
	}
	res := a.opts.Flusher.FlushAll(r.Context())
	resp := FlushResponse{Executed: res.Executed, Failed: len(res.Errors)}
	for _, err := range res.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status    string `json:"status"`
	CacheTier string `json:"cacheLevel"`
	Community string `json:"community"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", CacheTier: a.opts.Resolver.Level().String(), Community: "disabled"}
	if a.opts.Community != nil {
		state := a.opts.Community.Availability()
		switch {
		case !state.Checked:
			resp.Community = "unknown"
		case state.Available:
			resp.Community = "available"
		default:
			resp.Community = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// NewHandler builds the full router with request id, logging and recovery middleware.
func NewHandler(opts APIOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	router := NewBasicRouter()
	router.Use(Recover(logger), RequestID(), Logging(logger))
	router.Handler(NewAPI(opts))
	return router
}
