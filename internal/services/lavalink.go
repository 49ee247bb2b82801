package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/disgoorg/disgolink/v3/lavalink"
)

// LavalinkOptions configures a [LavalinkNode].
type LavalinkOptions struct {
	Address  string
	Password string
	// Timeout bounds each load. Defaults to 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// LavalinkNode loads normalized queries through a Lavalink v4 node's REST API.
type LavalinkNode struct {
	address    string
	password   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
}

func NewLavalinkNode(opts LavalinkOptions) *LavalinkNode {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &LavalinkNode{
		address:    strings.TrimRight(opts.Address, "/"),
		password:   opts.Password,
		timeout:    opts.Timeout,
		httpClient: defaultClient(opts.HTTPClient),
		logger:     defaultLogger(opts.Logger, "lavalink"),
	}
}

func (n *LavalinkNode) Name() string {
	return "Lavalink"
}

// LoadTracks resolves identifier on the node.
//
// Timeouts and resets are reported as [shared.ErrTransientNetwork] and undecodable
// bodies as [shared.ErrMalformedResponse]. A rejected password is a configuration error.
func (n *LavalinkNode) LoadTracks(ctx context.Context, identifier string) (models.LoadResult, error) {
	if n.address == "" {
		return models.LoadResult{}, shared.NewUserError(shared.ErrMissingConfig,
			"No load node is configured.", "Set lavalink.address in the config file.")
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	params := url.Values{"identifier": {identifier}}
	header := http.Header{"Authorization": {n.password}}
	resp, err := get(ctx, n.httpClient, n.address+"/v4/loadtracks?"+params.Encode(), header)
	if err != nil {
		return models.LoadResult{}, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.LoadResult{}, shared.NewUserError(
			fmt.Errorf("%w: load node rejected the password", shared.ErrAuthMisconfigured),
			"The load node rejected its password.", "Check lavalink.password in the config file.")
	case !resp.ok():
		return models.LoadResult{}, fmt.Errorf("%w: load node status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var result lavalink.LoadResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return models.LoadResult{}, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}

	converted := convertLoadResult(result)
	n.logger.Debug("loaded", "identifier", identifier, "load_type", converted.LoadType, "tracks", len(converted.Tracks))
	return converted, nil
}

// convertLoadResult converts a node result into the canonical [models.LoadResult].
func convertLoadResult(result lavalink.LoadResult) models.LoadResult {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return models.LoadResult{
			LoadType:     models.TrackLoaded,
			PlaylistInfo: models.PlaylistInfo{SelectedTrack: -1},
			Tracks:       []models.Track{convertTrack(data)},
		}

	case lavalink.Playlist:
		tracks := make([]models.Track, len(data.Tracks))
		for i, track := range data.Tracks {
			tracks[i] = convertTrack(track)
		}
		return models.LoadResult{
			LoadType:     models.PlaylistLoaded,
			PlaylistInfo: models.PlaylistInfo{Name: data.Info.Name, SelectedTrack: data.Info.SelectedTrack},
			Tracks:       tracks,
		}

	case lavalink.Search:
		tracks := make([]models.Track, len(data))
		for i, track := range data {
			tracks[i] = convertTrack(track)
		}
		return models.LoadResult{
			LoadType:     models.SearchResult,
			PlaylistInfo: models.PlaylistInfo{SelectedTrack: -1},
			Tracks:       tracks,
		}

	case lavalink.Exception:
		return models.Failure(data.Message)

	default:
		return models.Empty()
	}
}

func convertTrack(track lavalink.Track) models.Track {
	info := track.Info
	return models.Track{
		Encoded: track.Encoded,
		Info: models.TrackInfo{
			Identifier: info.Identifier,
			Title:      info.Title,
			Author:     info.Author,
			LengthMS:   int64(info.Length),
			URI:        stringValue(info.URI),
			ArtworkURL: stringValue(info.ArtworkURL),
			SourceName: info.SourceName,
			IsStream:   info.IsStream,
			IsSeekable: !info.IsStream,
		},
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
