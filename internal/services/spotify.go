// Spotify Web API metadata client
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// tokenRefreshMargin is how long before expiry a cached token is replaced.
	tokenRefreshMargin = 60 * time.Second
)

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	URI          string            `json:"uri"`
	Artists      []SpotifyArtist   `json:"artists"`
	DurationMS   int               `json:"duration_ms"`
	ExternalURLs map[string]string `json:"external_urls"`
}

// ArtistName returns the primary artist's name.
func (t SpotifyTrack) ArtistName() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// Descriptor is the "title artist" search text for t.
func (t SpotifyTrack) Descriptor() string {
	return shared.TrackDescriptor(t.Name, t.ArtistName())
}

// MetadataRecord converts t into a cache record stamped with now.
func (t SpotifyTrack) MetadataRecord(now time.Time) models.MetadataRecord {
	return models.MetadataRecord{
		ID:         t.ID,
		Type:       t.Type,
		URI:        t.URI,
		TrackName:  t.Name,
		ArtistName: t.ArtistName(),
		SongURL:    t.ExternalURLs["spotify"],
		TrackInfo:  t.Descriptor(),
		Timestamps: models.Stamp(now),
	}
}

// SpotifyCategory is a browse category.
type SpotifyCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyPlaylist is a simplified playlist object as returned by browse endpoints.
type SpotifyPlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// page is the generic Spotify paging object.
type page[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

type playlistItem struct {
	Track *SpotifyTrack `json:"track"`
}

// SpotifyOptions configures a [SpotifyClient].
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	// BaseURL and TokenURL default to the public Spotify endpoints.
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// SpotifyClient reads track metadata using the client-credentials flow.
type SpotifyClient struct {
	baseURL    string
	credential *clientcredentials.Config
	httpClient *http.Client
	logger     *log.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewSpotifyClient creates a client. Missing credentials are a configuration error.
func NewSpotifyClient(opts SpotifyOptions) (*SpotifyClient, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, shared.NewUserError(shared.ErrMissingCredentials,
			"Spotify client credentials are not set.",
			"Set credentials.spotify.client_id and client_secret, or SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET.")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	client := defaultClient(opts.HTTPClient)

	cfg := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	return &SpotifyClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		credential: cfg,
		httpClient: client,
		logger:     defaultLogger(opts.Logger, "spotify"),
	}, nil
}

func (s *SpotifyClient) Name() string {
	return "Spotify"
}

func authMisconfigured(detail string) error {
	return shared.NewUserError(
		fmt.Errorf("%w: %s", shared.ErrAuthMisconfigured, detail),
		"The Spotify client ID or client secret has not been set properly.",
		"Check credentials.spotify in the config file.",
	)
}

// accessToken returns the cached token, fetching a new one with ctx when it is missing or
// within tokenRefreshMargin of expiry.
func (s *SpotifyClient) accessToken(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && s.token.AccessToken != "" &&
		(s.token.Expiry.IsZero() || time.Until(s.token.Expiry) > tokenRefreshMargin) {
		return s.token, nil
	}

	token, err := s.credential.Token(context.WithValue(ctx, oauth2.HTTPClient, s.httpClient))
	if err != nil {
		return nil, err
	}
	s.token = token
	return token, nil
}

// getJSON performs an authenticated GET against rawURL and decodes the body into out.
func (s *SpotifyClient) getJSON(ctx context.Context, rawURL string, out any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			(retrieveErr.Response.StatusCode == http.StatusBadRequest || retrieveErr.Response.StatusCode == http.StatusUnauthorized) {
			return authMisconfigured("token request rejected")
		}
		return fmt.Errorf("failed to obtain spotify token: %w", shared.ClassifyNetworkError(err))
	}

	header := http.Header{}
	header.Set("Authorization", token.Type()+" "+token.AccessToken)

	resp, err := get(ctx, s.httpClient, rawURL, header)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return authMisconfigured("api returned 401")
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: spotify rate limited (retry after %s)", shared.ErrTransientNetwork, resp.Header.Get("Retry-After"))
	case !resp.ok():
		return fmt.Errorf("%w: spotify status %d for %s", shared.ErrAPIRequest, resp.StatusCode, rawURL)
	}
	return decode(resp.Body, out)
}

// Pages lazily yields the tracks behind a track, album or playlist ID one page at a time,
// following the next links until they run out. Iteration stops after the first error.
func (s *SpotifyClient) Pages(ctx context.Context, kind, id string) iter.Seq2[[]SpotifyTrack, error] {
	return func(yield func([]SpotifyTrack, error) bool) {
		escaped := url.PathEscape(id)
		switch kind {
		case models.KindTrack:
			var track SpotifyTrack
			if err := s.getJSON(ctx, s.baseURL+"/tracks/"+escaped, &track); err != nil {
				yield(nil, err)
				return
			}
			yield([]SpotifyTrack{track}, nil)

		case models.KindAlbum:
			next := s.baseURL + "/albums/" + escaped + "/tracks?limit=50"
			for next != "" {
				var p page[SpotifyTrack]
				if err := s.getJSON(ctx, next, &p); err != nil {
					yield(nil, err)
					return
				}
				if !yield(p.Items, nil) {
					return
				}
				next = nextLink(p.Next)
			}

		case models.KindPlaylist:
			next := s.baseURL + "/playlists/" + escaped + "/tracks?limit=100"
			for next != "" {
				var p page[playlistItem]
				if err := s.getJSON(ctx, next, &p); err != nil {
					yield(nil, err)
					return
				}
				tracks := make([]SpotifyTrack, 0, len(p.Items))
				for _, item := range p.Items {
					if item.Track != nil && item.Track.Name != "" {
						tracks = append(tracks, *item.Track)
					}
				}
				if !yield(tracks, nil) {
					return
				}
				next = nextLink(p.Next)
			}

		default:
			yield(nil, fmt.Errorf("%w: unsupported spotify kind %q", shared.ErrInvalidArgument, kind))
		}
	}
}

func nextLink(next *string) string {
	if next == nil {
		return ""
	}
	return *next
}

// FetchTracks collects every page of [SpotifyClient.Pages]. onPage, if set, is called with the running count.
func (s *SpotifyClient) FetchTracks(ctx context.Context, kind, id string, onPage func(fetched int)) ([]SpotifyTrack, error) {
	var tracks []SpotifyTrack
	for batch, err := range s.Pages(ctx, kind, id) {
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, batch...)
		if onPage != nil {
			onPage(len(tracks))
		}
	}
	s.logger.Debug("fetched tracks", "kind", kind, "id", id, "count", len(tracks))
	return tracks, nil
}

// Categories lists the browse categories.
func (s *SpotifyClient) Categories(ctx context.Context) ([]SpotifyCategory, error) {
	var out []SpotifyCategory
	next := s.baseURL + "/browse/categories?limit=50"
	for next != "" {
		var body struct {
			Categories page[SpotifyCategory] `json:"categories"`
		}
		if err := s.getJSON(ctx, next, &body); err != nil {
			return nil, err
		}
		out = append(out, body.Categories.Items...)
		next = nextLink(body.Categories.Next)
	}
	return out, nil
}

// CategoryPlaylists lists the playlists of a browse category.
func (s *SpotifyClient) CategoryPlaylists(ctx context.Context, category string) ([]SpotifyPlaylist, error) {
	var out []SpotifyPlaylist
	next := s.baseURL + "/browse/categories/" + url.PathEscape(category) + "/playlists?limit=50"
	for next != "" {
		var body struct {
			Playlists page[*SpotifyPlaylist] `json:"playlists"`
		}
		if err := s.getJSON(ctx, next, &body); err != nil {
			return nil, err
		}
		for _, p := range body.Playlists.Items {
			if p != nil {
				out = append(out, *p)
			}
		}
		next = nextLink(body.Playlists.Next)
	}
	return out, nil
}
