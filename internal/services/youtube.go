// YouTube Data API v3 search client
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/shared"
	"golang.org/x/time/rate"
)

const youtubeBaseURL = "https://youtube.googleapis.com/youtube/v3"

// quotaReasons are the error reasons YouTube uses for exhausted quota or rate limits.
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type youtubeErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// YouTubeOptions configures a [YouTubeClient].
type YouTubeOptions struct {
	APIKey  string
	BaseURL string
	// QuotaPerSecond meters outgoing searches. Zero means 5 per second.
	QuotaPerSecond float64
	HTTPClient     *http.Client
	Logger         *log.Logger
}

// YouTubeClient turns free-text into the URL of the first matching video.
//
// Once the API reports exhausted quota every later call fails fast for the rest of the session.
type YouTubeClient struct {
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *log.Logger
	exhausted  atomic.Bool
}

// NewYouTubeClient creates a search client. The API key is checked on first use.
func NewYouTubeClient(opts YouTubeOptions) *YouTubeClient {
	if opts.BaseURL == "" {
		opts.BaseURL = youtubeBaseURL
	}
	if opts.QuotaPerSecond <= 0 {
		opts.QuotaPerSecond = 5
	}
	return &YouTubeClient{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(opts.QuotaPerSecond), 1),
		httpClient: defaultClient(opts.HTTPClient),
		logger:     defaultLogger(opts.Logger, "youtube"),
	}
}

func (y *YouTubeClient) Name() string {
	return "YouTube"
}

// QuotaExhausted reports whether a quota error has been seen this session.
func (y *YouTubeClient) QuotaExhausted() bool {
	return y.exhausted.Load()
}

func quotaExceeded() error {
	return shared.NewUserError(shared.ErrQuotaExceeded,
		"The YouTube API quota has been exceeded.",
		"Searches resume when the daily quota resets; raise the quota or use another API key.")
}

// Search returns the watch URL of the first video matching query, or "" when nothing matches.
func (y *YouTubeClient) Search(ctx context.Context, query string) (string, error) {
	if y.apiKey == "" {
		return "", shared.NewUserError(shared.ErrMissingCredentials,
			"The YouTube API key is not set.",
			"Set credentials.youtube.api_key or YOUTUBE_API_KEY.")
	}
	if y.exhausted.Load() {
		return "", quotaExceeded()
	}
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("search rate limiter: %w", shared.ClassifyNetworkError(err))
	}

	params := url.Values{
		"q":          {query},
		"part":       {"id"},
		"key":        {y.apiKey},
		"maxResults": {"1"},
		"type":       {"video"},
	}
	resp, err := get(ctx, y.httpClient, y.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		y.logger.Debug("search found nothing", "query", query, "status", resp.StatusCode)
		return "", nil
	case http.StatusForbidden, http.StatusTooManyRequests:
		return "", y.classifyRejection(resp)
	default:
		return "", fmt.Errorf("%w: youtube status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var body youtubeSearchResponse
	if err := decode(resp.Body, &body); err != nil {
		return "", err
	}
	for _, item := range body.Items {
		if item.ID.VideoID != "" {
			return "https://www.youtube.com/watch?v=" + item.ID.VideoID, nil
		}
	}
	return "", nil
}

func (y *YouTubeClient) classifyRejection(resp *response) error {
	var body youtubeErrorResponse
	_ = decode(resp.Body, &body)

	quota := resp.StatusCode == http.StatusTooManyRequests
	for _, e := range body.Error.Errors {
		if quotaReasons[e.Reason] {
			quota = true
		}
	}

	if quota {
		y.exhausted.Store(true)
		y.logger.Warn("youtube quota exhausted, disabling searches for this session", "message", body.Error.Message)
		return quotaExceeded()
	}

	return shared.NewUserError(
		fmt.Errorf("%w: youtube rejected the api key: %s", shared.ErrAuthMisconfigured, body.Error.Message),
		"The YouTube API key was rejected.",
		"Check credentials.youtube.api_key and that the YouTube Data API is enabled for it.")
}
