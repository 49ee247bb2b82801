package tasks

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/services"
	"github.com/desertthunder/audiocache/internal/shared"
)

const (
	// maxConsecutiveFailures aborts a batch after this many unresolved tracks in a row.
	maxConsecutiveFailures = 10
	// progressEvery is the track cadence of resolution progress notifications.
	progressEvery = 2
)

const (
	noticeConnectionReset = "The connection was reset while loading the playlist."
	noticeTimeout         = "Load node timeout, skipping remaining tracks."
	noticeFailing         = "Failing to get tracks, skipping remaining."
	noticeNothingFound    = "Nothing found. The YouTube API key may be invalid or you may be rate limited on YouTube's search service."
	noticeUnsupported     = "This doesn't seem to be a supported Spotify URL or code."
	noticeFetchFailed     = "Could not fetch tracks from Spotify, try again later."
)

// MetadataResult is the outcome of expanding a provider URI into playable tracks.
type MetadataResult struct {
	Tracks    []models.Track
	Total     int    // tracks listed by the provider
	Failed    int    // tracks that could not be resolved
	Aborted   bool   // remaining tracks were skipped
	Notice    string // user-facing message, empty on a clean run
	APICalled bool
}

// LoadResult wraps the resolved tracks in a single-track or playlist result.
func (r *MetadataResult) LoadResult() models.LoadResult {
	switch len(r.Tracks) {
	case 0:
		return models.Empty()
	case 1:
		return models.LoadResult{LoadType: models.TrackLoaded, Tracks: r.Tracks}
	default:
		return models.LoadResult{LoadType: models.PlaylistLoaded, Tracks: r.Tracks}
	}
}

// metadataItem is one provider track awaiting a playable match.
type metadataItem struct {
	title      string
	artist     string
	descriptor string
}

// ResolveMetadata expands a provider URI and resolves each listed track to a playable one.
//
// Quota and configuration errors are returned, with the partial result when tracks were
// already being resolved. Transient failures abort the remaining tracks and set a notice,
// as do ten consecutive unresolved tracks.
func (e *Engine) ResolveMetadata(ctx context.Context, req *Request, q models.Query, level models.CacheLevel, notifier ProgressNotifier) (*MetadataResult, error) {
	if !q.IsProviderURI() {
		return nil, fmt.Errorf("%w: %q is not a provider uri", shared.ErrInvalidArgument, q.Raw)
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	result := &MetadataResult{}
	items, err := e.listItems(ctx, req, q, level, notifier, result)
	if err != nil {
		if shared.IsUserFacing(err) {
			return nil, err
		}
		e.logger.Warn("metadata fetch failed", "query", q.Canonical, "err", err)
		result.Aborted = true
		result.Notice = noticeFetchFailed
		notifier.ReportFailure(result.Notice)
		return result, nil
	}

	result.Total = len(items)
	if result.Total == 0 {
		result.Notice = noticeUnsupported
		return result, nil
	}

	consecutive := 0
	for i, item := range items {
		if ctx.Err() != nil {
			result.Aborted = true
			result.Notice = noticeTimeout
			result.Failed += result.Total - i
			break
		}

		track, ok, called, err := e.resolveItem(ctx, req, item, level)
		result.APICalled = result.APICalled || called
		if err != nil {
			if shared.IsUserFacing(err) {
				return result, err
			}
			if notice := abortNotice(err); notice != "" {
				result.Aborted = true
				result.Notice = notice
				result.Failed += result.Total - i
				break
			}
			ok = false
		}

		if ok {
			consecutive = 0
			result.Tracks = append(result.Tracks, track)
		} else {
			consecutive++
			result.Failed++
		}

		if (i+1)%progressEvery == 0 || i+1 == result.Total {
			notifier.Notify(i+1, result.Total, item.descriptor)
		}

		if consecutive >= maxConsecutiveFailures && i+1 < result.Total {
			result.Aborted = true
			result.Notice = noticeFailing
			result.Failed += result.Total - (i + 1)
			break
		}
	}

	if result.Notice == "" && len(result.Tracks) == 0 {
		result.Notice = noticeNothingFound
	}
	if result.Notice != "" {
		notifier.ReportFailure(result.Notice)
	}
	return result, nil
}

// abortNotice maps a transient failure to the notice that ends a batch, or "" to keep going.
func abortNotice(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return noticeConnectionReset
	case errors.Is(err, shared.ErrTransientNetwork), errors.Is(err, context.DeadlineExceeded):
		return noticeTimeout
	default:
		return ""
	}
}

// listItems returns the tracks behind q, consulting the metadata tier for a single track URI.
func (e *Engine) listItems(ctx context.Context, req *Request, q models.Query, level models.CacheLevel, notifier ProgressNotifier, result *MetadataResult) ([]metadataItem, error) {
	if q.IsSingleTrack() && level.Has(models.LevelMetadata) && e.store != nil {
		if rec, needsRefresh := e.store.FetchMetadata(ctx, q.Canonical); rec != nil && !needsRefresh {
			e.enqueue(req, UpdateTask{Table: models.TableMetadata, Key: rec.URI})
			e.logger.Debug("resolved", "tier", "local", "table", models.TableMetadata, "uri", rec.URI)
			return []metadataItem{{title: rec.TrackName, artist: rec.ArtistName, descriptor: rec.TrackInfo}}, nil
		}
	}

	if e.metadata == nil {
		return nil, shared.NewUserError(shared.ErrMissingCredentials,
			"spotify credentials are not configured", "set credentials.spotify.client_id and client_secret")
	}

	var onPage func(int)
	if c, ok := notifier.(ChannelNotifier); ok {
		onPage = c.fetched
	}
	result.APICalled = true
	tracks, err := e.metadata.FetchTracks(ctx, q.Kind, q.ID, onPage)
	if err != nil {
		return nil, err
	}

	items := make([]metadataItem, 0, len(tracks))
	records := make([]models.Record, 0, len(tracks))
	now := e.now()
	for _, t := range tracks {
		items = append(items, itemFromTrack(t))
		if t.URI != "" {
			records = append(records, t.MetadataRecord(now))
		}
	}
	if level.Has(models.LevelMetadata) && len(records) > 0 {
		e.enqueue(req, InsertTask{Table: models.TableMetadata, Records: records})
	}
	return items, nil
}

func itemFromTrack(t services.SpotifyTrack) metadataItem {
	return metadataItem{title: t.Name, artist: t.ArtistName(), descriptor: t.Descriptor()}
}

// resolveItem finds a playable track for item: url tier, then community metadata, then search.
func (e *Engine) resolveItem(ctx context.Context, req *Request, item metadataItem, level models.CacheLevel) (models.Track, bool, bool, error) {
	var url string
	if level.Has(models.LevelURL) && e.store != nil {
		if rec, needsRefresh := e.store.FetchURL(ctx, item.descriptor); rec != nil && !needsRefresh {
			url = rec.URL
			e.enqueue(req, UpdateTask{Table: models.TableURL, Key: rec.TrackInfo})
		}
	}

	askedCommunity := false
	if url == "" && level != models.LevelNone && e.communityEnabled() {
		askedCommunity = true
		res := e.community.LookupMetadata(ctx, item.title, item.artist)
		if res.IsHit() {
			if track, ok := res.First(); ok {
				e.logger.Debug("resolved", "tier", "community", "track", item.descriptor)
				return track, true, false, nil
			}
		}
	}

	called := false
	if url == "" {
		if e.search == nil {
			return models.Track{}, false, false, shared.NewUserError(shared.ErrMissingCredentials,
				"youtube api key is not configured", "set credentials.youtube.api_key")
		}
		called = true
		found, err := e.search.Search(ctx, item.descriptor)
		if err != nil {
			return models.Track{}, false, called, err
		}
		if found == "" {
			return models.Track{}, false, called, nil
		}
		url = found
		if level.Has(models.LevelURL) {
			rec := models.URLRecord{TrackInfo: item.descriptor, URL: url, Timestamps: models.Stamp(e.now())}
			e.enqueue(req, InsertTask{Table: models.TableURL, Records: []models.Record{rec}})
		}
	}

	res, providerCalled, err := e.resolve(ctx, req, models.NormalizeQuery(url), level, false, !askedCommunity)
	called = called || providerCalled
	if err != nil {
		return models.Track{}, false, called, err
	}
	track, ok := res.First()
	return track, ok, called, nil
}
