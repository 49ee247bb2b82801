package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/audiocache/internal/shared"
)

type spotifyFixture struct {
	server        *httptest.Server
	tokenRequests atomic.Int32
	apiRequests   atomic.Int32
	expiresIn     int
	routes        map[string]string
	status        map[string]int
	// hangToken holds token requests until the client goes away.
	hangToken bool
}

func newSpotifyFixture(t *testing.T) *spotifyFixture {
	t.Helper()
	f := &spotifyFixture{expiresIn: 3600, routes: map[string]string{}, status: map[string]int{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			f.tokenRequests.Add(1)
			if f.hangToken {
				<-r.Context().Done()
				return
			}
			if code := f.status["/token"]; code != 0 {
				w.WriteHeader(code)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":%d}`, f.tokenRequests.Load(), f.expiresIn)
			return
		}

		f.apiRequests.Add(1)
		if r.Header.Get("Authorization") == "" {
			t.Errorf("missing bearer token on %s", r.URL.Path)
		}
		key := r.URL.Path
		if offset := r.URL.Query().Get("offset"); offset != "" {
			key += "?offset=" + offset
		}
		if code := f.status[key]; code != 0 {
			w.WriteHeader(code)
			return
		}
		body, ok := f.routes[key]
		if !ok {
			t.Errorf("unexpected request %s", key)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *spotifyFixture) client(t *testing.T) *SpotifyClient {
	t.Helper()
	client, err := NewSpotifyClient(SpotifyOptions{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      f.server.URL,
		TokenURL:     f.server.URL + "/token",
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func spotifyTrackJSON(id, name, artist string) string {
	return fmt.Sprintf(`{"id":%q,"name":%q,"type":"track","uri":"spotify:track:%s","artists":[{"name":%q}],"external_urls":{"spotify":"https://open.spotify.com/track/%s"}}`,
		id, name, id, artist, id)
}

func TestSpotifyClient(t *testing.T) {
	ctx := context.Background()

	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewSpotifyClient(SpotifyOptions{ClientID: "id"})
		if !errors.Is(err, shared.ErrMissingCredentials) || !shared.IsUserFacing(err) {
			t.Errorf("expected user-facing ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("single track", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.routes["/tracks/t1"] = spotifyTrackJSON("t1", "Song", "Artist")

		tracks, err := f.client(t).FetchTracks(ctx, "track", "t1", nil)
		if err != nil {
			t.Fatalf("FetchTracks failed: %v", err)
		}
		if len(tracks) != 1 || tracks[0].Descriptor() != "Song Artist" {
			t.Errorf("unexpected tracks %+v", tracks)
		}

		rec := tracks[0].MetadataRecord(fixedNow)
		if rec.URI != "spotify:track:t1" || rec.SongURL != "https://open.spotify.com/track/t1" || rec.TrackInfo != "Song Artist" {
			t.Errorf("unexpected metadata record %+v", rec)
		}
	})

	t.Run("playlist pagination follows next links and skips null tracks", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.routes["/playlists/p1/tracks"] = fmt.Sprintf(`{"total":3,"items":[{"track":%s},{"track":null}],"next":"%s/playlists/p1/tracks?offset=2"}`,
			spotifyTrackJSON("a", "A", "X"), f.server.URL)
		f.routes["/playlists/p1/tracks?offset=2"] = fmt.Sprintf(`{"total":3,"items":[{"track":%s},{"track":%s}],"next":null}`,
			spotifyTrackJSON("b", "B", "Y"), spotifyTrackJSON("c", "C", "Z"))

		var progress []int
		tracks, err := f.client(t).FetchTracks(ctx, "playlist", "p1", func(n int) { progress = append(progress, n) })
		if err != nil {
			t.Fatalf("FetchTracks failed: %v", err)
		}
		if len(tracks) != 3 {
			t.Fatalf("expected 3 tracks, got %d", len(tracks))
		}
		if len(progress) != 2 || progress[1] != 3 {
			t.Errorf("unexpected progress %v", progress)
		}
		if f.tokenRequests.Load() != 1 {
			t.Errorf("expected token reuse across pages, got %d token requests", f.tokenRequests.Load())
		}
	})

	t.Run("album pages stop when the consumer stops", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.routes["/albums/al/tracks"] = fmt.Sprintf(`{"total":2,"items":[%s],"next":"%s/albums/al/tracks?offset=1"}`,
			spotifyTrackJSON("a", "A", "X"), f.server.URL)

		for batch, err := range f.client(t).Pages(ctx, "album", "al") {
			if err != nil || len(batch) != 1 {
				t.Fatalf("unexpected page %v (%v)", batch, err)
			}
			break
		}
		if f.apiRequests.Load() != 1 {
			t.Errorf("expected a single page request, got %d", f.apiRequests.Load())
		}
	})

	t.Run("401 is an auth misconfiguration", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.status["/tracks/t1"] = http.StatusUnauthorized

		_, err := f.client(t).FetchTracks(ctx, "track", "t1", nil)
		if !errors.Is(err, shared.ErrAuthMisconfigured) || !shared.IsUserFacing(err) {
			t.Errorf("expected ErrAuthMisconfigured, got %v", err)
		}
	})

	t.Run("rejected token request is an auth misconfiguration", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.status["/token"] = http.StatusUnauthorized

		_, err := f.client(t).FetchTracks(ctx, "track", "t1", nil)
		if !errors.Is(err, shared.ErrAuthMisconfigured) {
			t.Errorf("expected ErrAuthMisconfigured, got %v", err)
		}
	})

	t.Run("token close to expiry is refreshed", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.expiresIn = 30
		f.routes["/tracks/t1"] = spotifyTrackJSON("t1", "Song", "Artist")

		client := f.client(t)
		for range 2 {
			if _, err := client.FetchTracks(ctx, "track", "t1", nil); err != nil {
				t.Fatalf("FetchTracks failed: %v", err)
			}
		}
		if f.tokenRequests.Load() != 2 {
			t.Errorf("expected a new token for each call when lifetime is under a minute, got %d", f.tokenRequests.Load())
		}
	})

	t.Run("token request honours the caller's deadline", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.hangToken = true

		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := f.client(t).FetchTracks(ctx, "track", "t1", nil)
		if err == nil {
			t.Fatal("expected an error from a hung token endpoint")
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("token fetch ignored the deadline, took %v", elapsed)
		}
		if f.apiRequests.Load() != 0 {
			t.Errorf("expected no api request without a token, got %d", f.apiRequests.Load())
		}
	})

	t.Run("unsupported kind", func(t *testing.T) {
		f := newSpotifyFixture(t)
		if _, err := f.client(t).FetchTracks(ctx, "artist", "x", nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.routes["/tracks/t1"] = `{"id": 12`
		if _, err := f.client(t).FetchTracks(ctx, "track", "t1", nil); !errors.Is(err, shared.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("Categories and CategoryPlaylists", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.routes["/browse/categories"] = `{"categories":{"items":[{"id":"pop","name":"Pop"},{"id":"rock","name":"Rock"}],"next":null}}`
		f.routes["/browse/categories/pop/playlists"] = `{"playlists":{"items":[{"id":"p1","name":"Hits","uri":"spotify:playlist:p1","tracks":{"total":50}},null],"next":null}}`

		client := f.client(t)
		categories, err := client.Categories(ctx)
		if err != nil || len(categories) != 2 || categories[0].ID != "pop" {
			t.Fatalf("unexpected categories %+v (%v)", categories, err)
		}
		playlists, err := client.CategoryPlaylists(ctx, "pop")
		if err != nil || len(playlists) != 1 || playlists[0].Tracks.Total != 50 {
			t.Fatalf("unexpected playlists %+v (%v)", playlists, err)
		}
	})
}
