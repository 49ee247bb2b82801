package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/audiocache/internal/shared"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestYouTubeClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Search returns the first video", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if r.URL.Path != "/search" || q.Get("q") != "Song Artist" || q.Get("key") != "k" || q.Get("type") != "video" {
				t.Errorf("unexpected request %s", r.URL)
			}
			io.WriteString(w, `{"items":[{"id":{"kind":"youtube#video","videoId":"dQw4w9WgXcQ"}}]}`)
		}))
		defer server.Close()

		client := NewYouTubeClient(YouTubeOptions{APIKey: "k", BaseURL: server.URL})
		got, err := client.Search(ctx, "Song Artist")
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
			t.Errorf("unexpected url %q", got)
		}
	})

	t.Run("not found yields empty", func(t *testing.T) {
		for _, code := range []int{http.StatusBadRequest, http.StatusNotFound} {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))

			client := NewYouTubeClient(YouTubeOptions{APIKey: "k", BaseURL: server.URL})
			got, err := client.Search(ctx, "nothing")
			if err != nil || got != "" {
				t.Errorf("status %d: expected (\"\", nil), got (%q, %v)", code, got, err)
			}
			server.Close()
		}
	})

	t.Run("no items yields empty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"items":[]}`)
		}))
		defer server.Close()

		got, err := NewYouTubeClient(YouTubeOptions{APIKey: "k", BaseURL: server.URL}).Search(ctx, "nothing")
		if err != nil || got != "" {
			t.Errorf("expected (\"\", nil), got (%q, %v)", got, err)
		}
	})

	t.Run("quota exceeded propagates and sticks", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`)
		}))
		defer server.Close()

		client := NewYouTubeClient(YouTubeOptions{APIKey: "k", BaseURL: server.URL})
		for range 3 {
			_, err := client.Search(ctx, "song")
			if !errors.Is(err, shared.ErrQuotaExceeded) || !shared.IsUserFacing(err) {
				t.Fatalf("expected ErrQuotaExceeded, got %v", err)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("expected later searches to fail fast, got %d calls", calls.Load())
		}
		if !client.QuotaExhausted() {
			t.Error("expected QuotaExhausted to report true")
		}
	})

	t.Run("403 without quota reason is an auth problem", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":{"code":403,"message":"forbidden","errors":[{"reason":"forbidden"}]}}`)
		}))
		defer server.Close()

		client := NewYouTubeClient(YouTubeOptions{APIKey: "k", BaseURL: server.URL})
		if _, err := client.Search(ctx, "song"); !errors.Is(err, shared.ErrAuthMisconfigured) {
			t.Errorf("expected ErrAuthMisconfigured, got %v", err)
		}
		if client.QuotaExhausted() {
			t.Error("auth failure must not mark quota exhausted")
		}
	})

	t.Run("missing key is a configuration error", func(t *testing.T) {
		_, err := NewYouTubeClient(YouTubeOptions{}).Search(ctx, "song")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("cancelled context is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := NewYouTubeClient(YouTubeOptions{APIKey: "k", BaseURL: server.URL}).Search(tctx, "song")
		if !errors.Is(err, shared.ErrTransientNetwork) {
			t.Errorf("expected ErrTransientNetwork, got %v", err)
		}
	})
}
