// package testing contains shared testing utilities
package testing

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
	Calls    int
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	m.Calls++
	return m.response, m.err
}

// Track builds a playable track whose identifier, title and URI derive from id.
func Track(id, title, author string) models.Track {
	return models.Track{
		Encoded: "QAAA" + id,
		Info: models.TrackInfo{
			Identifier: id,
			Title:      title,
			Author:     author,
			LengthMS:   212000,
			URI:        "https://www.youtube.com/watch?v=" + id,
			SourceName: "youtube",
			IsSeekable: true,
		},
	}
}

// LoadResult builds a result with n tracks: TRACK_LOADED for one, PLAYLIST_LOADED otherwise.
func LoadResult(n int) models.LoadResult {
	tracks := make([]models.Track, n)
	for i := range n {
		tracks[i] = Track(fmt.Sprintf("vid%08d", i), fmt.Sprintf("Song %d", i), "Artist")
	}
	loadType := models.PlaylistLoaded
	if n == 1 {
		loadType = models.TrackLoaded
	}
	return models.LoadResult{LoadType: loadType, PlaylistInfo: models.PlaylistInfo{SelectedTrack: -1}, Tracks: tracks}
}

// MustOpenCache opens a migrated sqlite database in a temp dir and closes it with the test.
func MustOpenCache(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.OpenCacheDatabase(shared.DatabaseConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
