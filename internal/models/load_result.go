package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/audiocache/internal/shared"
)

// LoadType is the outcome category of a load.
type LoadType string

const (
	TrackLoaded    LoadType = "TRACK_LOADED"
	PlaylistLoaded LoadType = "PLAYLIST_LOADED"
	SearchResult   LoadType = "SEARCH_RESULT"
	NoMatches      LoadType = "NO_MATCHES"
	LoadFailed     LoadType = "LOAD_FAILED"
	CompatSearch   LoadType = "V2_COMPAT"
)

// Known reports whether t is one of the defined load types.
func (t LoadType) Known() bool {
	switch t {
	case TrackLoaded, PlaylistLoaded, SearchResult, NoMatches, LoadFailed, CompatSearch:
		return true
	}
	return false
}

// Playable reports whether t carries tracks.
func (t LoadType) Playable() bool {
	switch t {
	case TrackLoaded, PlaylistLoaded, SearchResult, CompatSearch:
		return true
	}
	return false
}

// TrackInfo is the descriptive part of a [Track].
type TrackInfo struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	LengthMS   int64  `json:"length"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	SourceName string `json:"sourceName,omitempty"`
	IsStream   bool   `json:"isStream"`
	IsSeekable bool   `json:"isSeekable"`
}

// Track is a playable track as returned by a load node.
type Track struct {
	Encoded string    `json:"track"`
	Info    TrackInfo `json:"info"`
}

// Descriptor is the free-text "title author" form used for keyword policy checks and searches.
func (t Track) Descriptor() string {
	return shared.TrackDescriptor(t.Info.Title, t.Info.Author)
}

type PlaylistInfo struct {
	Name          string `json:"name,omitempty"`
	SelectedTrack int    `json:"selectedTrack"`
}

// LoadException describes why a load failed.
type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// LoadResult is the canonical outcome of resolving a query.
type LoadResult struct {
	LoadType     LoadType       `json:"loadType"`
	PlaylistInfo PlaylistInfo   `json:"playlistInfo"`
	Tracks       []Track        `json:"tracks"`
	Exception    *LoadException `json:"exception,omitempty"`
	Failed       bool           `json:"error,omitempty"`
}

// HasError reports whether the result carries the error flag or an exception.
func (r LoadResult) HasError() bool {
	return r.Failed || r.Exception != nil || r.LoadType == LoadFailed
}

// IsHit reports whether r is a structurally valid playable result.
func (r LoadResult) IsHit() bool {
	return r.LoadType.Playable() && !r.HasError()
}

// Cacheable reports whether r may be persisted or contributed.
func (r LoadResult) Cacheable() bool {
	return !r.HasError() && r.LoadType.Playable() && len(r.Tracks) > 0
}

// First returns the first track, if any.
func (r LoadResult) First() (Track, bool) {
	if len(r.Tracks) == 0 {
		return Track{}, false
	}
	return r.Tracks[0], true
}

// Empty returns the neutral NO_MATCHES result.
func Empty() LoadResult {
	return LoadResult{LoadType: NoMatches, PlaylistInfo: PlaylistInfo{SelectedTrack: -1}, Tracks: []Track{}}
}

// Failure returns a LOAD_FAILED result carrying message.
func Failure(message string) LoadResult {
	r := LoadResult{LoadType: LoadFailed, PlaylistInfo: PlaylistInfo{SelectedTrack: -1}, Tracks: []Track{}, Failed: true}
	if message != "" {
		r.Exception = &LoadException{Message: message, Severity: "COMMON"}
	}
	return r
}

// ParseLoadResult decodes data into a LoadResult.
//
// The payload must carry a known loadType and a tracks array. Anything else is
// reported as [shared.ErrMalformedResponse].
func ParseLoadResult(data []byte) (LoadResult, error) {
	var probe struct {
		LoadType *LoadType       `json:"loadType"`
		Tracks   json.RawMessage `json:"tracks"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return LoadResult{}, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}
	if probe.LoadType == nil || !probe.LoadType.Known() {
		return LoadResult{}, fmt.Errorf("%w: missing or unknown loadType", shared.ErrMalformedResponse)
	}
	if len(probe.Tracks) == 0 || bytes.Equal(probe.Tracks, []byte("null")) {
		return LoadResult{}, fmt.Errorf("%w: missing tracks", shared.ErrMalformedResponse)
	}

	var r LoadResult
	if err := json.Unmarshal(data, &r); err != nil {
		return LoadResult{}, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}
	if r.Tracks == nil {
		r.Tracks = []Track{}
	}
	return r, nil
}

// Marshal serializes r for storage or contribution.
func (r LoadResult) Marshal() ([]byte, error) {
	if r.Tracks == nil {
		r.Tracks = []Track{}
	}
	return json.Marshal(r)
}
