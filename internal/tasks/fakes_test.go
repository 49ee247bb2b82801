package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/repositories"
	"github.com/desertthunder/audiocache/internal/services"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory cache store that counts every read and write.
type memStore struct {
	mu       sync.Mutex
	load     map[string]models.LoadRecord
	urls     map[string]models.URLRecord
	metadata map[string]models.MetadataRecord
	stale    map[string]bool

	reads   int
	inserts int
	updates map[string]int

	insertErr map[models.Table]error
	randomErr error
}

func newMemStore() *memStore {
	return &memStore{
		load:      make(map[string]models.LoadRecord),
		urls:      make(map[string]models.URLRecord),
		metadata:  make(map[string]models.MetadataRecord),
		stale:     make(map[string]bool),
		updates:   make(map[string]int),
		insertErr: make(map[models.Table]error),
	}
}

func (s *memStore) FetchLoad(_ context.Context, query string) (*models.LoadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	rec, ok := s.load[query]
	if !ok {
		return nil, true
	}
	return &rec, s.stale[query]
}

func (s *memStore) FetchURL(_ context.Context, trackInfo string) (*models.URLRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	rec, ok := s.urls[trackInfo]
	if !ok {
		return nil, true
	}
	return &rec, s.stale[trackInfo]
}

func (s *memStore) FetchMetadata(_ context.Context, uri string) (*models.MetadataRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	rec, ok := s.metadata[uri]
	if !ok {
		return nil, true
	}
	return &rec, s.stale[uri]
}

func (s *memStore) FetchRandom(_ context.Context, table models.Table, _ repositories.RandomFilter) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.randomErr != nil {
		return nil, s.randomErr
	}
	if table != models.TableLoad {
		return nil, repositories.ErrNotFound
	}
	for _, rec := range s.load {
		return rec, nil
	}
	return nil, repositories.ErrNotFound
}

func (s *memStore) FetchAllForContribution(context.Context) ([]models.LoadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LoadRecord, 0, len(s.load))
	for _, rec := range s.load {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, table models.Table, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[table]; err != nil {
		return err
	}
	for _, r := range records {
		s.inserts++
		switch r := r.(type) {
		case models.LoadRecord:
			s.load[r.Query] = r
		case models.URLRecord:
			s.urls[r.TrackInfo] = r
		case models.MetadataRecord:
			s.metadata[r.URI] = r
		}
	}
	return nil
}

func (s *memStore) Update(_ context.Context, table models.Table, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[string(table)+":"+key]++
	return nil
}

func (s *memStore) touched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.reads + s.inserts
	for _, c := range s.updates {
		n += c
	}
	return n
}

// fakeLoader returns a single-track result for every identifier unless configured otherwise.
type fakeLoader struct {
	mu      sync.Mutex
	results map[string]models.LoadResult
	errs    map[string]error
	calls   []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{results: make(map[string]models.LoadResult), errs: make(map[string]error)}
}

func (l *fakeLoader) LoadTracks(_ context.Context, identifier string) (models.LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, identifier)
	if err := l.errs[identifier]; err != nil {
		return models.LoadResult{}, err
	}
	if res, ok := l.results[identifier]; ok {
		return res, nil
	}
	return trackResult(identifier), nil
}

func (l *fakeLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func trackResult(identifier string) models.LoadResult {
	return models.LoadResult{
		LoadType: models.TrackLoaded,
		Tracks: []models.Track{{
			Encoded: "enc:" + identifier,
			Info:    models.TrackInfo{Identifier: identifier, Title: identifier, URI: identifier, SourceName: "youtube"},
		}},
	}
}

type fakeCommunity struct {
	mu            sync.Mutex
	track         models.LoadResult
	metadata      map[string]models.LoadResult
	trackCalls    int
	metadataCalls int
	contributed   []string
	contributeErr error
}

func (c *fakeCommunity) LookupTrack(context.Context, models.Query) models.LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackCalls++
	return c.track
}

func (c *fakeCommunity) LookupMetadata(_ context.Context, title, author string) models.LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadataCalls++
	if res, ok := c.metadata[title]; ok {
		return res
	}
	return models.Empty()
}

func (c *fakeCommunity) Contribute(_ context.Context, _ models.LoadResult, q models.Query) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contributeErr != nil {
		return c.contributeErr
	}
	c.contributed = append(c.contributed, q.Canonical)
	return nil
}

type fakeMetadata struct {
	tracks []services.SpotifyTrack
	err    error
	calls  int
}

func (m *fakeMetadata) FetchTracks(_ context.Context, _, _ string, onPage func(int)) ([]services.SpotifyTrack, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if onPage != nil {
		onPage(len(m.tracks))
	}
	return m.tracks, nil
}

// fakeSearch answers with a video url derived from the descriptor unless fn overrides it.
type fakeSearch struct {
	mu    sync.Mutex
	fn    func(n int, descriptor string) (string, error)
	calls int
}

func (s *fakeSearch) Search(_ context.Context, descriptor string) (string, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(n, descriptor)
	}
	return videoURL(n), nil
}

func videoURL(n int) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=vid%08d", n)
}

type fakeConfig struct {
	level     models.CacheLevel
	ageDays   int
	community bool
}

func (c fakeConfig) CacheLevel() int        { return int(c.level) }
func (c fakeConfig) CacheAgeDays() int      { return c.ageDays }
func (c fakeConfig) CommunityEnabled() bool { return c.community }

type recordingNotifier struct {
	mu       sync.Mutex
	steps    []int
	failures []string
}

func (n *recordingNotifier) Notify(current, _ int, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.steps = append(n.steps, current)
}

func (n *recordingNotifier) ReportFailure(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, message)
}

func spotifyTracks(n int) []services.SpotifyTrack {
	tracks := make([]services.SpotifyTrack, n)
	for i := range n {
		tracks[i] = services.SpotifyTrack{
			ID:      fmt.Sprintf("id%d", i),
			Name:    fmt.Sprintf("Song %d", i),
			Type:    "track",
			URI:     fmt.Sprintf("spotify:track:id%d", i),
			Artists: []services.SpotifyArtist{{Name: "Artist"}},
		}
	}
	return tracks
}

type harness struct {
	store     *memStore
	loader    *fakeLoader
	community *fakeCommunity
	metadata  *fakeMetadata
	search    *fakeSearch
	batcher   *Batcher
	engine    *Engine
}

func newHarness(cfg fakeConfig) *harness {
	h := &harness{
		store:     newMemStore(),
		loader:    newFakeLoader(),
		community: &fakeCommunity{track: models.Empty()},
		metadata:  &fakeMetadata{},
		search:    &fakeSearch{},
	}
	h.batcher = NewBatcher(h.store, h.community, nil)
	h.engine = NewEngine(EngineOpts{
		Store:     h.store,
		Batcher:   h.batcher,
		Config:    cfg,
		Loader:    h.loader,
		Community: h.community,
		Metadata:  h.metadata,
		Search:    h.search,
	})
	h.engine.SetClock(func() time.Time { return fixedNow })
	return h
}

var errBoom = errors.New("boom")
