package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func sampleResult(title string) models.LoadResult {
	return models.LoadResult{
		LoadType:     models.SearchResult,
		PlaylistInfo: models.PlaylistInfo{SelectedTrack: -1},
		Tracks: []models.Track{{
			Encoded: "enc-" + title,
			Info:    models.TrackInfo{Identifier: title, Title: title, Author: "Artist", LengthMS: 1000, URI: "https://www.youtube.com/watch?v=" + title},
		}},
	}
}

func TestLoadRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLoadRepository(db)
		rec := models.LoadRecord{Query: "ytsearch:song", Result: sampleResult("a"), Timestamps: models.Timestamps{LastUpdated: 100, LastFetched: 100}}
		if err := repo.Upsert(ctx, []models.LoadRecord{rec}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		got, err := repo.Get(ctx, "ytsearch:song", 0)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.Result.Tracks[0].Encoded != "enc-a" || got.LastUpdated != 100 {
			t.Errorf("unexpected record %+v", got)
		}
	})

	t.Run("Upsert replaces existing row", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLoadRepository(db)
		first := models.LoadRecord{Query: "q", Result: sampleResult("a"), Timestamps: models.Timestamps{LastUpdated: 1, LastFetched: 1}}
		second := models.LoadRecord{Query: "q", Result: sampleResult("b"), Timestamps: models.Timestamps{LastUpdated: 2, LastFetched: 2}}
		if err := repo.Upsert(ctx, []models.LoadRecord{first}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if err := repo.Upsert(ctx, []models.LoadRecord{second}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		got, err := repo.Get(ctx, "q", 0)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.Result.Tracks[0].Encoded != "enc-b" || got.LastUpdated != 2 {
			t.Errorf("expected last write to win, got %+v", got)
		}

		n, err := repo.Count(ctx)
		if err != nil || n != 1 {
			t.Errorf("expected a single row, got %d (%v)", n, err)
		}
	})

	t.Run("Get respects minUpdated", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLoadRepository(db)
		rec := models.LoadRecord{Query: "old", Result: sampleResult("a"), Timestamps: models.Timestamps{LastUpdated: 10, LastFetched: 10}}
		if err := repo.Upsert(ctx, []models.LoadRecord{rec}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if _, err := repo.Get(ctx, "old", 11); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Touch", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLoadRepository(db)
		rec := models.LoadRecord{Query: "q", Result: sampleResult("a"), Timestamps: models.Timestamps{LastUpdated: 10, LastFetched: 10}}
		if err := repo.Upsert(ctx, []models.LoadRecord{rec}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if err := repo.Touch(ctx, "q", 50); err != nil {
			t.Fatalf("failed to touch: %v", err)
		}
		got, _ := repo.Get(ctx, "q", 0)
		if got.LastFetched != 50 || got.LastUpdated != 10 {
			t.Errorf("expected only last_fetched bumped, got %+v", got.Timestamps)
		}

		if err := repo.Touch(ctx, "missing", 50); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("All skips corrupt rows", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewLoadRepository(db)
		rec := models.LoadRecord{Query: "good", Result: sampleResult("a"), Timestamps: models.Timestamps{LastUpdated: 1, LastFetched: 1}}
		if err := repo.Upsert(ctx, []models.LoadRecord{rec}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if _, err := db.Exec(`INSERT INTO load (query, data, last_updated, last_fetched) VALUES ('bad', '{not json', 1, 1)`); err != nil {
			t.Fatalf("failed to insert corrupt row: %v", err)
		}

		records, corrupt, err := repo.All(ctx)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(records) != 1 || corrupt != 1 {
			t.Errorf("expected 1 record and 1 corrupt row, got %d and %d", len(records), corrupt)
		}
	})
}

func TestURLAndMetadataRepositories(t *testing.T) {
	ctx := context.Background()

	t.Run("URL Upsert and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewURLRepository(db)
		rec := models.URLRecord{TrackInfo: "Song Artist", URL: "https://www.youtube.com/watch?v=abc", Timestamps: models.Timestamps{LastUpdated: 5, LastFetched: 5}}
		if err := repo.Upsert(ctx, []models.URLRecord{rec}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		got, err := repo.Get(ctx, "Song Artist", 0)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got != rec {
			t.Errorf("expected %+v, got %+v", rec, got)
		}
	})

	t.Run("Metadata Get NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if _, err := NewMetadataRepository(db).Get(ctx, "spotify:track:none", 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

type ageSettings struct {
	age, refresh int
}

func (s ageSettings) CacheAgeDays() int { return s.age }
func (s ageSettings) RefreshDays() int  { return s.refresh }

func newTestStore(t *testing.T, now time.Time) (*CacheStore, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	store := NewCacheStore(db, ageSettings{age: 365, refresh: 7}, nil)
	store.SetClock(func() time.Time { return now })
	return store, db
}

func TestCacheStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	insertLoad := func(t *testing.T, store *CacheStore, query string, updated time.Time) {
		t.Helper()
		rec := models.LoadRecord{Query: query, Result: sampleResult("a"), Timestamps: models.Stamp(updated)}
		if err := store.Insert(ctx, models.TableLoad, []models.Record{rec}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}

	t.Run("FetchLoad", func(t *testing.T) {
		tc := []struct {
			name        string
			updated     time.Time
			wantRecord  bool
			wantRefresh bool
		}{
			{"fresh record is a hit", now.Add(-time.Hour), true, false},
			{"record past refresh window needs refresh", now.Add(-8 * day), true, true},
			{"record past max age is a miss", now.Add(-400 * day), false, true},
			{"future timestamp needs refresh", now.Add(time.Hour), true, true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				store, db := newTestStore(t, now)
				defer db.Close()

				insertLoad(t, store, "ytsearch:q", tt.updated)
				rec, refresh := store.FetchLoad(ctx, "ytsearch:q")
				if (rec != nil) != tt.wantRecord {
					t.Errorf("record present = %v, want %v", rec != nil, tt.wantRecord)
				}
				if refresh != tt.wantRefresh {
					t.Errorf("needsRefresh = %v, want %v", refresh, tt.wantRefresh)
				}
			})
		}
	})

	t.Run("miss needs refresh", func(t *testing.T) {
		store, db := newTestStore(t, now)
		defer db.Close()

		rec, refresh := store.FetchLoad(ctx, "ytsearch:nothing")
		if rec != nil || !refresh {
			t.Errorf("expected (nil, true), got (%v, %v)", rec, refresh)
		}
	})

	t.Run("corrupt data is a miss", func(t *testing.T) {
		store, db := newTestStore(t, now)
		defer db.Close()

		if _, err := db.Exec(`INSERT INTO load (query, data, last_updated, last_fetched) VALUES ('q', '{"tracks": 1}', ?, ?)`, now.Unix(), now.Unix()); err != nil {
			t.Fatalf("failed to insert corrupt row: %v", err)
		}
		rec, refresh := store.FetchLoad(ctx, "q")
		if rec != nil || !refresh {
			t.Errorf("expected (nil, true), got (%v, %v)", rec, refresh)
		}
	})

	t.Run("storage error is a miss", func(t *testing.T) {
		store, db := newTestStore(t, now)
		db.Close()

		rec, refresh := store.FetchOne(ctx, models.TableURL, "anything")
		if rec != nil || !refresh {
			t.Errorf("expected (nil, true), got (%v, %v)", rec, refresh)
		}
		if err := store.Update(ctx, models.TableURL, "anything"); !errors.Is(err, shared.ErrStorage) {
			t.Errorf("expected ErrStorage from write on closed database, got %v", err)
		}
	})

	t.Run("metadata round trip", func(t *testing.T) {
		store, db := newTestStore(t, now)
		defer db.Close()

		rec := models.MetadataRecord{
			ID:         "4uLU6hMCjMI75M1A2tKUQC",
			Type:       "track",
			URI:        "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			TrackName:  "Never Gonna Give You Up",
			ArtistName: "Rick Astley",
			SongURL:    "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			TrackInfo:  "Never Gonna Give You Up Rick Astley",
			Timestamps: models.Stamp(now.Add(-time.Minute)),
		}
		if err := store.Insert(ctx, models.TableMetadata, []models.Record{rec}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		got, refresh := store.FetchOne(ctx, models.TableMetadata, rec.URI)
		if got == nil || refresh {
			t.Fatalf("expected a fresh hit, got (%v, %v)", got, refresh)
		}
		meta := got.(models.MetadataRecord)
		meta.Timestamps = rec.Timestamps
		if meta != rec {
			t.Errorf("round trip mismatch:\n got %+v\nwant %+v", meta, rec)
		}
	})

	t.Run("Insert rejects records of another table", func(t *testing.T) {
		store, db := newTestStore(t, now)
		defer db.Close()

		err := store.Insert(ctx, models.TableLoad, []models.Record{models.URLRecord{TrackInfo: "a", URL: "b"}})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if !errors.Is(err, shared.ErrStorage) {
			t.Errorf("expected ErrStorage in the chain, got %v", err)
		}
	})

	t.Run("Update bumps last_fetched", func(t *testing.T) {
		store, db := newTestStore(t, now.Add(-time.Hour))
		defer db.Close()

		insertLoad(t, store, "q", now.Add(-time.Hour))
		store.SetClock(func() time.Time { return now })
		if err := store.Update(ctx, models.TableLoad, "q"); err != nil {
			t.Fatalf("failed to update: %v", err)
		}
		rec, _ := store.FetchLoad(ctx, "q")
		if rec == nil || rec.LastFetched != now.Unix() {
			t.Errorf("expected last_fetched %d, got %+v", now.Unix(), rec)
		}
	})

	t.Run("FetchRandom", func(t *testing.T) {
		store, db := newTestStore(t, now)
		defer db.Close()

		filter := RandomFilter{PlayedWithin: 7 * day, MaxAge: 365 * day}
		if _, err := store.FetchRandom(ctx, models.TableLoad, filter); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on empty table, got %v", err)
		}

		insertLoad(t, store, "stale-play", now.Add(-30*day))
		if _, err := store.FetchRandom(ctx, models.TableLoad, filter); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected record played a month ago to be filtered, got %v", err)
		}

		insertLoad(t, store, "recent", now.Add(-day))
		rec, err := store.FetchRandom(ctx, models.TableLoad, filter)
		if err != nil {
			t.Fatalf("FetchRandom failed: %v", err)
		}
		if rec.Key() != "recent" {
			t.Errorf("expected the recent record, got %q", rec.Key())
		}
	})

	t.Run("FetchAllForContribution and Stats", func(t *testing.T) {
		store, db := newTestStore(t, now)
		defer db.Close()

		insertLoad(t, store, "a", now)
		insertLoad(t, store, "b", now)
		if err := store.Insert(ctx, models.TableURL, []models.Record{models.URLRecord{TrackInfo: "x", URL: "https://youtu.be/x", Timestamps: models.Stamp(now)}}); err != nil {
			t.Fatalf("failed to insert url: %v", err)
		}

		records, err := store.FetchAllForContribution(ctx)
		if err != nil {
			t.Fatalf("FetchAllForContribution failed: %v", err)
		}
		if len(records) != 2 || records[0].Query != "a" {
			t.Errorf("unexpected records %+v", records)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats[models.TableLoad] != 2 || stats[models.TableURL] != 1 || stats[models.TableMetadata] != 0 {
			t.Errorf("unexpected stats %v", stats)
		}
	})
}
