package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
)

const day = 24 * time.Hour

// AgeSettings supplies the read-time age limits. [shared.Settings] implements it.
type AgeSettings interface {
	CacheAgeDays() int
	RefreshDays() int
}

// RandomFilter restricts [CacheStore.FetchRandom] to records fetched within PlayedWithin
// and updated within MaxAge. Zero durations disable the corresponding bound.
type RandomFilter struct {
	PlayedWithin time.Duration
	MaxAge       time.Duration
}

// Stats is a per-table row count.
type Stats map[models.Table]int

// CacheStore is the fail-open facade over the three cache tables.
type CacheStore struct {
	Load     *LoadRepository
	URLs     *URLRepository
	Metadata *MetadataRepository

	settings AgeSettings
	logger   *log.Logger
	now      func() time.Time
}

// NewCacheStore builds a CacheStore on db. A nil logger discards output.
func NewCacheStore(db *sql.DB, settings AgeSettings, logger *log.Logger) *CacheStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &CacheStore{
		Load:     NewLoadRepository(db),
		URLs:     NewURLRepository(db),
		Metadata: NewMetadataRepository(db),
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source used for age checks and timestamp bumps.
func (s *CacheStore) SetClock(now func() time.Time) {
	s.now = now
}

// minUpdated is the oldest last_updated still considered present.
func (s *CacheStore) minUpdated(now time.Time) int64 {
	days := s.settings.CacheAgeDays()
	if days <= 0 {
		return 0
	}
	return now.Add(-time.Duration(days) * day).Unix()
}

// needsRefresh reports whether a present record must not be served as a hit.
func (s *CacheStore) needsRefresh(ts models.Timestamps, now time.Time) bool {
	if ts.LastFetched > now.Unix() || ts.LastUpdated > now.Unix() {
		return true
	}
	refreshBefore := now.Add(-time.Duration(s.settings.RefreshDays()) * day).Unix()
	return ts.LastUpdated < refreshBefore
}

// readFailed logs a failed read at a level matching its cause.
func (s *CacheStore) readFailed(table models.Table, key string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("cache miss", "table", table, "key", key)
	case errors.Is(err, ErrCorruptRecord):
		s.logger.Warn("corrupt cache record treated as miss", "table", table, "key", key)
	default:
		s.logger.Warn("cache read failed", "table", table, "key", key, "error", err)
	}
}

// FetchLoad returns the load record for query.
//
// A nil record means a miss. needsRefresh is true on a miss, on any storage error, and
// when the record is older than the refresh window or carries a future timestamp.
func (s *CacheStore) FetchLoad(ctx context.Context, query string) (*models.LoadRecord, bool) {
	now := s.now()
	rec, err := s.Load.Get(ctx, query, s.minUpdated(now))
	if err != nil {
		s.readFailed(models.TableLoad, query, err)
		return nil, true
	}
	return &rec, s.needsRefresh(rec.Timestamps, now)
}

// FetchURL returns the url record for trackInfo. See [CacheStore.FetchLoad].
func (s *CacheStore) FetchURL(ctx context.Context, trackInfo string) (*models.URLRecord, bool) {
	now := s.now()
	rec, err := s.URLs.Get(ctx, trackInfo, s.minUpdated(now))
	if err != nil {
		s.readFailed(models.TableURL, trackInfo, err)
		return nil, true
	}
	return &rec, s.needsRefresh(rec.Timestamps, now)
}

// FetchMetadata returns the metadata record for uri. See [CacheStore.FetchLoad].
func (s *CacheStore) FetchMetadata(ctx context.Context, uri string) (*models.MetadataRecord, bool) {
	now := s.now()
	rec, err := s.Metadata.Get(ctx, uri, s.minUpdated(now))
	if err != nil {
		s.readFailed(models.TableMetadata, uri, err)
		return nil, true
	}
	return &rec, s.needsRefresh(rec.Timestamps, now)
}

// FetchOne dispatches to the typed fetch for table. An unknown table is a miss.
func (s *CacheStore) FetchOne(ctx context.Context, table models.Table, key string) (models.Record, bool) {
	switch table {
	case models.TableLoad:
		if rec, refresh := s.FetchLoad(ctx, key); rec != nil {
			return *rec, refresh
		}
	case models.TableURL:
		if rec, refresh := s.FetchURL(ctx, key); rec != nil {
			return *rec, refresh
		}
	case models.TableMetadata:
		if rec, refresh := s.FetchMetadata(ctx, key); rec != nil {
			return *rec, refresh
		}
	}
	return nil, true
}

// Insert upserts records into table. Every record must belong to table.
func (s *CacheStore) Insert(ctx context.Context, table models.Table, records []models.Record) error {
	var err error
	switch table {
	case models.TableLoad:
		var rows []models.LoadRecord
		if rows, err = collect[models.LoadRecord](table, records); err == nil {
			err = s.Load.Upsert(ctx, rows)
		}
	case models.TableURL:
		var rows []models.URLRecord
		if rows, err = collect[models.URLRecord](table, records); err == nil {
			err = s.URLs.Upsert(ctx, rows)
		}
	case models.TableMetadata:
		var rows []models.MetadataRecord
		if rows, err = collect[models.MetadataRecord](table, records); err == nil {
			err = s.Metadata.Upsert(ctx, rows)
		}
	default:
		return fmt.Errorf("%w: unknown table %q", shared.ErrInvalidArgument, table)
	}

	if err != nil {
		s.logger.Warn("cache insert failed", "table", table, "records", len(records), "error", err)
		return fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}
	return nil
}

func collect[T models.Record](table models.Table, records []models.Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		typed, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %T does not belong to table %q", shared.ErrInvalidArgument, r, table)
		}
		out = append(out, typed)
	}
	return out, nil
}

// Update bumps last_fetched on the record with key.
func (s *CacheStore) Update(ctx context.Context, table models.Table, key string) error {
	now := s.now().Unix()

	var err error
	switch table {
	case models.TableLoad:
		err = s.Load.Touch(ctx, key, now)
	case models.TableURL:
		err = s.URLs.Touch(ctx, key, now)
	case models.TableMetadata:
		err = s.Metadata.Touch(ctx, key, now)
	default:
		return fmt.Errorf("%w: unknown table %q", shared.ErrInvalidArgument, table)
	}

	if err != nil {
		s.logger.Warn("cache update failed", "table", table, "key", key, "error", err)
		return fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}
	return nil
}

// FetchRandom returns one random record from table matching filter.
func (s *CacheStore) FetchRandom(ctx context.Context, table models.Table, filter RandomFilter) (models.Record, error) {
	now := s.now()
	var playedSince, updatedSince int64
	if filter.PlayedWithin > 0 {
		playedSince = now.Add(-filter.PlayedWithin).Unix()
	}
	if filter.MaxAge > 0 {
		updatedSince = now.Add(-filter.MaxAge).Unix()
	}

	var (
		rec models.Record
		err error
	)
	switch table {
	case models.TableLoad:
		var r models.LoadRecord
		r, err = s.Load.Random(ctx, playedSince, updatedSince)
		rec = r
	case models.TableURL:
		var r models.URLRecord
		r, err = s.URLs.Random(ctx, playedSince, updatedSince)
		rec = r
	case models.TableMetadata:
		var r models.MetadataRecord
		r, err = s.Metadata.Random(ctx, playedSince, updatedSince)
		rec = r
	default:
		return nil, fmt.Errorf("%w: unknown table %q", shared.ErrInvalidArgument, table)
	}

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}
	return rec, nil
}

// FetchAllForContribution returns every decodable load record.
func (s *CacheStore) FetchAllForContribution(ctx context.Context) ([]models.LoadRecord, error) {
	records, corrupt, err := s.Load.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}
	if corrupt > 0 {
		s.logger.Warn("skipped corrupt load records", "count", corrupt)
	}
	return records, nil
}

// Stats counts rows per table.
func (s *CacheStore) Stats(ctx context.Context) (Stats, error) {
	stats := make(Stats, 3)
	counters := map[models.Table]func(context.Context) (int, error){
		models.TableLoad:     s.Load.Count,
		models.TableURL:      s.URLs.Count,
		models.TableMetadata: s.Metadata.Count,
	}
	for table, fn := range counters {
		n, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
		}
		stats[table] = n
	}
	return stats, nil
}
