package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/audiocache/internal/models"
)

var urlColumns = []string{"track_info", "url", "last_updated", "last_fetched"}

// URLRepository persists search results keyed by track descriptor.
type URLRepository struct {
	db *sql.DB
}

func NewURLRepository(db *sql.DB) *URLRepository {
	return &URLRepository{db: db}
}

// Get returns the URL record for trackInfo if it was updated at or after minUpdated.
func (r *URLRepository) Get(ctx context.Context, trackInfo string, minUpdated int64) (models.URLRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT track_info, url, last_updated, last_fetched
		FROM url
		WHERE track_info = ? AND last_updated >= ?
	`, trackInfo, minUpdated)
	return r.scanOne(row)
}

func (r *URLRepository) Upsert(ctx context.Context, records []models.URLRecord) error {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{rec.TrackInfo, rec.URL, rec.LastUpdated, rec.LastFetched})
	}
	return upsert(ctx, r.db, "url", urlColumns, rows)
}

func (r *URLRepository) Touch(ctx context.Context, trackInfo string, now int64) error {
	return touch(ctx, r.db, "url", "track_info", trackInfo, now)
}

func (r *URLRepository) Random(ctx context.Context, playedSince, updatedSince int64) (models.URLRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT track_info, url, last_updated, last_fetched
		FROM url
		WHERE last_fetched >= ? AND last_updated >= ?
		ORDER BY RANDOM()
		LIMIT 1
	`, playedSince, updatedSince)
	return r.scanOne(row)
}

func (r *URLRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "url")
}

func (r *URLRepository) scanOne(s scanner) (models.URLRecord, error) {
	var rec models.URLRecord
	if err := s.Scan(&rec.TrackInfo, &rec.URL, &rec.LastUpdated, &rec.LastFetched); err != nil {
		return models.URLRecord{}, notFound(err)
	}
	if rec.URL == "" {
		return rec, ErrCorruptRecord
	}
	return rec, nil
}
