package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/audiocache/internal/models"
)

var metadataColumns = []string{
	"uri", "id", "type", "track_name", "artist_name", "song_url", "track_info", "last_updated", "last_fetched",
}

// MetadataRepository persists provider track metadata keyed by URI.
type MetadataRepository struct {
	db *sql.DB
}

// NewMetadataRepository creates a new MetadataRepository with the given database connection
func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Get returns the metadata record for uri if it was updated at or after minUpdated.
func (r *MetadataRepository) Get(ctx context.Context, uri string, minUpdated int64) (models.MetadataRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT uri, id, type, track_name, artist_name, song_url, track_info, last_updated, last_fetched
		FROM metadata
		WHERE uri = ? AND last_updated >= ?
	`, uri, minUpdated)
	return r.scanOne(row)
}

// Upsert inserts records, replacing any existing rows with the same URI.
func (r *MetadataRepository) Upsert(ctx context.Context, records []models.MetadataRecord) error {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.URI, rec.ID, rec.Type, rec.TrackName, rec.ArtistName, rec.SongURL, rec.TrackInfo,
			rec.LastUpdated, rec.LastFetched,
		})
	}
	return upsert(ctx, r.db, "metadata", metadataColumns, rows)
}

// Touch sets last_fetched for uri.
func (r *MetadataRepository) Touch(ctx context.Context, uri string, now int64) error {
	return touch(ctx, r.db, "metadata", "uri", uri, now)
}

func (r *MetadataRepository) Random(ctx context.Context, playedSince, updatedSince int64) (models.MetadataRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT uri, id, type, track_name, artist_name, song_url, track_info, last_updated, last_fetched
		FROM metadata
		WHERE last_fetched >= ? AND last_updated >= ?
		ORDER BY RANDOM()
		LIMIT 1
	`, playedSince, updatedSince)
	return r.scanOne(row)
}

func (r *MetadataRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "metadata")
}

func (r *MetadataRepository) scanOne(s scanner) (models.MetadataRecord, error) {
	var rec models.MetadataRecord
	err := s.Scan(
		&rec.URI, &rec.ID, &rec.Type, &rec.TrackName, &rec.ArtistName, &rec.SongURL, &rec.TrackInfo,
		&rec.LastUpdated, &rec.LastFetched,
	)
	if err != nil {
		return models.MetadataRecord{}, notFound(err)
	}
	if rec.TrackInfo == "" {
		return rec, ErrCorruptRecord
	}
	return rec, nil
}
