package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/audiocache/internal/models"
)

var loadColumns = []string{"query", "data", "last_updated", "last_fetched"}

// LoadRepository persists load-node results keyed by canonical query.
type LoadRepository struct {
	db *sql.DB
}

// NewLoadRepository creates a new LoadRepository with the given database connection
func NewLoadRepository(db *sql.DB) *LoadRepository {
	return &LoadRepository{db: db}
}

// Get returns the record for query if it was updated at or after minUpdated.
//
// A row whose data cannot be decoded is returned with its timestamps and [ErrCorruptRecord].
func (r *LoadRepository) Get(ctx context.Context, query string, minUpdated int64) (models.LoadRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT query, data, last_updated, last_fetched
		FROM load
		WHERE query = ? AND last_updated >= ?
	`, query, minUpdated)
	return r.scanOne(row)
}

// Upsert inserts records, replacing any existing rows with the same query.
func (r *LoadRepository) Upsert(ctx context.Context, records []models.LoadRecord) error {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		data, err := rec.Result.Marshal()
		if err != nil {
			return fmt.Errorf("failed to encode load result for %q: %w", rec.Query, err)
		}
		rows = append(rows, []any{rec.Query, string(data), rec.LastUpdated, rec.LastFetched})
	}
	return upsert(ctx, r.db, "load", loadColumns, rows)
}

// Touch sets last_fetched for query.
func (r *LoadRepository) Touch(ctx context.Context, query string, now int64) error {
	return touch(ctx, r.db, "load", "query", query, now)
}

// Random returns one record fetched at or after playedSince and updated at or after updatedSince.
func (r *LoadRepository) Random(ctx context.Context, playedSince, updatedSince int64) (models.LoadRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT query, data, last_updated, last_fetched
		FROM load
		WHERE last_fetched >= ? AND last_updated >= ?
		ORDER BY RANDOM()
		LIMIT 1
	`, playedSince, updatedSince)
	return r.scanOne(row)
}

// All returns every decodable record ordered by query. Corrupt rows are skipped and counted.
func (r *LoadRepository) All(ctx context.Context) ([]models.LoadRecord, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT query, data, last_updated, last_fetched
		FROM load
		ORDER BY query
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query load records: %w", err)
	}
	defer rows.Close()

	var (
		records []models.LoadRecord
		corrupt int
	)
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			if errors.Is(err, ErrCorruptRecord) {
				corrupt++
				continue
			}
			return nil, corrupt, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt, fmt.Errorf("failed to iterate load records: %w", err)
	}
	return records, corrupt, nil
}

// Count returns the number of stored load records.
func (r *LoadRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "load")
}

func (r *LoadRepository) scanOne(s scanner) (models.LoadRecord, error) {
	var (
		rec  models.LoadRecord
		data string
	)
	if err := s.Scan(&rec.Query, &data, &rec.LastUpdated, &rec.LastFetched); err != nil {
		return models.LoadRecord{}, notFound(err)
	}

	result, err := models.ParseLoadResult([]byte(data))
	if err != nil {
		return rec, ErrCorruptRecord
	}
	rec.Result = result
	return rec, nil
}
