package models

import "time"

// Table names one of the three cache tables.
type Table string

const (
	TableLoad     Table = "load"
	TableURL      Table = "url"
	TableMetadata Table = "metadata"
)

func (t Table) Valid() bool {
	switch t {
	case TableLoad, TableURL, TableMetadata:
		return true
	}
	return false
}

// Record is a row in one of the cache tables. The concrete type determines the table.
type Record interface {
	Table() Table
	// Key is the primary key value of the row.
	Key() string
	isRecord()
}

// Timestamps are unix seconds.
type Timestamps struct {
	LastUpdated int64
	LastFetched int64
}

// Stamp returns timestamps set to now.
func Stamp(now time.Time) Timestamps {
	ts := now.Unix()
	return Timestamps{LastUpdated: ts, LastFetched: ts}
}

// LoadRecord is a persisted load-node result for a canonical query.
type LoadRecord struct {
	Query  string
	Result LoadResult
	Timestamps
}

func (LoadRecord) Table() Table  { return TableLoad }
func (r LoadRecord) Key() string { return r.Query }
func (LoadRecord) isRecord()     {}

// URLRecord maps a "title artist" descriptor to the playable URL a search found for it.
type URLRecord struct {
	TrackInfo string
	URL       string
	Timestamps
}

func (URLRecord) Table() Table  { return TableURL }
func (r URLRecord) Key() string { return r.TrackInfo }
func (URLRecord) isRecord()     {}

// MetadataRecord is a provider track's metadata keyed by its URI.
type MetadataRecord struct {
	ID         string
	Type       string
	URI        string
	TrackName  string
	ArtistName string
	SongURL    string
	TrackInfo  string
	Timestamps
}

func (MetadataRecord) Table() Table  { return TableMetadata }
func (r MetadataRecord) Key() string { return r.URI }
func (MetadataRecord) isRecord()     {}
